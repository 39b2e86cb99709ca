package store

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is a DocumentStore kept in process. Documents are held as BSON
// maps so decoding behaves as it does against MongoDB. One mutex serializes
// every operation, which makes each AtomicUpdate atomic and each transaction
// serializable.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]map[string]bson.M{}}
}

type txKey struct{}

// lock takes the store mutex unless ctx belongs to a transaction that already
// holds it.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*MemoryStore); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc any) error {
	m, err := toDocument(doc)
	if err != nil {
		return err
	}
	id, ok := m["_id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("insert into %s: document needs a string _id", collection)
	}

	defer s.lock(ctx)()
	coll := s.collections[collection]
	if coll == nil {
		coll = map[string]bson.M{}
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return ErrDuplicate
	}
	coll[id] = m
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	defer s.lock(ctx)()
	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	return decode(doc, out)
}

func (s *MemoryStore) Find(ctx context.Context, collection string, q Query, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find: out must be a pointer to a slice, got %T", out)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()

	defer s.lock(ctx)()
	coll := s.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if q.SortBy != "" && q.SortBy != "_id" {
			if c := compareValues(coll[a][q.SortBy], coll[b][q.SortBy]); c != 0 {
				return c
			}
		}
		return cmp.Compare(a, b)
	})

	result := reflect.MakeSlice(slice.Type(), 0, len(ids))
	for _, id := range ids {
		doc := coll[id]
		if !matches(doc, id, q) {
			continue
		}
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

func (s *MemoryStore) AtomicUpdate(ctx context.Context, collection, id string, p Patch) (UpdateResult, error) {
	defer s.lock(ctx)()
	doc, ok := s.collections[collection][id]
	if !ok {
		return UpdateResult{}, ErrNotFound
	}
	for _, c := range p.Require {
		has := indexOf(asArray(doc[c.field.Name]), c.field.KeyPath, c.key) >= 0
		if has != (c.kind == condContains) {
			return UpdateResult{}, ErrConditionFailed
		}
	}

	next := cloneDocument(doc)
	modified := false
	for _, op := range p.Ops {
		changed, err := applyOp(next, op)
		if err != nil {
			return UpdateResult{}, err
		}
		modified = modified || changed
	}
	s.collections[collection][id] = next
	return UpdateResult{Modified: modified}, nil
}

// WithTransaction holds the store mutex for the whole of fn and restores the
// previous contents if fn fails.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*MemoryStore); owner == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]map[string]bson.M, len(s.collections))
	for name, coll := range s.collections {
		cp := make(map[string]bson.M, len(coll))
		for id, doc := range coll {
			// Updates replace documents rather than mutating them, so the
			// map copy is enough to roll back.
			cp[id] = doc
		}
		snapshot[name] = cp
	}

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.collections = snapshot
		return err
	}
	return nil
}

func applyOp(doc bson.M, op Op) (bool, error) {
	switch op.kind {
	case opAdd:
		arr := asArray(doc[op.field.Name])
		if op.field.KeyPath == "" {
			if indexOf(arr, "", op.key) >= 0 {
				return false, nil
			}
			doc[op.field.Name] = append(arr, op.key)
			return true, nil
		}
		v, err := normalize(op.value)
		if err != nil {
			return false, err
		}
		doc[op.field.Name] = append(arr, v)
		return true, nil
	case opRemove:
		arr := asArray(doc[op.field.Name])
		kept := bson.A{}
		for _, el := range arr {
			if k, ok := memberKey(el, op.field.KeyPath); ok && k == op.key {
				continue
			}
			kept = append(kept, el)
		}
		doc[op.field.Name] = kept
		return len(kept) != len(arr), nil
	case opAppend:
		v, err := normalize(op.value)
		if err != nil {
			return false, err
		}
		doc[op.field.Name] = append(asArray(doc[op.field.Name]), v)
		return true, nil
	case opSet:
		v, err := normalize(op.value)
		if err != nil {
			return false, err
		}
		changed := !reflect.DeepEqual(doc[op.field.Name], v)
		doc[op.field.Name] = v
		return changed, nil
	}
	return false, fmt.Errorf("unknown op kind %d", op.kind)
}

// compareValues orders sort keys the way MongoDB does for the types the
// services store: missing first, then numbers, then strings.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 1:
		ai, aInt := asInt64(a)
		bi, bInt := asInt64(b)
		if aInt && bInt {
			return cmp.Compare(ai, bi)
		}
		return cmp.Compare(asFloat64(a), asFloat64(b))
	case 2:
		return cmp.Compare(a.(string), b.(string))
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case int32, int64, int, float64:
		return 1
	case string:
		return 2
	}
	return 0
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	n, _ := asInt64(v)
	return float64(n)
}

func matches(doc bson.M, id string, q Query) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, id) {
		return false
	}
	for field, want := range q.Equals {
		v, err := normalize(want)
		if err != nil || !reflect.DeepEqual(doc[field], v) {
			return false
		}
	}
	for field, want := range q.Contains {
		key, ok := want.(string)
		if !ok || indexOf(asArray(doc[field]), "", key) < 0 {
			return false
		}
	}
	return true
}

func asArray(v any) bson.A {
	switch a := v.(type) {
	case bson.A:
		return append(bson.A{}, a...)
	case []any:
		return append(bson.A{}, a...)
	}
	return bson.A{}
}

func indexOf(arr bson.A, keyPath, key string) int {
	for i, el := range arr {
		if k, ok := memberKey(el, keyPath); ok && k == key {
			return i
		}
	}
	return -1
}

func memberKey(el any, keyPath string) (string, bool) {
	if keyPath == "" {
		s, ok := el.(string)
		return s, ok
	}
	switch d := el.(type) {
	case bson.M:
		s, ok := d[keyPath].(string)
		return s, ok
	case map[string]any:
		s, ok := d[keyPath].(string)
		return s, ok
	case bson.D:
		for _, e := range d {
			if e.Key == keyPath {
				s, ok := e.Value.(string)
				return s, ok
			}
		}
	}
	return "", false
}

func toDocument(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// normalize converts a Go value into the form it takes once stored.
func normalize(v any) (any, error) {
	m, err := toDocument(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return m["v"], nil
}

func cloneDocument(doc bson.M) bson.M {
	cp := make(bson.M, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp
}

func decode(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
