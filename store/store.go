// Package store is the persistence boundary. Embedded collections (likes,
// comments, follow edges, wishlists) are only ever changed through Patch
// primitives so uniqueness and atomicity are enforced in one place.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("duplicate document")
	ErrConditionFailed = errors.New("update precondition failed")
)

// Collection names.
const (
	Users     = "users"
	Monuments = "monuments"
	Badges    = "badges"
)

// DocumentStore is a generic document interface with atomic per-document
// updates and multi-document transactions.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc any) error
	Get(ctx context.Context, collection, id string, out any) error
	// Find decodes matching documents into out (a pointer to a slice),
	// ordered by q.SortBy and then _id.
	Find(ctx context.Context, collection string, q Query, out any) error
	// AtomicUpdate checks p.Require and applies p.Ops to one document as a
	// single step.
	AtomicUpdate(ctx context.Context, collection, id string, p Patch) (UpdateResult, error)
	// WithTransaction runs fn so that every AtomicUpdate it performs through
	// the passed context commits together or not at all.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Query is an equality predicate over top-level fields.
type Query struct {
	IDs      []string       // restrict to these _id values
	Equals   map[string]any // field == value
	Contains map[string]any // array field has element value
	// SortBy orders results ascending by this top-level field; documents
	// without it come first. Ties and an empty SortBy fall back to _id.
	SortBy string
}

type UpdateResult struct {
	// Modified is false when every op was a no-op (e.g. removing an absent member).
	Modified bool
}

// Field names an embedded array. KeyPath is the sub-field that identifies an
// element; empty means the elements are plain string keys.
type Field struct {
	Name    string
	KeyPath string
}

// Set is a field of plain string members.
func Set(name string) Field { return Field{Name: name} }

// Keyed is a field of sub-documents identified by keyPath.
func Keyed(name, keyPath string) Field { return Field{Name: name, KeyPath: keyPath} }

func (f Field) path() string {
	if f.KeyPath == "" {
		return f.Name
	}
	return f.Name + "." + f.KeyPath
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
	opAppend
	opSet
)

// Op is one mutation inside a Patch. A patch must not touch the same field
// with two ops.
type Op struct {
	kind  opKind
	field Field
	key   string
	value any
}

type condKind int

const (
	condContains condKind = iota
	condNotContains
)

// Condition is evaluated atomically with the ops of its patch.
type Condition struct {
	kind  condKind
	field Field
	key   string
}

func Contains(f Field, key string) Condition    { return Condition{kind: condContains, field: f, key: key} }
func NotContains(f Field, key string) Condition { return Condition{kind: condNotContains, field: f, key: key} }

// Add inserts a member keyed by key. For plain sets value is ignored and key
// is stored. Pair it with NotContains to reject duplicates.
func Add(f Field, key string, value any) Op {
	return Op{kind: opAdd, field: f, key: key, value: value}
}

// Remove deletes every member keyed by key; absent members are a no-op.
func Remove(f Field, key string) Op { return Op{kind: opRemove, field: f, key: key} }

// Append pushes value to the end of an ordered field.
func Append(f Field, value any) Op { return Op{kind: opAppend, field: f, value: value} }

// SetValue replaces a top-level scalar field.
func SetValue(name string, value any) Op { return Op{kind: opSet, field: Field{Name: name}, value: value} }

// Patch is the unit of atomic change against a single document.
type Patch struct {
	Require []Condition
	Ops     []Op
}

func (p Patch) Where(c ...Condition) Patch {
	p.Require = append(append([]Condition(nil), p.Require...), c...)
	return p
}

func (p Patch) And(ops ...Op) Patch {
	p.Ops = append(append([]Op(nil), p.Ops...), ops...)
	return p
}

// AddIfAbsent inserts a member and fails with ErrConditionFailed if the key
// is already present.
func AddIfAbsent(f Field, key string, value any) Patch {
	return Patch{
		Require: []Condition{NotContains(f, key)},
		Ops:     []Op{Add(f, key, value)},
	}
}

// RemoveIfPresent removes a member; UpdateResult.Modified tells whether it
// was there.
func RemoveIfPresent(f Field, key string) Patch {
	return Patch{Ops: []Op{Remove(f, key)}}
}

// AppendTo pushes value onto an ordered field.
func AppendTo(f Field, value any) Patch {
	return Patch{Ops: []Op{Append(f, value)}}
}
