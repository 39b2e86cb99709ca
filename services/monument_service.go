package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campus-server/geo"
	"campus-server/models"
	"campus-server/ranking"
	"campus-server/store"
	"campus-server/utils/errors"
)

type MonumentService struct {
	store    store.DocumentStore
	cache    store.Cache
	cacheTTL time.Duration
	log      logrus.FieldLogger

	seqMu   sync.Mutex
	lastSeq int64
}

func NewMonumentService(docs store.DocumentStore, cache store.Cache, cacheTTL time.Duration, log logrus.FieldLogger) *MonumentService {
	return &MonumentService{store: docs, cache: cache, cacheTTL: cacheTTL, log: log}
}

// List returns the whole monument set in creation order. The set is cached
// as one JSON list so that order, and with it ranking tie-breaks, survives.
func (s *MonumentService) List(ctx context.Context) ([]models.Monument, error) {
	var monuments []models.Monument
	ok, err := s.cache.GetJSON(ctx, store.MonumentsKey, &monuments)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read cached monuments")
	}
	if ok {
		return monuments, nil
	}

	monuments = nil
	if err := s.store.Find(ctx, store.Monuments, store.Query{SortBy: "seq"}, &monuments); err != nil {
		return nil, err
	}
	if monuments == nil {
		monuments = []models.Monument{}
	}
	if err := s.cache.SetJSON(ctx, store.MonumentsKey, monuments, s.cacheTTL); err != nil {
		s.log.WithError(err).Warn("Failed to cache monuments")
	}
	return monuments, nil
}

func (s *MonumentService) Get(ctx context.Context, id string) (models.Monument, error) {
	var m models.Monument
	if err := s.store.Get(ctx, store.Monuments, id, &m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Monument{}, errors.ErrMonumentNotFound.WithDetails("monument_id=%s", id)
		}
		return models.Monument{}, err
	}
	return m, nil
}

func (s *MonumentService) Create(ctx context.Context, m models.Monument) (models.Monument, error) {
	if strings.TrimSpace(m.Title) == "" {
		return models.Monument{}, errors.ErrInvalidInput.WithDetails("monument title is required")
	}
	if err := m.Point().Validate(); err != nil {
		return models.Monument{}, err
	}
	if m.Radius < 0 {
		return models.Monument{}, errors.ErrInvalidInput.WithDetails("radius=%f must not be negative", m.Radius)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Location.Type = "Point"
	m.Seq = s.nextSeq()

	if err := s.store.Insert(ctx, store.Monuments, m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Monument{}, errors.ErrConflict.WithDetails("monument_id=%s already exists", m.ID)
		}
		return models.Monument{}, err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"monument_id": m.ID, "title": m.Title}).Info("Created monument")
	return m, nil
}

// MonumentUpdate is an administrative edit; nil fields are left alone.
type MonumentUpdate struct {
	Title       *string
	Description *string
	Location    *geo.Point
	Radius      *float64
	Icon        *string
}

func (s *MonumentService) Update(ctx context.Context, id string, u MonumentUpdate) (models.Monument, error) {
	var ops []store.Op
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return models.Monument{}, errors.ErrInvalidInput.WithDetails("monument title is required")
		}
		ops = append(ops, store.SetValue("title", *u.Title))
	}
	if u.Description != nil {
		ops = append(ops, store.SetValue("description", *u.Description))
	}
	if u.Location != nil {
		if err := u.Location.Validate(); err != nil {
			return models.Monument{}, err
		}
		ops = append(ops, store.SetValue("location", models.NewGeoPoint(*u.Location)))
	}
	if u.Radius != nil {
		if *u.Radius < 0 {
			return models.Monument{}, errors.ErrInvalidInput.WithDetails("radius=%f must not be negative", *u.Radius)
		}
		ops = append(ops, store.SetValue("radius", *u.Radius))
	}
	if u.Icon != nil {
		ops = append(ops, store.SetValue("icon", *u.Icon))
	}

	if len(ops) == 0 {
		return s.Get(ctx, id)
	}

	if _, err := s.store.AtomicUpdate(ctx, store.Monuments, id, store.Patch{Ops: ops}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Monument{}, errors.ErrMonumentNotFound.WithDetails("monument_id=%s", id)
		}
		return models.Monument{}, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// RankMonuments orders the monument set by distance from origin. k <= 0
// returns the full list.
func (s *MonumentService) RankMonuments(ctx context.Context, origin geo.Point, k int) ([]ranking.Ranked[models.Monument], error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	monuments, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(origin, monuments, k)
}

// Closest returns the single nearest monument.
func (s *MonumentService) Closest(ctx context.Context, origin geo.Point) (ranking.Ranked[models.Monument], error) {
	ranked, err := s.RankMonuments(ctx, origin, ranking.ClosestMonument)
	if err != nil {
		return ranking.Ranked[models.Monument]{}, err
	}
	if len(ranked) == 0 {
		return ranking.Ranked[models.Monument]{}, errors.ErrMonumentNotFound.WithDetails("no monuments registered")
	}
	return ranked[0], nil
}

// Visited reports whether origin is inside the monument's geofence.
func (s *MonumentService) Visited(ctx context.Context, origin geo.Point, monumentID string) (bool, float64, error) {
	m, err := s.Get(ctx, monumentID)
	if err != nil {
		return false, 0, err
	}
	radius := m.Radius
	if radius <= 0 {
		radius = models.DefaultVisitRadius
	}
	inside, err := geo.Within(origin, m.Point(), radius)
	if err != nil {
		return false, 0, err
	}
	d, err := geo.DistanceKm(origin, m.Point())
	return inside, d, err
}

// Seed loads monuments from a JSON file when the collection is empty.
func (s *MonumentService) Seed(ctx context.Context, path string) (int, error) {
	existing, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	var monuments []models.Monument
	if err := json.NewDecoder(file).Decode(&monuments); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	s.log.WithField("count", len(monuments)).Info("Seeding monuments")
	inserted := 0
	for _, m := range monuments {
		if _, err := s.Create(ctx, m); err != nil {
			s.log.WithError(err).WithField("monument_id", m.ID).Warn("Failed to seed monument")
			continue
		}
		inserted++
	}
	return inserted, nil
}

// nextSeq is strictly increasing within the process and follows wall-clock
// time across restarts.
func (s *MonumentService) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func (s *MonumentService) invalidate(ctx context.Context) {
	if err := s.cache.Del(ctx, store.MonumentsKey); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate cached monuments")
	}
}
