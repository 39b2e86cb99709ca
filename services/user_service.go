package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/errors"
)

var wishlistField = store.Set("wishlist")

type UserService struct {
	store     store.DocumentStore
	cache     store.Cache
	cacheTTL  time.Duration
	jwtSecret string
	tokenTTL  time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
}

type UserServiceConfig struct {
	CacheTTL  time.Duration
	JWTSecret string
	TokenTTL  time.Duration
}

func NewUserService(docs store.DocumentStore, cache store.Cache, cfg UserServiceConfig, log logrus.FieldLogger) *UserService {
	return &UserService{
		store:     docs,
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  tokenTTLOrDefault(cfg.TokenTTL),
		log:       log,
		now:       time.Now,
	}
}

// GetUser retrieves a user from the cache or the store
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	ok, err := s.cache.GetJSON(ctx, store.UserKey(userID), &user)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to read cached user")
	}
	if ok {
		return user, nil
	}

	if err := s.store.Get(ctx, store.Users, userID, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, errors.ErrUserNotFound.WithDetails("user_id=%s", userID)
		}
		return models.User{}, err
	}

	if err := s.cache.SetJSON(ctx, store.UserKey(userID), user, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to cache user")
	}
	return user, nil
}

// LiveUser is GetUser that also rejects soft-deleted accounts.
func (s *UserService) LiveUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user.Deleted() {
		return models.User{}, errors.ErrUserNotFound.WithDetails("user_id=%s deactivated", userID)
	}
	return user, nil
}

// Invalidate drops cached copies after a mutation.
func (s *UserService) Invalidate(ctx context.Context, userIDs ...string) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = store.UserKey(id)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WithError(err).WithField("user_ids", userIDs).Warn("Failed to invalidate cached users")
	}
}

// ListLive returns every account without the soft-delete marker, ordered by ID.
func (s *UserService) ListLive(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.store.Find(ctx, store.Users, store.Query{}, &users); err != nil {
		return nil, err
	}
	live := users[:0]
	for _, u := range users {
		if !u.Deleted() {
			live = append(live, u)
		}
	}
	return live, nil
}

func (s *UserService) SetPrivacy(ctx context.Context, userID string, private bool) (models.User, error) {
	if _, err := s.LiveUser(ctx, userID); err != nil {
		return models.User{}, err
	}
	_, err := s.store.AtomicUpdate(ctx, store.Users, userID, store.Patch{Ops: []store.Op{store.SetValue("private", private)}})
	if err != nil {
		return models.User{}, s.mapMissing(err, userID)
	}
	s.Invalidate(ctx, userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "private": private}).Info("Updated account privacy")
	return s.GetUser(ctx, userID)
}

// Deactivate sets the soft-delete marker. Badges keep resolving to the user.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.LiveUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.store.AtomicUpdate(ctx, store.Users, userID, store.Patch{Ops: []store.Op{store.SetValue("deleted_at", s.now().UTC())}})
	if err != nil {
		return s.mapMissing(err, userID)
	}
	s.Invalidate(ctx, userID)
	s.log.WithField("user_id", userID).Info("Deactivated account")
	return nil
}

func (s *UserService) AddToWishlist(ctx context.Context, userID, monumentID string) (models.User, error) {
	var m models.Monument
	if err := s.store.Get(ctx, store.Monuments, monumentID, &m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, errors.ErrMonumentNotFound.WithDetails("monument_id=%s", monumentID)
		}
		return models.User{}, err
	}
	p := store.Patch{Ops: []store.Op{store.Add(wishlistField, monumentID, nil)}}
	if _, err := s.store.AtomicUpdate(ctx, store.Users, userID, p); err != nil {
		return models.User{}, s.mapMissing(err, userID)
	}
	s.Invalidate(ctx, userID)
	return s.GetUser(ctx, userID)
}

func (s *UserService) RemoveFromWishlist(ctx context.Context, userID, monumentID string) (models.User, error) {
	if _, err := s.store.AtomicUpdate(ctx, store.Users, userID, store.RemoveIfPresent(wishlistField, monumentID)); err != nil {
		return models.User{}, s.mapMissing(err, userID)
	}
	s.Invalidate(ctx, userID)
	return s.GetUser(ctx, userID)
}

func (s *UserService) mapMissing(err error, userID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errors.ErrUserNotFound.WithDetails("user_id=%s", userID)
	}
	return err
}
