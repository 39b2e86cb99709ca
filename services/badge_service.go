package services

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/errors"
)

type BadgeService struct {
	store     store.DocumentStore
	users     *UserService
	monuments *MonumentService
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewBadgeService(docs store.DocumentStore, users *UserService, monuments *MonumentService, log logrus.FieldLogger) *BadgeService {
	return &BadgeService{store: docs, users: users, monuments: monuments, log: log, now: time.Now}
}

// BadgeSubmission carries references to images already stored by the upload
// service.
type BadgeSubmission struct {
	FrontImage   string
	BackImage    string
	LocationText string
	MonumentID   string
}

func (s *BadgeService) Submit(ctx context.Context, ownerID string, sub BadgeSubmission) (models.Badge, error) {
	if strings.TrimSpace(sub.FrontImage) == "" || strings.TrimSpace(sub.BackImage) == "" {
		return models.Badge{}, errors.ErrInvalidInput.WithDetails("front and back images are required")
	}
	owner, err := s.users.LiveUser(ctx, ownerID)
	if err != nil {
		return models.Badge{}, err
	}
	if sub.MonumentID != "" {
		if _, err := s.monuments.Get(ctx, sub.MonumentID); err != nil {
			return models.Badge{}, err
		}
	}

	badge := models.Badge{
		ID:            uuid.NewString(),
		OwnerID:       owner.ID,
		OwnerUsername: owner.Username,
		FrontImage:    sub.FrontImage,
		BackImage:     sub.BackImage,
		LocationText:  sub.LocationText,
		MonumentID:    sub.MonumentID,
		Comments:      []models.Comment{},
		Likes:         []models.Like{},
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Insert(ctx, store.Badges, badge); err != nil {
		return models.Badge{}, err
	}
	s.log.WithFields(logrus.Fields{"badge_id": badge.ID, "user_id": owner.ID, "monument_id": sub.MonumentID}).Info("Badge submitted")
	return badge, nil
}

func (s *BadgeService) Get(ctx context.Context, id string) (models.Badge, error) {
	return getBadge(ctx, s.store, id)
}

// ListByOwner returns a user's badges, newest first.
func (s *BadgeService) ListByOwner(ctx context.Context, ownerID string) ([]models.Badge, error) {
	var badges []models.Badge
	if err := s.store.Find(ctx, store.Badges, store.Query{Equals: map[string]any{"owner_id": ownerID}}, &badges); err != nil {
		return nil, err
	}
	sortNewestFirst(badges)
	return badges, nil
}

// Feed returns badges posted by the accounts userID follows, newest first.
func (s *BadgeService) Feed(ctx context.Context, userID string, limit int) ([]models.Badge, error) {
	user, err := s.users.LiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	feed := []models.Badge{}
	for _, followee := range user.Following {
		badges, err := s.ListByOwner(ctx, followee)
		if err != nil {
			return nil, err
		}
		feed = append(feed, badges...)
	}
	sortNewestFirst(feed)
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

func sortNewestFirst(badges []models.Badge) {
	slices.SortStableFunc(badges, func(a, b models.Badge) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func getBadge(ctx context.Context, docs store.DocumentStore, id string) (models.Badge, error) {
	var b models.Badge
	if err := docs.Get(ctx, store.Badges, id, &b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Badge{}, errors.ErrBadgeNotFound.WithDetails("badge_id=%s", id)
		}
		return models.Badge{}, err
	}
	return b, nil
}
