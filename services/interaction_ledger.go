package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/errors"
)

var (
	likesField    = store.Keyed("likes", "user_id")
	commentsField = store.Keyed("comments", "id")
)

// InteractionLedger owns every change to a badge's likes and comments. Each
// change is a single AtomicUpdate against the badge document, so concurrent
// callers never overwrite each other's entries.
type InteractionLedger struct {
	store  store.DocumentStore
	users  *UserService
	events Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewInteractionLedger(docs store.DocumentStore, users *UserService, events Publisher, log logrus.FieldLogger) *InteractionLedger {
	return &InteractionLedger{store: docs, users: users, events: events, log: log, now: time.Now}
}

// Like records userID's like. A second like from the same user fails with
// ErrAlreadyLiked; the store condition, not a prior read, decides that.
func (l *InteractionLedger) Like(ctx context.Context, badgeID, userID string) (models.Badge, error) {
	if _, err := l.users.LiveUser(ctx, userID); err != nil {
		return models.Badge{}, err
	}
	like := models.Like{UserID: userID, CreatedAt: l.now().UTC()}
	_, err := l.store.AtomicUpdate(ctx, store.Badges, badgeID, store.AddIfAbsent(likesField, userID, like))
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return models.Badge{}, errors.ErrAlreadyLiked.WithDetails("badge_id=%s user_id=%s", badgeID, userID)
	case err != nil:
		return models.Badge{}, l.mapMissing(err, badgeID)
	}

	badge, err := getBadge(ctx, l.store, badgeID)
	if err != nil {
		return models.Badge{}, err
	}
	l.log.WithFields(logrus.Fields{"badge_id": badgeID, "user_id": userID}).Debug("Badge liked")
	publish(ctx, l.events, l.log, Event{Subject: SubjectBadgeLiked, ActorID: userID, TargetID: badge.OwnerID, BadgeID: badgeID, At: like.CreatedAt})
	return badge, nil
}

// Unlike removes userID's like. Removing an absent like is not an error.
func (l *InteractionLedger) Unlike(ctx context.Context, badgeID, userID string) (models.Badge, error) {
	res, err := l.store.AtomicUpdate(ctx, store.Badges, badgeID, store.RemoveIfPresent(likesField, userID))
	if err != nil {
		return models.Badge{}, l.mapMissing(err, badgeID)
	}
	if res.Modified {
		l.log.WithFields(logrus.Fields{"badge_id": badgeID, "user_id": userID}).Debug("Badge unliked")
	}
	return getBadge(ctx, l.store, badgeID)
}

// ToggleLike flips userID's like and returns the resulting authoritative
// state. Clients reconcile their optimistic view against it.
func (l *InteractionLedger) ToggleLike(ctx context.Context, badgeID, userID string) (models.BadgeLikeState, error) {
	badge, err := l.Like(ctx, badgeID, userID)
	if errors.Is(err, errors.ErrAlreadyLiked) {
		badge, err = l.Unlike(ctx, badgeID, userID)
	}
	if err != nil {
		return models.BadgeLikeState{}, err
	}
	return badge.LikeState(userID), nil
}

// AddComment appends a comment with a server-assigned ID and timestamp.
func (l *InteractionLedger) AddComment(ctx context.Context, badgeID, authorID, text string) (models.Badge, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Badge{}, errors.ErrEmptyComment.WithDetails("badge_id=%s", badgeID)
	}
	if n := utf8.RuneCountInString(text); n > models.MaxCommentLength {
		return models.Badge{}, errors.ErrCommentTooLong.WithDetails("badge_id=%s length=%d max=%d", badgeID, n, models.MaxCommentLength)
	}

	author, err := l.users.LiveUser(ctx, authorID)
	if err != nil {
		return models.Badge{}, err
	}

	comment := models.Comment{
		ID:                uuid.NewString(),
		CommenterID:       author.ID,
		CommenterUsername: author.Username,
		Text:              text,
		CreatedAt:         l.now().UTC(),
	}
	if _, err := l.store.AtomicUpdate(ctx, store.Badges, badgeID, store.AppendTo(commentsField, comment)); err != nil {
		return models.Badge{}, l.mapMissing(err, badgeID)
	}

	badge, err := getBadge(ctx, l.store, badgeID)
	if err != nil {
		return models.Badge{}, err
	}
	l.log.WithFields(logrus.Fields{"badge_id": badgeID, "user_id": authorID, "comment_id": comment.ID}).Info("Comment added")
	publish(ctx, l.events, l.log, Event{Subject: SubjectBadgeCommented, ActorID: authorID, TargetID: badge.OwnerID, BadgeID: badgeID, At: comment.CreatedAt})
	return badge, nil
}

// DeleteComment removes a comment by ID. Whether the caller may delete it is
// decided by the caller.
func (l *InteractionLedger) DeleteComment(ctx context.Context, badgeID, commentID string) (models.Badge, error) {
	p := store.Patch{}.Where(store.Contains(commentsField, commentID)).And(store.Remove(commentsField, commentID))
	_, err := l.store.AtomicUpdate(ctx, store.Badges, badgeID, p)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return models.Badge{}, errors.ErrCommentNotFound.WithDetails("badge_id=%s comment_id=%s", badgeID, commentID)
	case err != nil:
		return models.Badge{}, l.mapMissing(err, badgeID)
	}
	l.log.WithFields(logrus.Fields{"badge_id": badgeID, "comment_id": commentID}).Info("Comment deleted")
	return getBadge(ctx, l.store, badgeID)
}

// Comment looks up a single comment.
func (l *InteractionLedger) Comment(ctx context.Context, badgeID, commentID string) (models.Comment, error) {
	badge, err := getBadge(ctx, l.store, badgeID)
	if err != nil {
		return models.Comment{}, err
	}
	c, ok := badge.Comment(commentID)
	if !ok {
		return models.Comment{}, errors.ErrCommentNotFound.WithDetails("badge_id=%s comment_id=%s", badgeID, commentID)
	}
	return c, nil
}

func (l *InteractionLedger) mapMissing(err error, badgeID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errors.ErrBadgeNotFound.WithDetails("badge_id=%s", badgeID)
	}
	return err
}
