package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"campus-server/utils/errors"
)

func TestConcurrentLikeFromSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")
	before := len(env.badge(t, b.ID).Likes)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.ledger.Like(ctx, b.ID, "u1")
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errors.ErrAlreadyLiked):
			already++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || already != 1 {
		t.Fatalf("ok=%d already=%d, want 1 and 1", ok, already)
	}
	after := env.badge(t, b.ID)
	if len(after.Likes) != before+1 || !after.LikedBy("u1") {
		t.Errorf("likes = %+v", after.Likes)
	}
}

func TestConcurrentLikesFromManyUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	b := env.addBadge(t, "owner")

	const n = 20
	for i := 0; i < n; i++ {
		env.addUser(t, fmt.Sprintf("liker-%02d", i), false)
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.ledger.Like(ctx, b.ID, fmt.Sprintf("liker-%02d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(env.badge(t, b.ID).Likes); got != n {
		t.Errorf("likes = %d, want %d", got, n)
	}
}

func TestUnlikeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")

	if _, err := env.ledger.Like(ctx, b.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		got, err := env.ledger.Unlike(ctx, b.ID, "u1")
		if err != nil {
			t.Fatalf("unlike #%d: %v", i+1, err)
		}
		if got.LikedBy("u1") || len(got.Likes) != 0 {
			t.Errorf("unlike #%d left likes %+v", i+1, got.Likes)
		}
	}
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "other", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")
	if _, err := env.ledger.Like(ctx, b.ID, "other"); err != nil {
		t.Fatal(err)
	}

	state, err := env.ledger.ToggleLike(ctx, b.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Liked || state.LikeCount != 2 {
		t.Errorf("first toggle = %+v", state)
	}

	state, err = env.ledger.ToggleLike(ctx, b.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Liked || state.LikeCount != 1 {
		t.Errorf("second toggle = %+v", state)
	}
}

func TestLikeMissingBadge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "u1", false)
	if _, err := env.ledger.Like(ctx, "nope", "u1"); !errors.Is(err, errors.ErrBadgeNotFound) {
		t.Errorf("like err = %v", err)
	}
	if _, err := env.ledger.Unlike(ctx, "nope", "u1"); !errors.Is(err, errors.ErrBadgeNotFound) {
		t.Errorf("unlike err = %v", err)
	}
	if _, err := env.ledger.ToggleLike(ctx, "nope", "u1"); !errors.Is(err, errors.ErrBadgeNotFound) {
		t.Errorf("toggle err = %v", err)
	}
}

func TestLikeNeedsLiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "gone", false)
	b := env.addBadge(t, "owner")
	if err := env.users.Deactivate(ctx, "gone"); err != nil {
		t.Fatal(err)
	}

	for _, liker := range []string{"ghost", "gone"} {
		if _, err := env.ledger.Like(ctx, b.ID, liker); !errors.Is(err, errors.ErrUserNotFound) {
			t.Errorf("like by %s err = %v, want user not found", liker, err)
		}
		if _, err := env.ledger.ToggleLike(ctx, b.ID, liker); !errors.Is(err, errors.ErrUserNotFound) {
			t.Errorf("toggle by %s err = %v, want user not found", liker, err)
		}
	}
	if got := env.badge(t, b.ID); len(got.Likes) != 0 {
		t.Errorf("likes = %+v, want none", got.Likes)
	}
}

func TestLikePublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")
	if _, err := env.ledger.Like(context.Background(), b.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	events := env.events.Events()
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	e := events[0]
	if e.Subject != SubjectBadgeLiked || e.ActorID != "u1" || e.TargetID != "owner" || e.BadgeID != b.ID {
		t.Errorf("event = %+v", e)
	}
}

func TestAddCommentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "", errors.ErrEmptyComment},
		{"whitespace", "   \t\n", errors.ErrEmptyComment},
		{"201 chars", strings.Repeat("a", 201), errors.ErrCommentTooLong},
		{"200 chars", strings.Repeat("a", 200), nil},
		{"200 multibyte runes", strings.Repeat("é", 200), nil},
		{"padded", "  nice view  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.badge(t, b.ID).Comments)
			_, err := env.ledger.AddComment(ctx, b.ID, "u1", tt.text)
			after := len(env.badge(t, b.ID).Comments)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if after != before {
					t.Errorf("rejected comment changed count %d -> %d", before, after)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if after != before+1 {
				t.Errorf("count %d -> %d", before, after)
			}
		})
	}

	last := env.badge(t, b.ID).Comments
	if got := last[len(last)-1].Text; got != "nice view" {
		t.Errorf("stored text = %q, want trimmed", got)
	}
}

func TestCommentsKeepOrderAndAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	env.addUser(t, "u2", false)
	b := env.addBadge(t, "owner")

	for i, author := range []string{"u1", "u2", "u1"} {
		if _, err := env.ledger.AddComment(ctx, b.ID, author, fmt.Sprintf("comment %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	comments := env.badge(t, b.ID).Comments
	if len(comments) != 3 {
		t.Fatalf("comments = %+v", comments)
	}
	for i, c := range comments {
		if c.Text != fmt.Sprintf("comment %d", i) {
			t.Errorf("comments[%d] = %q", i, c.Text)
		}
		if c.ID == "" || c.CreatedAt.IsZero() {
			t.Errorf("comments[%d] missing server fields: %+v", i, c)
		}
	}
	if comments[1].CommenterUsername != "user-u2" {
		t.Errorf("username = %q", comments[1].CommenterUsername)
	}
	if !comments[0].CreatedAt.Before(comments[2].CreatedAt) {
		t.Errorf("timestamps out of order: %v, %v", comments[0].CreatedAt, comments[2].CreatedAt)
	}
}

func TestAddCommentErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	b := env.addBadge(t, "owner")

	if _, err := env.ledger.AddComment(ctx, b.ID, "ghost", "hi"); !errors.Is(err, errors.ErrUserNotFound) {
		t.Errorf("unknown author err = %v", err)
	}
	env.addUser(t, "u1", false)
	if _, err := env.ledger.AddComment(ctx, "nope", "u1", "hi"); !errors.Is(err, errors.ErrBadgeNotFound) {
		t.Errorf("missing badge err = %v", err)
	}
}

func TestDeleteComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner", false)
	env.addUser(t, "u1", false)
	b := env.addBadge(t, "owner")

	withComments, err := env.ledger.AddComment(ctx, b.ID, "u1", "first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.ledger.AddComment(ctx, b.ID, "u1", "second"); err != nil {
		t.Fatal(err)
	}
	first := withComments.Comments[0]

	c, err := env.ledger.Comment(ctx, b.ID, first.ID)
	if err != nil || c.Text != "first" {
		t.Fatalf("comment = %+v, %v", c, err)
	}

	got, err := env.ledger.DeleteComment(ctx, b.ID, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != 1 || got.Comments[0].Text != "second" {
		t.Errorf("comments after delete = %+v", got.Comments)
	}

	if _, err := env.ledger.DeleteComment(ctx, b.ID, first.ID); !errors.Is(err, errors.ErrCommentNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if _, err := env.ledger.Comment(ctx, b.ID, first.ID); !errors.Is(err, errors.ErrCommentNotFound) {
		t.Errorf("lookup after delete err = %v", err)
	}
	if _, err := env.ledger.DeleteComment(ctx, "nope", first.ID); !errors.Is(err, errors.ErrBadgeNotFound) {
		t.Errorf("missing badge err = %v", err)
	}
}
