package services

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/errors"
)

var (
	followingField      = store.Set("following")
	followersField      = store.Set("followers")
	followRequestsField = store.Set("follow_requests")
)

// FollowState is the relation between an ordered pair of users. Exactly one
// holds at a time.
type FollowState string

const (
	StateNone      FollowState = "none"
	StatePending   FollowState = "pending"
	StateFollowing FollowState = "following"
)

// Edge is a directed relation from Follower to Followee.
type Edge struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}

type Relation struct {
	Edge
	State FollowState `json:"state"`
}

// FollowAction is one of Request, Accept, Reject or Unfollow.
type FollowAction interface {
	actor() string
	edge() Edge
	authorize() error
	transition(ctx context.Context, g *SocialGraph, p pair) (FollowState, error)
	subject() string
}

// Request asks to follow Edge.Followee. Public accounts accept immediately.
type Request struct {
	Actor string
	Edge  Edge
}

// Accept approves a pending request; only the followee may accept.
type Accept struct {
	Actor string
	Edge  Edge
}

// Reject declines a pending request; only the followee may reject.
type Reject struct {
	Actor string
	Edge  Edge
}

// Unfollow severs an active follow. Either endpoint may sever it.
type Unfollow struct {
	Actor string
	Edge  Edge
}

func (a Request) actor() string  { return a.Actor }
func (a Accept) actor() string   { return a.Actor }
func (a Reject) actor() string   { return a.Actor }
func (a Unfollow) actor() string { return a.Actor }

func (a Request) edge() Edge  { return a.Edge }
func (a Accept) edge() Edge   { return a.Edge }
func (a Reject) edge() Edge   { return a.Edge }
func (a Unfollow) edge() Edge { return a.Edge }

func (a Request) subject() string  { return SubjectFollowRequested }
func (a Accept) subject() string   { return SubjectFollowAccepted }
func (a Reject) subject() string   { return SubjectFollowRejected }
func (a Unfollow) subject() string { return SubjectUnfollowed }

func (a Request) authorize() error {
	if a.Actor != a.Edge.Follower {
		return errors.ErrUnauthorizedTransition.WithDetails("actor=%s cannot request on behalf of follower=%s", a.Actor, a.Edge.Follower)
	}
	return nil
}

func (a Accept) authorize() error {
	if a.Actor != a.Edge.Followee {
		return errors.ErrUnauthorizedTransition.WithDetails("actor=%s cannot accept a request targeted at %s", a.Actor, a.Edge.Followee)
	}
	return nil
}

func (a Reject) authorize() error {
	if a.Actor != a.Edge.Followee {
		return errors.ErrUnauthorizedTransition.WithDetails("actor=%s cannot reject a request targeted at %s", a.Actor, a.Edge.Followee)
	}
	return nil
}

func (a Unfollow) authorize() error {
	if a.Actor != a.Edge.Follower && a.Actor != a.Edge.Followee {
		return errors.ErrUnauthorizedTransition.WithDetails("actor=%s is not part of edge %s->%s", a.Actor, a.Edge.Follower, a.Edge.Followee)
	}
	return nil
}

// pair is both endpoints as read inside the transaction.
type pair struct {
	follower models.User
	followee models.User
	state    FollowState
}

func (a Request) transition(ctx context.Context, g *SocialGraph, p pair) (FollowState, error) {
	e := a.Edge
	if p.state != StateNone {
		return "", errors.ErrDuplicateRequest.WithDetails("follower=%s followee=%s state=%s", e.Follower, e.Followee, p.state)
	}
	if p.follower.Deleted() || p.followee.Deleted() {
		return "", errors.ErrUserNotFound.WithDetails("follower=%s followee=%s: account deactivated", e.Follower, e.Followee)
	}

	if p.followee.Private {
		err := g.update(ctx, e.Followee, store.Patch{}.
			Where(store.NotContains(followRequestsField, e.Follower), store.NotContains(followersField, e.Follower)).
			And(store.Add(followRequestsField, e.Follower, nil)))
		if errors.Is(err, store.ErrConditionFailed) {
			return "", errors.ErrDuplicateRequest.WithDetails("follower=%s followee=%s", e.Follower, e.Followee)
		}
		return StatePending, err
	}

	if err := g.link(ctx, e, nil); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return "", errors.ErrDuplicateRequest.WithDetails("follower=%s followee=%s", e.Follower, e.Followee)
		}
		return "", err
	}
	return StateFollowing, nil
}

func (a Accept) transition(ctx context.Context, g *SocialGraph, p pair) (FollowState, error) {
	e := a.Edge
	if p.state != StatePending {
		return "", errors.ErrInvalidTransition.WithDetails("accept follower=%s followee=%s state=%s", e.Follower, e.Followee, p.state)
	}
	if p.follower.Deleted() {
		return "", errors.ErrUserNotFound.WithDetails("user_id=%s deactivated", e.Follower)
	}
	err := g.link(ctx, e, []store.Op{store.Remove(followRequestsField, e.Follower)})
	if errors.Is(err, store.ErrConditionFailed) {
		return "", errors.ErrInvalidTransition.WithDetails("accept follower=%s followee=%s: request no longer pending", e.Follower, e.Followee)
	}
	if err != nil {
		return "", err
	}
	return StateFollowing, nil
}

func (a Reject) transition(ctx context.Context, g *SocialGraph, p pair) (FollowState, error) {
	e := a.Edge
	if p.state != StatePending {
		return "", errors.ErrInvalidTransition.WithDetails("reject follower=%s followee=%s state=%s", e.Follower, e.Followee, p.state)
	}
	err := g.update(ctx, e.Followee, store.Patch{}.
		Where(store.Contains(followRequestsField, e.Follower)).
		And(store.Remove(followRequestsField, e.Follower)))
	if errors.Is(err, store.ErrConditionFailed) {
		return "", errors.ErrInvalidTransition.WithDetails("reject follower=%s followee=%s: request no longer pending", e.Follower, e.Followee)
	}
	if err != nil {
		return "", err
	}
	return StateNone, nil
}

func (a Unfollow) transition(ctx context.Context, g *SocialGraph, p pair) (FollowState, error) {
	e := a.Edge
	if p.state != StateFollowing {
		return "", errors.ErrInvalidTransition.WithDetails("unfollow follower=%s followee=%s state=%s", e.Follower, e.Followee, p.state)
	}
	if err := g.update(ctx, e.Follower, store.RemoveIfPresent(followingField, e.Followee)); err != nil {
		return "", err
	}
	if err := g.update(ctx, e.Followee, store.RemoveIfPresent(followersField, e.Follower)); err != nil {
		return "", err
	}
	return StateNone, nil
}

// SocialGraph manages follow edges and pending follow requests. Both sides
// of a relation change inside one store transaction, and each unordered
// user pair is serialized through the Locker.
type SocialGraph struct {
	store  store.DocumentStore
	locker store.Locker
	users  *UserService
	events Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewSocialGraph(docs store.DocumentStore, locker store.Locker, users *UserService, events Publisher, log logrus.FieldLogger) *SocialGraph {
	return &SocialGraph{store: docs, locker: locker, users: users, events: events, log: log, now: time.Now}
}

// Apply runs one state-machine transition and returns the resulting relation.
func (g *SocialGraph) Apply(ctx context.Context, action FollowAction) (Relation, error) {
	e := action.edge()
	if e.Follower == "" || e.Followee == "" {
		return Relation{}, errors.ErrInvalidInput.WithDetails("follower and followee are required")
	}
	if e.Follower == e.Followee {
		return Relation{}, errors.ErrSelfRelation.WithDetails("user_id=%s", e.Follower)
	}
	if err := action.authorize(); err != nil {
		return Relation{}, err
	}

	unlock, err := g.locker.Lock(ctx, pairKey(e))
	if err != nil {
		return Relation{}, err
	}
	defer unlock()

	var next FollowState
	err = g.store.WithTransaction(ctx, func(ctx context.Context) error {
		p, err := g.loadPair(ctx, e)
		if err != nil {
			return err
		}
		next, err = action.transition(ctx, g, p)
		return err
	})
	if err != nil {
		return Relation{}, err
	}

	g.users.Invalidate(ctx, e.Follower, e.Followee)
	g.log.WithFields(logrus.Fields{
		"actor":    action.actor(),
		"follower": e.Follower,
		"followee": e.Followee,
		"state":    next,
	}).Info("Follow relation changed")

	subject := action.subject()
	if _, ok := action.(Request); ok && next == StateFollowing {
		subject = SubjectFollowAccepted
	}
	publish(ctx, g.events, g.log, Event{Subject: subject, ActorID: action.actor(), TargetID: other(e, action.actor()), At: g.now().UTC()})

	return Relation{Edge: e, State: next}, nil
}

func (g *SocialGraph) RequestFollow(ctx context.Context, actor, target string) (Relation, error) {
	return g.Apply(ctx, Request{Actor: actor, Edge: Edge{Follower: actor, Followee: target}})
}

func (g *SocialGraph) AcceptFollow(ctx context.Context, actor, requester string) (Relation, error) {
	return g.Apply(ctx, Accept{Actor: actor, Edge: Edge{Follower: requester, Followee: actor}})
}

func (g *SocialGraph) RejectFollow(ctx context.Context, actor, requester string) (Relation, error) {
	return g.Apply(ctx, Reject{Actor: actor, Edge: Edge{Follower: requester, Followee: actor}})
}

// Unfollow stops actor following target.
func (g *SocialGraph) Unfollow(ctx context.Context, actor, target string) (Relation, error) {
	return g.Apply(ctx, Unfollow{Actor: actor, Edge: Edge{Follower: actor, Followee: target}})
}

// RemoveFollower severs follower's edge to actor.
func (g *SocialGraph) RemoveFollower(ctx context.Context, actor, follower string) (Relation, error) {
	return g.Apply(ctx, Unfollow{Actor: actor, Edge: Edge{Follower: follower, Followee: actor}})
}

// State reads the current relation for follower -> followee.
func (g *SocialGraph) State(ctx context.Context, follower, followee string) (Relation, error) {
	e := Edge{Follower: follower, Followee: followee}
	if follower == followee {
		return Relation{}, errors.ErrSelfRelation.WithDetails("user_id=%s", follower)
	}
	p, err := g.loadPair(ctx, e)
	if err != nil {
		return Relation{}, err
	}
	return Relation{Edge: e, State: p.state}, nil
}

// PendingRequests lists users waiting for userID to accept them.
func (g *SocialGraph) PendingRequests(ctx context.Context, userID string) ([]models.PublicUser, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.publicUsers(ctx, user.FollowRequests)
}

func (g *SocialGraph) Followers(ctx context.Context, userID string) ([]models.PublicUser, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.publicUsers(ctx, user.Followers)
}

func (g *SocialGraph) Following(ctx context.Context, userID string) ([]models.PublicUser, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.publicUsers(ctx, user.Following)
}

// Recommendation is a suggested account with the number of accounts both
// users follow.
type Recommendation struct {
	User              models.PublicUser `json:"user"`
	SharedConnections int               `json:"shared_connections"`
}

// Recommend suggests live accounts userID does not follow yet, ranked by how
// many followees they share with userID, ties by ID. This is a counting
// heuristic, not a learned score. limit <= 0 returns every candidate.
func (g *SocialGraph) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Deleted() {
		return nil, errors.ErrUserNotFound.WithDetails("user_id=%s deactivated", userID)
	}
	candidates, err := g.users.ListLive(ctx)
	if err != nil {
		return nil, err
	}

	mine := make(map[string]struct{}, len(user.Following))
	for _, id := range user.Following {
		mine[id] = struct{}{}
	}

	recs := []Recommendation{}
	for _, c := range candidates {
		if c.ID == userID {
			continue
		}
		if _, followed := mine[c.ID]; followed {
			continue
		}
		shared := 0
		for _, id := range c.Following {
			if _, ok := mine[id]; ok {
				shared++
			}
		}
		recs = append(recs, Recommendation{User: c.Public(), SharedConnections: shared})
	}

	slices.SortFunc(recs, func(a, b Recommendation) int {
		if c := cmp.Compare(b.SharedConnections, a.SharedConnections); c != 0 {
			return c
		}
		return cmp.Compare(a.User.ID, b.User.ID)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// link writes both halves of an active follow: followee.followers gains the
// follower (plus any extra followee ops) and follower.following gains the
// followee.
func (g *SocialGraph) link(ctx context.Context, e Edge, followeeOps []store.Op) error {
	followee := store.Patch{}.Where(store.NotContains(followersField, e.Follower)).
		And(append(followeeOps, store.Add(followersField, e.Follower, nil))...)
	if len(followeeOps) > 0 {
		followee = followee.Where(store.Contains(followRequestsField, e.Follower))
	}
	if err := g.update(ctx, e.Followee, followee); err != nil {
		return err
	}
	return g.update(ctx, e.Follower, store.Patch{}.
		Where(store.NotContains(followingField, e.Followee)).
		And(store.Add(followingField, e.Followee, nil)))
}

func (g *SocialGraph) update(ctx context.Context, userID string, p store.Patch) error {
	_, err := g.store.AtomicUpdate(ctx, store.Users, userID, p)
	if errors.Is(err, store.ErrNotFound) {
		return errors.ErrUserNotFound.WithDetails("user_id=%s", userID)
	}
	return err
}

// loadPair reads both endpoints from the store, bypassing the user cache.
func (g *SocialGraph) loadPair(ctx context.Context, e Edge) (pair, error) {
	follower, err := g.getUser(ctx, e.Follower)
	if err != nil {
		return pair{}, err
	}
	followee, err := g.getUser(ctx, e.Followee)
	if err != nil {
		return pair{}, err
	}
	p := pair{follower: follower, followee: followee, state: StateNone}
	switch {
	case follower.IsFollowing(e.Followee) || slices.Contains(followee.Followers, e.Follower):
		p.state = StateFollowing
	case followee.HasRequestFrom(e.Follower):
		p.state = StatePending
	}
	return p, nil
}

func (g *SocialGraph) getUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := g.store.Get(ctx, store.Users, id, &u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, errors.ErrUserNotFound.WithDetails("user_id=%s", id)
		}
		return models.User{}, err
	}
	return u, nil
}

func (g *SocialGraph) publicUsers(ctx context.Context, ids []string) ([]models.PublicUser, error) {
	out := []models.PublicUser{}
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := g.store.Find(ctx, store.Users, store.Query{IDs: ids}, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		if !u.Deleted() {
			out = append(out, u.Public())
		}
	}
	return out, nil
}

func pairKey(e Edge) string {
	a, b := e.Follower, e.Followee
	if b < a {
		a, b = b, a
	}
	return "follow:" + a + ":" + b
}

func other(e Edge, actor string) string {
	if actor == e.Follower {
		return e.Followee
	}
	return e.Follower
}
