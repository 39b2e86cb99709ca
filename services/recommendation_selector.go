package services

import (
	"context"

	"campus-server/geo"
	"campus-server/models"
	"campus-server/ranking"
)

// RecommendationSelector composes the social graph and the proximity ranker
// into suggestion lists. It never writes.
type RecommendationSelector struct {
	graph     *SocialGraph
	monuments *MonumentService
	users     *UserService
}

func NewRecommendationSelector(graph *SocialGraph, monuments *MonumentService, users *UserService) *RecommendationSelector {
	return &RecommendationSelector{graph: graph, monuments: monuments, users: users}
}

// NearbyUnvisited ranks the monument set from origin and drops monuments
// already on userID's wishlist. k <= 0 keeps every candidate.
func (r *RecommendationSelector) NearbyUnvisited(ctx context.Context, userID string, origin geo.Point, k int) ([]ranking.Ranked[models.Monument], error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	user, err := r.users.LiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	monuments, err := r.monuments.List(ctx)
	if err != nil {
		return nil, err
	}
	return SelectUnvisited(origin, monuments, user.Wishlist, k)
}

// SelectUnvisited is the pure core of NearbyUnvisited. k applies after the
// wishlist filter so the caller still gets k candidates when some nearby
// monuments are already wished for.
func SelectUnvisited(origin geo.Point, monuments []models.Monument, wishlist []string, k int) ([]ranking.Ranked[models.Monument], error) {
	ranked, err := ranking.Rank(origin, monuments, ranking.All)
	if err != nil {
		return nil, err
	}
	wished := make(map[string]struct{}, len(wishlist))
	for _, id := range wishlist {
		wished[id] = struct{}{}
	}
	out := make([]ranking.Ranked[models.Monument], 0, len(ranked))
	for _, rm := range ranked {
		if _, ok := wished[rm.Item.ID]; ok {
			continue
		}
		out = append(out, rm)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out, nil
}

// PeopleYouMayKnow is SocialGraph.Recommend.
func (r *RecommendationSelector) PeopleYouMayKnow(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	return r.graph.Recommend(ctx, userID, limit)
}
