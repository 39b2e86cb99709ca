package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"campus-server/middleware"
	"campus-server/services"
)

type SocialHandler struct {
	graph    *services.SocialGraph
	selector *services.RecommendationSelector
}

func NewSocialHandler(graph *services.SocialGraph, selector *services.RecommendationSelector) *SocialHandler {
	return &SocialHandler{graph: graph, selector: selector}
}

type targetRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type transitionFunc func(ctx context.Context, actor, other string) (services.Relation, error)

// transition decodes the other party from the body and runs op for the
// authenticated caller.
func (h *SocialHandler) transition(w http.ResponseWriter, r *http.Request, op transitionFunc) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input targetRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	rel, err := op(r.Context(), actor, input.UserID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// Follow sends a follow request; public accounts accept immediately.
func (h *SocialHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.graph.RequestFollow)
}

func (h *SocialHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.graph.AcceptFollow)
}

func (h *SocialHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.graph.RejectFollow)
}

func (h *SocialHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.graph.Unfollow)
}

func (h *SocialHandler) RemoveFollower(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.graph.RemoveFollower)
}

// State reports the caller's relation to {id}.
func (h *SocialHandler) State(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	rel, err := h.graph.State(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *SocialHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	pending, err := h.graph.PendingRequests(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": pending, "count": len(pending)})
}

func (h *SocialHandler) Followers(w http.ResponseWriter, r *http.Request) {
	users, err := h.graph.Followers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followers": users, "count": len(users)})
}

func (h *SocialHandler) Following(w http.ResponseWriter, r *http.Request) {
	users, err := h.graph.Following(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"following": users, "count": len(users)})
}

func (h *SocialHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	recs, err := h.selector.PeopleYouMayKnow(r.Context(), userID, limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs, "count": len(recs)})
}
