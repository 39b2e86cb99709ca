package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"campus-server/middleware"
	"campus-server/services"
)

// MeHandler serves the authenticated caller's own account.
type MeHandler struct {
	users       *services.UserService
	badges      *services.BadgeService
	selector    *services.RecommendationSelector
	defaultTopK int
}

func NewMeHandler(users *services.UserService, badges *services.BadgeService, selector *services.RecommendationSelector, defaultTopK int) *MeHandler {
	return &MeHandler{users: users, badges: badges, selector: selector, defaultTopK: defaultTopK}
}

type privacyRequest struct {
	Private *bool `json:"private" validate:"required"`
}

type wishlistRequest struct {
	MonumentID string `json:"monument_id" validate:"required"`
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.LiveUser(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	badges, err := h.badges.ListByOwner(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "badges": badges})
}

func (h *MeHandler) SetPrivacy(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input privacyRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	user, err := h.users.SetPrivacy(r.Context(), userID, *input.Private)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *MeHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input wishlistRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	user, err := h.users.AddToWishlist(r.Context(), userID, input.MonumentID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": user.Wishlist})
}

func (h *MeHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.RemoveFromWishlist(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": user.Wishlist})
}

// NearbyUnvisited ranks monuments around lat/lon that are not on the
// caller's wishlist.
func (h *MeHandler) NearbyUnvisited(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	origin, err := queryPoint(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	k, err := queryInt(r, "k", h.defaultTopK)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	ranked, err := h.selector.NearbyUnvisited(r.Context(), userID, origin, k)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RankResponse{
		Monuments: toRanked(origin, ranked),
		Count:     len(ranked),
		Lat:       origin.Lat,
		Lon:       origin.Lon,
	})
}

func (h *MeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.users.Deactivate(r.Context(), userID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
