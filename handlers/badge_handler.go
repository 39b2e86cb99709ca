package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"campus-server/middleware"
	"campus-server/services"
	"campus-server/utils/errors"
)

type BadgeHandler struct {
	badges *services.BadgeService
	ledger *services.InteractionLedger
}

func NewBadgeHandler(badges *services.BadgeService, ledger *services.InteractionLedger) *BadgeHandler {
	return &BadgeHandler{badges: badges, ledger: ledger}
}

type submitBadgeRequest struct {
	FrontImage   string `json:"front_image" validate:"required"`
	BackImage    string `json:"back_image" validate:"required"`
	LocationText string `json:"location" validate:"max=200"`
	MonumentID   string `json:"monument_id"`
}

// Comment length and blankness are domain rules with their own error codes,
// so the body only needs to decode.
type commentRequest struct {
	Text string `json:"text"`
}

func (h *BadgeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input submitBadgeRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	badge, err := h.badges.Submit(r.Context(), userID, services.BadgeSubmission{
		FrontImage:   input.FrontImage,
		BackImage:    input.BackImage,
		LocationText: input.LocationText,
		MonumentID:   input.MonumentID,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, badge)
}

func (h *BadgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	badge, err := h.badges.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

func (h *BadgeHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	feed, err := h.badges.Feed(r.Context(), userID, limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": feed, "count": len(feed)})
}

// ToggleLike flips the caller's like and returns the stored state.
func (h *BadgeHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	state, err := h.ledger.ToggleLike(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *BadgeHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	badge, err := h.ledger.Unlike(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badge.LikeState(userID))
}

func (h *BadgeHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input commentRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	badge, err := h.ledger.AddComment(r.Context(), mux.Vars(r)["id"], userID, input.Text)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, badge)
}

// DeleteComment lets a comment's author remove it.
func (h *BadgeHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	comment, err := h.ledger.Comment(r.Context(), vars["id"], vars["commentID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if comment.CommenterID != userID {
		middleware.WriteError(w, r, errors.ErrUnauthorizedTransition.WithDetails("user_id=%s is not the author of comment_id=%s", userID, comment.ID))
		return
	}
	badge, err := h.ledger.DeleteComment(r.Context(), vars["id"], vars["commentID"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}
