package handlers

import (
	"net/http"

	"campus-server/middleware"
	"campus-server/services"
)

type AuthHandler struct {
	userService *services.UserService
}

func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,pwd"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input registerRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	user, err := h.userService.Register(r.Context(), input.Username, input.Email, input.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"userID": user.ID, "username": user.Username})
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	token, err := h.userService.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
