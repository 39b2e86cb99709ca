package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"campus-server/middleware"
)

type Handlers struct {
	Auth      *AuthHandler
	Monuments *MonumentHandler
	Social    *SocialHandler
	Badges    *BadgeHandler
	Me        *MeHandler
}

type RouterConfig struct {
	JWTSecret    string
	AdminUserIDs []string
}

// NewRouter wires every route. Monument reads and auth are public, monument
// writes need an administrator and the rest need a bearer token.
func NewRouter(h Handlers, cfg RouterConfig, log logrus.FieldLogger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.ErrorMiddleware())

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	// Auth routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Auth.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", h.Auth.LoginUser).Methods("POST", "OPTIONS")

	auth := middleware.JWTMiddleware(cfg.JWTSecret)
	admin := func(next http.HandlerFunc) http.Handler {
		return auth(middleware.RequireAdmin(cfg.AdminUserIDs)(next))
	}

	// Monument reads
	r.HandleFunc("/monuments", h.Monuments.List).Methods("GET", "OPTIONS")
	r.HandleFunc("/monuments/rank", h.Monuments.Rank).Methods("GET", "OPTIONS")
	r.HandleFunc("/monuments/{id}", h.Monuments.Get).Methods("GET", "OPTIONS")
	r.HandleFunc("/monuments/{id}/visited", h.Monuments.Visited).Methods("GET", "OPTIONS")

	// Monument writes
	r.Handle("/monuments", admin(h.Monuments.Create)).Methods("POST", "OPTIONS")
	r.Handle("/monuments/{id}", admin(h.Monuments.Update)).Methods("PUT", "OPTIONS")

	social := r.PathPrefix("/social").Subrouter()
	social.Use(auth)
	social.HandleFunc("/follow", h.Social.Follow).Methods("POST", "OPTIONS")
	social.HandleFunc("/accept", h.Social.Accept).Methods("POST", "OPTIONS")
	social.HandleFunc("/reject", h.Social.Reject).Methods("POST", "OPTIONS")
	social.HandleFunc("/unfollow", h.Social.Unfollow).Methods("POST", "OPTIONS")
	social.HandleFunc("/remove-follower", h.Social.RemoveFollower).Methods("POST", "OPTIONS")
	social.HandleFunc("/state/{id}", h.Social.State).Methods("GET", "OPTIONS")
	social.HandleFunc("/requests", h.Social.PendingRequests).Methods("GET", "OPTIONS")
	social.HandleFunc("/recommendations", h.Social.Recommendations).Methods("GET", "OPTIONS")
	social.HandleFunc("/users/{id}/followers", h.Social.Followers).Methods("GET", "OPTIONS")
	social.HandleFunc("/users/{id}/following", h.Social.Following).Methods("GET", "OPTIONS")

	badges := r.PathPrefix("/badges").Subrouter()
	badges.Use(auth)
	badges.HandleFunc("", h.Badges.Submit).Methods("POST", "OPTIONS")
	badges.HandleFunc("/feed", h.Badges.Feed).Methods("GET", "OPTIONS")
	badges.HandleFunc("/{id}", h.Badges.Get).Methods("GET", "OPTIONS")
	badges.HandleFunc("/{id}/like", h.Badges.ToggleLike).Methods("POST", "OPTIONS")
	badges.HandleFunc("/{id}/like", h.Badges.Unlike).Methods("DELETE", "OPTIONS")
	badges.HandleFunc("/{id}/comments", h.Badges.AddComment).Methods("POST", "OPTIONS")
	badges.HandleFunc("/{id}/comments/{commentID}", h.Badges.DeleteComment).Methods("DELETE", "OPTIONS")

	me := r.PathPrefix("/me").Subrouter()
	me.Use(auth)
	me.HandleFunc("", h.Me.Get).Methods("GET", "OPTIONS")
	me.HandleFunc("", h.Me.Deactivate).Methods("DELETE", "OPTIONS")
	me.HandleFunc("/privacy", h.Me.SetPrivacy).Methods("PUT", "OPTIONS")
	me.HandleFunc("/wishlist", h.Me.AddToWishlist).Methods("POST", "OPTIONS")
	me.HandleFunc("/wishlist/{id}", h.Me.RemoveFromWishlist).Methods("DELETE", "OPTIONS")
	me.HandleFunc("/nearby-unvisited", h.Me.NearbyUnvisited).Methods("GET", "OPTIONS")

	return r
}
