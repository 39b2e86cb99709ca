package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campus-server/models"
	"campus-server/services"
	"campus-server/store"
	"campus-server/utils/logger"
)

const (
	testSecret  = "handler-test-secret"
	testAdminID = "admin"
)

type testServer struct {
	router http.Handler
	store  *store.MemoryStore
	users  *services.UserService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	docs := store.NewMemoryStore()
	cache := store.NewMemoryCache()
	events := services.NopPublisher{}

	users := services.NewUserService(docs, cache, services.UserServiceConfig{JWTSecret: testSecret, TokenTTL: time.Hour}, log)
	monuments := services.NewMonumentService(docs, cache, time.Hour, log)
	badges := services.NewBadgeService(docs, users, monuments, log)
	ledger := services.NewInteractionLedger(docs, users, events, log)
	graph := services.NewSocialGraph(docs, store.NewKeyedMutex(), users, events, log)
	selector := services.NewRecommendationSelector(graph, monuments, users)

	if _, err := monuments.Seed(context.Background(), "../data/monuments.json"); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(Handlers{
		Auth:      NewAuthHandler(users),
		Monuments: NewMonumentHandler(monuments, 3),
		Social:    NewSocialHandler(graph, selector),
		Badges:    NewBadgeHandler(badges, ledger),
		Me:        NewMeHandler(users, badges, selector, 3),
	}, RouterConfig{JWTSecret: testSecret, AdminUserIDs: []string{testAdminID}}, log)
	return &testServer{router: router, store: docs, users: users}
}

// addUser stores an account and returns a bearer token for it.
func (s *testServer) addUser(t *testing.T, id string, private bool) string {
	t.Helper()
	u := models.User{
		ID:             id,
		Username:       "user-" + id,
		Private:        private,
		Following:      []string{},
		Followers:      []string{},
		FollowRequests: []string{},
		Wishlist:       []string{},
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Insert(context.Background(), store.Users, u); err != nil {
		t.Fatal(err)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": id,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if got := decodeResponse[errorBody](t, rec); got.Code != code {
		t.Errorf("code = %s, want %s", got.Code, code)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/auth/register", "", map[string]string{
		"username": "boiler",
		"email":    "boiler@purdue.edu",
		"password": "hunter222",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "boiler", "password": "hunter222"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	token := decodeResponse[map[string]string](t, rec)["token"]

	rec = s.do(t, "GET", "/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", rec.Code, rec.Body.String())
	}
	me := decodeResponse[struct {
		User models.User `json:"user"`
	}](t, rec)
	if me.User.Username != "boiler" {
		t.Errorf("me = %+v", me.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks the password hash")
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"short password", map[string]string{"username": "boiler", "password": "short"}},
		{"missing username", map[string]string{"password": "hunter222"}},
		{"bad email", map[string]string{"username": "boiler", "email": "nope", "password": "hunter222"}},
		{"not json", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(t, "POST", "/auth/register", "", tt.body), http.StatusBadRequest, "INVALID_INPUT")
		})
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	expectError(t, s.do(t, "GET", "/me", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, s.do(t, "GET", "/me", "garbage", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, s.do(t, "POST", "/monuments", "", map[string]string{"title": "x"}), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRankEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/monuments/rank?lat=40.4273&lon=-86.9132&k=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[RankResponse](t, rec)
	if resp.Count != 1 || resp.Monuments[0].ID != "m02-walc" {
		t.Fatalf("rank = %+v", resp)
	}
	if b := resp.Monuments[0].BearingDeg; b < 0 || b >= 360 {
		t.Errorf("bearing = %v", b)
	}

	rec = s.do(t, "GET", "/monuments/rank?lat=40.4273&lon=-86.9132", "", nil)
	if resp := decodeResponse[RankResponse](t, rec); resp.Count != 3 {
		t.Errorf("default k returned %d monuments", resp.Count)
	}

	expectError(t, s.do(t, "GET", "/monuments/rank?lat=95&lon=0", "", nil), http.StatusBadRequest, "INVALID_COORDINATE")
	expectError(t, s.do(t, "GET", "/monuments/rank?lat=abc&lon=0", "", nil), http.StatusBadRequest, "INVALID_INPUT")
	expectError(t, s.do(t, "GET", "/monuments/rank?lat=0&lon=0&k=-1", "", nil), http.StatusBadRequest, "INVALID_INPUT")
}

func TestMonumentReadsAndWrites(t *testing.T) {
	s := newTestServer(t)
	token := s.addUser(t, testAdminID, false)

	rec := s.do(t, "GET", "/monuments/m03-pmu", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	expectError(t, s.do(t, "GET", "/monuments/nope", "", nil), http.StatusNotFound, "MONUMENT_NOT_FOUND")

	rec = s.do(t, "GET", "/monuments/m02-walc/visited?lat=40.4273&lon=-86.9132", "", nil)
	if got := decodeResponse[map[string]any](t, rec); got["visited"] != true {
		t.Errorf("visited = %v", got)
	}

	rec = s.do(t, "POST", "/monuments", token, map[string]any{
		"title":    "Neil Armstrong Hall",
		"location": map[string]float64{"lat": 40.4310, "lon": -86.9149},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeResponse[models.Monument](t, rec)

	rec = s.do(t, "PUT", "/monuments/"+created.ID, token, map[string]any{"title": "Armstrong Hall"})
	if got := decodeResponse[models.Monument](t, rec); got.Title != "Armstrong Hall" {
		t.Errorf("updated = %+v", got)
	}

	expectError(t, s.do(t, "POST", "/monuments", token, map[string]any{
		"title":    "Nowhere",
		"location": map[string]float64{"lat": 120, "lon": 0},
	}), http.StatusBadRequest, "INVALID_INPUT")
}

func TestMonumentCreateRequiresLocation(t *testing.T) {
	s := newTestServer(t)
	token := s.addUser(t, testAdminID, false)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no location", map[string]any{"title": "Floating Hall"}},
		{"empty location", map[string]any{"title": "Floating Hall", "location": map[string]any{}}},
		{"no longitude", map[string]any{"title": "Floating Hall", "location": map[string]float64{"lat": 40.43}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(t, "POST", "/monuments", token, tt.body), http.StatusBadRequest, "INVALID_INPUT")
		})
	}

	rec := s.do(t, "PUT", "/monuments/m01-bell-tower", token, map[string]any{"location": map[string]float64{"lon": -86.9}})
	expectError(t, rec, http.StatusBadRequest, "INVALID_INPUT")
}

func TestMonumentWritesNeedAdmin(t *testing.T) {
	s := newTestServer(t)
	student := s.addUser(t, "random-student", false)

	expectError(t, s.do(t, "PUT", "/monuments/m01-bell-tower", student, map[string]any{"title": "Defaced"}),
		http.StatusForbidden, "FORBIDDEN")
	expectError(t, s.do(t, "POST", "/monuments", student, map[string]any{
		"title":    "Fake Statue",
		"location": map[string]float64{"lat": 40.43, "lon": -86.91},
	}), http.StatusForbidden, "FORBIDDEN")

	rec := s.do(t, "GET", "/monuments/m01-bell-tower", "", nil)
	if got := decodeResponse[models.Monument](t, rec); got.Title != "Purdue Bell Tower" {
		t.Errorf("title = %q after rejected edit", got.Title)
	}
}

func TestFollowFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.addUser(t, "alice", false)
	bob := s.addUser(t, "bob", true)

	rec := s.do(t, "POST", "/social/follow", alice, map[string]string{"user_id": "bob"})
	if got := decodeResponse[services.Relation](t, rec); got.State != services.StatePending {
		t.Fatalf("follow = %+v", got)
	}
	expectError(t, s.do(t, "POST", "/social/follow", alice, map[string]string{"user_id": "bob"}), http.StatusConflict, "DUPLICATE_REQUEST")
	expectError(t, s.do(t, "POST", "/social/follow", alice, map[string]string{"user_id": "alice"}), http.StatusConflict, "SELF_RELATION")

	rec = s.do(t, "GET", "/social/requests", bob, nil)
	if got := decodeResponse[map[string]any](t, rec); got["count"] != float64(1) {
		t.Errorf("requests = %v", got)
	}

	rec = s.do(t, "POST", "/social/accept", bob, map[string]string{"user_id": "alice"})
	if got := decodeResponse[services.Relation](t, rec); got.State != services.StateFollowing {
		t.Fatalf("accept = %+v", got)
	}
	expectError(t, s.do(t, "POST", "/social/accept", bob, map[string]string{"user_id": "alice"}), http.StatusConflict, "INVALID_TRANSITION")

	rec = s.do(t, "GET", "/social/state/bob", alice, nil)
	if got := decodeResponse[services.Relation](t, rec); got.State != services.StateFollowing {
		t.Errorf("state = %+v", got)
	}

	rec = s.do(t, "POST", "/social/remove-follower", bob, map[string]string{"user_id": "alice"})
	if got := decodeResponse[services.Relation](t, rec); got.State != services.StateNone {
		t.Errorf("remove follower = %+v", got)
	}
	expectError(t, s.do(t, "POST", "/social/unfollow", alice, map[string]string{"user_id": "bob"}), http.StatusConflict, "INVALID_TRANSITION")
	expectError(t, s.do(t, "POST", "/social/follow", alice, map[string]string{}), http.StatusBadRequest, "INVALID_INPUT")
}

func TestBadgeInteractions(t *testing.T) {
	s := newTestServer(t)
	owner := s.addUser(t, "owner", false)
	fan := s.addUser(t, "fan", false)

	rec := s.do(t, "POST", "/badges", owner, map[string]string{
		"front_image": "f.jpg",
		"back_image":  "b.jpg",
		"monument_id": "m01-bell-tower",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	badge := decodeResponse[models.Badge](t, rec)
	base := "/badges/" + badge.ID

	rec = s.do(t, "POST", base+"/like", fan, nil)
	if got := decodeResponse[models.BadgeLikeState](t, rec); !got.Liked || got.LikeCount != 1 {
		t.Errorf("first toggle = %+v", got)
	}
	rec = s.do(t, "POST", base+"/like", fan, nil)
	if got := decodeResponse[models.BadgeLikeState](t, rec); got.Liked || got.LikeCount != 0 {
		t.Errorf("second toggle = %+v", got)
	}
	rec = s.do(t, "DELETE", base+"/like", fan, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("unlike of absent like status = %d", rec.Code)
	}

	expectError(t, s.do(t, "POST", base+"/comments", fan, map[string]string{"text": "   "}), http.StatusBadRequest, "EMPTY_COMMENT")
	expectError(t, s.do(t, "POST", base+"/comments", fan, map[string]string{"text": strings.Repeat("x", 201)}), http.StatusBadRequest, "COMMENT_TOO_LONG")

	rec = s.do(t, "POST", base+"/comments", fan, map[string]string{"text": "great shot"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment status = %d: %s", rec.Code, rec.Body.String())
	}
	commentID := decodeResponse[models.Badge](t, rec).Comments[0].ID

	expectError(t, s.do(t, "DELETE", base+"/comments/"+commentID, owner, nil), http.StatusForbidden, "UNAUTHORIZED_TRANSITION")
	rec = s.do(t, "DELETE", base+"/comments/"+commentID, fan, nil)
	if got := decodeResponse[models.Badge](t, rec); len(got.Comments) != 0 {
		t.Errorf("comments after delete = %+v", got.Comments)
	}
	expectError(t, s.do(t, "DELETE", base+"/comments/"+commentID, fan, nil), http.StatusNotFound, "COMMENT_NOT_FOUND")
	expectError(t, s.do(t, "POST", "/badges/nope/like", fan, nil), http.StatusNotFound, "BADGE_NOT_FOUND")
}

func TestWishlistAndNearbyUnvisited(t *testing.T) {
	s := newTestServer(t)
	token := s.addUser(t, "me", false)

	rec := s.do(t, "POST", "/me/wishlist", token, map[string]string{"monument_id": "m02-walc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("wishlist status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, "GET", "/me/nearby-unvisited?lat=40.4273&lon=-86.9132&k=1", token, nil)
	resp := decodeResponse[RankResponse](t, rec)
	if resp.Count != 1 || resp.Monuments[0].ID != "m01-bell-tower" {
		t.Errorf("nearby unvisited = %+v", resp)
	}

	rec = s.do(t, "DELETE", "/me/wishlist/m02-walc", token, nil)
	if got := decodeResponse[map[string][]string](t, rec); len(got["wishlist"]) != 0 {
		t.Errorf("wishlist after delete = %v", got)
	}

	rec = s.do(t, "PUT", "/me/privacy", token, map[string]bool{"private": true})
	if got := decodeResponse[models.User](t, rec); !got.Private {
		t.Errorf("privacy = %+v", got)
	}
	expectError(t, s.do(t, "PUT", "/me/privacy", token, map[string]string{}), http.StatusBadRequest, "INVALID_INPUT")

	rec = s.do(t, "DELETE", "/me", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d", rec.Code)
	}
	expectError(t, s.do(t, "GET", "/me", token, nil), http.StatusNotFound, "USER_NOT_FOUND")
}
