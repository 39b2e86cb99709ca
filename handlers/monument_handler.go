package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"campus-server/geo"
	"campus-server/middleware"
	"campus-server/models"
	"campus-server/ranking"
	"campus-server/services"
)

type MonumentHandler struct {
	monuments   *services.MonumentService
	defaultTopK int
}

func NewMonumentHandler(monuments *services.MonumentService, defaultTopK int) *MonumentHandler {
	return &MonumentHandler{monuments: monuments, defaultTopK: defaultTopK}
}

// RankedMonument is one entry of a proximity ranking. BearingDeg points the
// client's compass arrow from the origin toward the monument.
type RankedMonument struct {
	models.Monument
	DistanceKm float64 `json:"distance_km"`
	BearingDeg float64 `json:"bearing_deg"`
}

type RankResponse struct {
	Monuments []RankedMonument `json:"monuments"`
	Count     int              `json:"count"`
	Lat       float64          `json:"lat"`
	Lon       float64          `json:"lon"`
}

// toRanked runs after ranking has validated every point, so the bearing
// cannot fail.
func toRanked(origin geo.Point, ranked []ranking.Ranked[models.Monument]) []RankedMonument {
	out := make([]RankedMonument, len(ranked))
	for i, r := range ranked {
		bearing, _ := geo.InitialBearing(origin, r.Item.Point())
		out[i] = RankedMonument{Monument: r.Item, DistanceKm: r.DistanceKm, BearingDeg: bearing}
	}
	return out
}

// monumentLocation uses pointers so an omitted coordinate is rejected
// instead of decoding to 0.
type monumentLocation struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

func (l monumentLocation) point() geo.Point {
	return geo.Point{Lat: *l.Lat, Lon: *l.Lon}
}

type createMonumentRequest struct {
	ID          string            `json:"id"`
	Title       string            `json:"title" validate:"required,max=120"`
	Description string            `json:"description"`
	Location    *monumentLocation `json:"location" validate:"required"`
	Radius      float64           `json:"radius" validate:"gte=0"`
	Icon        string            `json:"icon"`
}

type updateMonumentRequest struct {
	Title       *string           `json:"title" validate:"omitempty,max=120"`
	Description *string           `json:"description"`
	Location    *monumentLocation `json:"location"`
	Radius      *float64          `json:"radius" validate:"omitempty,gte=0"`
	Icon        *string           `json:"icon"`
}

func (h *MonumentHandler) List(w http.ResponseWriter, r *http.Request) {
	monuments, err := h.monuments.List(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monuments": monuments, "count": len(monuments)})
}

func (h *MonumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.monuments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Rank returns the k closest monuments to lat/lon. k=0 returns all of them.
func (h *MonumentHandler) Rank(w http.ResponseWriter, r *http.Request) {
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

	ranked, err := h.monuments.RankMonuments(r.Context(), origin, k)
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

func (h *MonumentHandler) Visited(w http.ResponseWriter, r *http.Request) {
	origin, err := queryPoint(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	visited, d, err := h.monuments.Visited(r.Context(), origin, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monument_id": id, "visited": visited, "distance_km": d})
}

func (h *MonumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input createMonumentRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	m, err := h.monuments.Create(r.Context(), models.Monument{
		ID:          input.ID,
		Title:       input.Title,
		Description: input.Description,
		Location:    models.NewGeoPoint(input.Location.point()),
		Radius:      input.Radius,
		Icon:        input.Icon,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MonumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input updateMonumentRequest
	if err := decodeBody(r, &input); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	u := services.MonumentUpdate{
		Title:       input.Title,
		Description: input.Description,
		Radius:      input.Radius,
		Icon:        input.Icon,
	}
	if input.Location != nil {
		p := input.Location.point()
		u.Location = &p
	}
	m, err := h.monuments.Update(r.Context(), mux.Vars(r)["id"], u)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
