package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"campus-server/geo"
	"campus-server/middleware"
	"campus-server/utils/errors"
	"campus-server/utils/validation"
)

var validate = validation.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body into v and runs its validate tags.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validation.ToAPIError(err)
	}
	return validation.ToAPIError(validate.Struct(v))
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, errors.ErrUnauthorized)
	}
	return userID, ok
}

// queryPoint parses lat and lon query parameters. Range checks are left to
// the geo package so the error carries the domain code.
func queryPoint(r *http.Request) (geo.Point, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return geo.Point{}, errors.ErrInvalidInput.WithDetails("lat: %q is not a number", r.URL.Query().Get("lat"))
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		return geo.Point{}, errors.ErrInvalidInput.WithDetails("lon: %q is not a number", r.URL.Query().Get("lon"))
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

// queryInt returns def when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.ErrInvalidInput.WithDetails("%s: %q is not a non-negative integer", name, raw)
	}
	return n, nil
}
