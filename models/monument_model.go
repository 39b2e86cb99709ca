package models

import "campus-server/geo"

// DefaultVisitRadius applies to monuments stored without a geofence radius.
const DefaultVisitRadius = 50.0

type Monument struct {
	ID          string   `json:"id" bson:"_id"`
	Title       string   `json:"title" bson:"title"`
	Description string   `json:"description,omitempty" bson:"description"`
	Location    GeoPoint `json:"location" bson:"location"`
	Radius      float64  `json:"radius,omitempty" bson:"radius,omitempty"` // meters
	Icon        string   `json:"icon,omitempty" bson:"icon,omitempty"`
	// Seq is assigned at creation and orders the set; ranking ties keep it.
	Seq int64 `json:"seq" bson:"seq"`
}

// GeoPoint is a GeoJSON point; Coordinates are [lon, lat].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(p geo.Point) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}}
}

// Point converts the GeoJSON pair. A malformed point maps outside the valid
// range so ranking rejects it instead of treating it as (0,0).
func (g GeoPoint) Point() geo.Point {
	if len(g.Coordinates) != 2 {
		return geo.Point{Lat: 1000, Lon: 1000}
	}
	return geo.Point{Lat: g.Coordinates[1], Lon: g.Coordinates[0]}
}

func (m Monument) Point() geo.Point { return m.Location.Point() }
