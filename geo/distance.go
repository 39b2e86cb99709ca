// Package geo holds the pure distance and bearing math used for monument
// ranking and geofence checks. Nothing here keeps state.
package geo

import (
	"math"

	"campus-server/utils/errors"
)

const EarthRadiusKm = 6371.0

// Point is a (latitude, longitude) pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// Validate fails with ErrInvalidCoordinate when p is outside
// [-90,90] x [-180,180] or not a number.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) ||
		p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return errors.ErrInvalidCoordinate.WithDetails("lat=%f, lon=%f", p.Lat, p.Lon)
	}
	return nil
}

// DistanceKm returns the great-circle distance between p1 and p2 using the
// haversine formula.
func DistanceKm(p1, p2 Point) (float64, error) {
	if err := p1.Validate(); err != nil {
		return 0, err
	}
	if err := p2.Validate(); err != nil {
		return 0, err
	}
	return haversine(p1, p2), nil
}

func haversine(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLat := toRadians(p2.Lat - p1.Lat)
	dLon := toRadians(p2.Lon - p1.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, a)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// InitialBearing returns the forward azimuth from p1 to p2 in degrees,
// normalized to [0, 360).
func InitialBearing(p1, p2 Point) (float64, error) {
	if err := p1.Validate(); err != nil {
		return 0, err
	}
	if err := p2.Validate(); err != nil {
		return 0, err
	}
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLon := toRadians(p2.Lon - p1.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := toDegrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360), nil
}

// Within reports whether p lies inside the circle of radiusMeters around center.
func Within(center, p Point, radiusMeters float64) (bool, error) {
	d, err := DistanceKm(center, p)
	if err != nil {
		return false, err
	}
	return d*1000 <= radiusMeters, nil
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
