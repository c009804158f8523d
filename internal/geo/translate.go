// Package geo implements the spherical-earth geodesic helpers used to lay out scan points.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

// EarthRadiusKm is the mean Earth radius used for all displacement math (kilometres).
const EarthRadiusKm = 6378.1

var ErrNonFinite = errors.New("non-finite input")

// Translate moves origin distanceM meters along bearingDeg (0 = north, clockwise)
// on a sphere of radius EarthRadiusKm. Longitudes are not normalized.
func Translate(origin model.Coordinate, bearingDeg, distanceM float64) (model.Coordinate, error) {
	if err := finite("latitude", origin.Lat); err != nil {
		return model.Coordinate{}, err
	}
	if err := finite("longitude", origin.Lon); err != nil {
		return model.Coordinate{}, err
	}
	if err := finite("bearing", bearingDeg); err != nil {
		return model.Coordinate{}, err
	}
	if err := finite("distance", distanceM); err != nil {
		return model.Coordinate{}, err
	}

	brng := toRad(bearingDeg)
	ang := (distanceM / 1000) / EarthRadiusKm
	lat1 := toRad(origin.Lat)
	lon1 := toRad(origin.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) +
		math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	return model.Coordinate{Lat: toDeg(lat2), Lon: toDeg(lon2)}, nil
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b model.Coordinate) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLat := lat2 - lat1
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * 1000 * math.Asin(math.Min(1, math.Sqrt(h)))
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s %v: %w", name, v, ErrNonFinite)
	}
	return nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
