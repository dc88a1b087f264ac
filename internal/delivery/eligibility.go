package delivery

import (
	"errors"
	"fmt"
	"math"

	"github.com/dejobratic/nooks/internal/branches"
)

// MaxDistanceKm is the furthest a delivery address may be from its branch
// when city information is unavailable.
const MaxDistanceKm = 50.0

const earthRadiusKm = 6371.0

var (
	ErrNotDeliverable = errors.New("address is outside the delivery area")
	ErrCityMismatch   = fmt.Errorf("%w: branch does not deliver to this city", ErrNotDeliverable)
	ErrTooFar         = fmt.Errorf("%w: address is too far from the branch", ErrNotDeliverable)
)

// Place is one end of a delivery: a city and optional precise coordinates.
type Place struct {
	City   string
	Coords *branches.Coordinates
}

// CheckEligibility decides whether a branch can deliver to destination. When
// both cities are known they must match. Otherwise, when both coordinate
// pairs are known, the great-circle distance must not exceed MaxDistanceKm.
// A city missing from the alias table, such as a district name, defers to
// coordinates and is compared as text only when coordinates are missing.
// With neither signal available the order is allowed.
func CheckEligibility(origin, destination Place) error {
	originCity := branches.NormalizeCity(origin.City)
	destinationCity := branches.NormalizeCity(destination.City)
	bothCities := originCity != "" && destinationCity != ""
	bothCoords := origin.Coords != nil && destination.Coords != nil
	knownCities := branches.KnownCity(originCity) && branches.KnownCity(destinationCity)

	if bothCities && (knownCities || !bothCoords) {
		if originCity != destinationCity {
			return ErrCityMismatch
		}
		return nil
	}

	if bothCoords {
		if HaversineKm(*origin.Coords, *destination.Coords) > MaxDistanceKm {
			return ErrTooFar
		}
	}
	return nil
}

// HaversineKm is the great-circle distance between a and b.
func HaversineKm(a, b branches.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
