// Package geo holds coordinate validation, binning and distance helpers.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/s2"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidCoordinates reports whether lat/lng are finite and within
// [-90,90] and [-180,180].
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

// ValidatePing rejects pings with a missing entity, a zero timestamp or
// malformed coordinates. The returned error is of kind errkind.ErrValidation.
func ValidatePing(p *model.LocationPing) error {
	const op = "geo.validate_ping"
	if p == nil {
		return errkind.New(op, errkind.ErrValidation, "ping is nil")
	}
	p.EntityID = strings.TrimSpace(p.EntityID)
	p.VenueID = strings.TrimSpace(p.VenueID)
	if !ValidCoordinates(p.Latitude, p.Longitude) {
		return errkind.New(op, errkind.ErrValidation,
			fmt.Sprintf("coordinates out of range: (%v, %v)", p.Latitude, p.Longitude))
	}
	if err := getValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return errkind.New(op, errkind.ErrValidation, strings.Join(fields, "; "))
		}
		return errkind.Wrap(op, errkind.ErrValidation, err)
	}
	return nil
}

// Round rounds v to the given number of decimal places.
func Round(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

// Bin rounds a coordinate pair to the given precision.
func Bin(lat, lng float64, precision int) model.Cell {
	return model.Cell{Latitude: Round(lat, precision), Longitude: Round(lng, precision)}
}

// EuclideanDegrees is the planar distance between two cells in raw degree units.
// It ignores longitude convergence and is only meaningful for small spans.
func EuclideanDegrees(a, b model.Cell) float64 {
	pa := r2.Point{X: a.Longitude, Y: a.Latitude}
	pb := r2.Point{X: b.Longitude, Y: b.Latitude}
	return pa.Sub(pb).Norm()
}

// HaversineMeters is the great-circle distance between two cells in metres.
func HaversineMeters(a, b model.Cell) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
