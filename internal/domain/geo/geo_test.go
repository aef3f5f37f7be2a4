package geo

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
)

func TestValidatePing(t *testing.T) {
	Convey("Given ping validation", t, func() {
		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		valid := model.LocationPing{EntityID: " u1 ", Latitude: 40, Longitude: -3, ObservedAt: at, VenueID: "v1"}

		Convey("When the ping is well formed", func() {
			p := valid
			err := ValidatePing(&p)

			Convey("Then it passes and ids are trimmed", func() {
				So(err, ShouldBeNil)
				So(p.EntityID, ShouldEqual, "u1")
			})
		})

		Convey("When the boundaries are used exactly", func() {
			for _, c := range [][2]float64{{90, 180}, {-90, -180}, {0, 0}} {
				p := valid
				p.Latitude, p.Longitude = c[0], c[1]
				So(ValidatePing(&p), ShouldBeNil)
			}
		})

		Convey("When coordinates are malformed", func() {
			bad := [][2]float64{
				{math.NaN(), 0},
				{0, math.NaN()},
				{math.Inf(1), 0},
				{0, math.Inf(-1)},
				{90.0001, 0},
				{-91, 0},
				{0, 180.5},
				{0, -181},
			}

			Convey("Then each is a validation error", func() {
				for _, c := range bad {
					p := valid
					p.Latitude, p.Longitude = c[0], c[1]
					err := ValidatePing(&p)
					So(err, ShouldNotBeNil)
					So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
				}
			})
		})

		Convey("When required fields are missing", func() {
			noEntity := valid
			noEntity.EntityID = "   "
			noTime := valid
			noTime.ObservedAt = time.Time{}

			Convey("Then validation names the field", func() {
				err := ValidatePing(&noEntity)
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "EntityID")

				err = ValidatePing(&noTime)
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "ObservedAt")
			})
		})

		Convey("When the ping is nil", func() {
			So(errors.Is(ValidatePing(nil), errkind.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestRoundAndBin(t *testing.T) {
	cases := []struct {
		in   float64
		prec int
		want float64
	}{
		{40.00004, 4, 40.0},
		{-3.00016, 4, -3.0002},
		{12.3456789, 2, 12.35},
	}
	for _, c := range cases {
		if got := Round(c.in, c.prec); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("Round(%v,%d) = %v, want %v", c.in, c.prec, got, c.want)
		}
	}

	cell := Bin(40.12344, -3.98765, 4)
	if cell.Latitude != Round(40.12344, 4) || cell.Longitude != Round(-3.98765, 4) {
		t.Errorf("unexpected bin %+v", cell)
	}
}

func TestDistances(t *testing.T) {
	Convey("Given two cells", t, func() {
		a := model.Cell{Latitude: 40.0, Longitude: -3.0}
		b := model.Cell{Latitude: 40.003, Longitude: -3.004}

		Convey("Then the planar distance is the degree hypotenuse", func() {
			So(EuclideanDegrees(a, b), ShouldAlmostEqual, 0.005, 1e-9)
			So(EuclideanDegrees(a, a), ShouldEqual, 0)
		})

		Convey("Then the great-circle distance is a few hundred metres", func() {
			d := HaversineMeters(a, b)
			So(d, ShouldBeGreaterThan, 400)
			So(d, ShouldBeLessThan, 500)
		})
	})
}
