package pricing

import (
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
)

var (
	ErrUnsupportedDurationUnit = apperror.New(http.StatusBadRequest, "duration type must be one of hour, day, week, month")
	ErrInvalidDuration         = apperror.New(http.StatusBadRequest, "duration must be greater than zero")
	ErrUnitNotOffered          = apperror.New(http.StatusBadRequest, "resource does not offer this duration type")
	ErrNegativeRate            = apperror.New(http.StatusBadRequest, "rates cannot be negative")
	ErrNoRates                 = apperror.New(http.StatusBadRequest, "resource has no rate configured")
	ErrPriceOverflow           = apperror.New(http.StatusBadRequest, "price exceeds the supported range")
	ErrZeroPrice               = apperror.New(http.StatusBadRequest, "duration is too short to be priced")
)

// Unit is the granularity a reservation is billed in.
type Unit string

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

// Units lists every recognised unit, shortest first.
var Units = []Unit{UnitHour, UnitDay, UnitWeek, UnitMonth}

// ParseUnit rejects anything outside Units.
func ParseUnit(s string) (Unit, error) {
	for _, u := range Units {
		if string(u) == s {
			return u, nil
		}
	}
	return "", ErrUnsupportedDurationUnit
}

// Money is an amount in the currency's smallest unit (cents).
type Money int64

// FromMajor converts a decimal amount such as 12.5 into Money, rounding half-up
// to the cent. The amount is read in its shortest decimal form, so 0.145 is
// 15 cents even though the nearest float64 is slightly below it.
func FromMajor(amount float64) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrPriceOverflow
	}
	if amount < 0 {
		return 0, ErrNegativeRate
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return 0, ErrPriceOverflow
	}
	return roundCents(r.Mul(r, big.NewRat(100, 1)))
}

// roundCents rounds a non-negative cent amount half-up.
func roundCents(cents *big.Rat) (Money, error) {
	// floor((2n + d) / 2d) is round-half-up for non-negative n/d.
	num := new(big.Int).Mul(cents.Num(), big.NewInt(2))
	num.Add(num, cents.Denom())
	den := new(big.Int).Mul(cents.Denom(), big.NewInt(2))
	rounded := num.Quo(num, den)

	if !rounded.IsInt64() {
		return 0, ErrPriceOverflow
	}
	return Money(rounded.Int64()), nil
}

// Major returns m as a decimal amount, for JSON bodies.
func (m Money) Major() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// RateTable is a resource's price per unit. A zero rate means the unit is not offered.
type RateTable struct {
	Hour  Money
	Day   Money
	Week  Money
	Month Money
}

// Rate returns the configured rate for u.
func (t RateTable) Rate(u Unit) (Money, error) {
	switch u {
	case UnitHour:
		return t.Hour, nil
	case UnitDay:
		return t.Day, nil
	case UnitWeek:
		return t.Week, nil
	case UnitMonth:
		return t.Month, nil
	default:
		return 0, ErrUnsupportedDurationUnit
	}
}

// Validate checks the table can price at least one unit.
func (t RateTable) Validate() error {
	offered := false
	for _, u := range Units {
		rate, _ := t.Rate(u)
		if rate < 0 {
			return ErrNegativeRate
		}
		if rate > 0 {
			offered = true
		}
	}
	if !offered {
		return ErrNoRates
	}
	return nil
}

// CalculatePrice returns duration * rate for unit, rounded half-up to the cent once.
// Fractional durations are multiplied exactly using their shortest decimal form,
// so 1.5 hours at 10.00 is 15.00 rather than whatever binary rounding yields.
func CalculatePrice(table RateTable, duration float64, unit Unit) (Money, error) {
	rate, err := table.Rate(unit)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, ErrInvalidDuration
	}
	if rate < 0 {
		return 0, ErrNegativeRate
	}
	if rate == 0 {
		return 0, ErrUnitNotOffered
	}

	d, ok := new(big.Rat).SetString(strconv.FormatFloat(duration, 'f', -1, 64))
	if !ok {
		return 0, ErrInvalidDuration
	}
	price, err := roundCents(d.Mul(d, new(big.Rat).SetInt64(int64(rate))))
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, ErrZeroPrice
	}
	return price, nil
}
