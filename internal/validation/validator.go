// Package validation applies the business rules that decide whether a GPS
// record is trustworthy enough to forward to MININTER. Every rule is checked
// for every record so operators see the complete list of violations, not just
// the first one.
package validation

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"mininter-gps-proxy/backend/internal/gps"
)

// Violation rule types.
const (
	RuleMissingField          = "MISSING_FIELD"
	RuleEmptyField            = "EMPTY_FIELD"
	RuleInvalidLatitude       = "INVALID_LATITUDE"
	RuleInvalidLongitude      = "INVALID_LONGITUDE"
	RuleSuspiciousCoordinates = "SUSPICIOUS_COORDINATES"
	RuleOutOfBounds           = "COORDINATES_OUT_OF_BOUNDS"
	RuleTimestampTooOld       = "TIMESTAMP_TOO_OLD"
	RuleTimestampInFuture     = "TIMESTAMP_IN_FUTURE"
	RuleInvalidDateTimeFormat = "INVALID_DATETIME_FORMAT"
	RuleInvalidIMEILength     = "INVALID_IMEI_LENGTH"
	RuleIMEIAllZeros          = "IMEI_ALL_ZEROS"
	RuleInvalidSpeed          = "INVALID_SPEED"
	RuleInvalidCourse         = "INVALID_COURSE"
	RuleInvalidBattery        = "INVALID_BATTERY"
)

// requiredFields must be present and non-empty on every record.
var requiredFields = []string{"imei", "lat", "lng", "dt_server"}

// suspiciousThreshold flags coordinates hugging the null island origin, a
// common symptom of a GPS module that never got a fix.
const suspiciousThreshold = 0.001

// maxClockSkew is how far into the future a capture time may drift before it
// is rejected.
const maxClockSkew = time.Hour

// Violation describes one failed rule on one record.
type Violation struct {
	Type    string `json:"type"`
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// InvalidRecord pairs a rejected record with everything wrong with it.
type InvalidRecord struct {
	Index      int         `json:"index"`
	Record     gps.Record  `json:"record"`
	Violations []Violation `json:"violations"`
}

// Result is the outcome of validating a batch.
type Result struct {
	Valid        []gps.Record    `json:"-"`
	Invalid      []InvalidRecord `json:"invalid,omitempty"`
	Total        int             `json:"total"`
	ValidCount   int             `json:"valid_count"`
	InvalidCount int             `json:"invalid_count"`
	// SuccessRate is valid/total as a percentage rounded to two decimals,
	// zero for an empty batch.
	SuccessRate float64 `json:"success_rate"`
}

// Config carries the tunable validation thresholds.
type Config struct {
	// LatMin..LngMax form the accepted geographic bounding box.
	LatMin, LatMax float64
	LngMin, LngMax float64
	// MaxSpeedKMH is the highest plausible speed.
	MaxSpeedKMH float64
	// MinYear is the earliest accepted capture-time year.
	MinYear int
}

// Validator checks records against the configured rules.
type Validator struct {
	cfg      Config
	minEpoch time.Time
	now      func() time.Time
}

// New returns a Validator for the given thresholds.
func New(cfg Config) *Validator {
	return &Validator{
		cfg:      cfg,
		minEpoch: time.Date(cfg.MinYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		now:      time.Now,
	}
}

// SetClock overrides the validator's clock. Used by tests.
func (v *Validator) SetClock(now func() time.Time) { v.now = now }

// Validate partitions records into valid and invalid, collecting every
// violation per record.
func (v *Validator) Validate(records []gps.Record) Result {
	res := Result{Total: len(records)}
	for i, rec := range records {
		violations := v.check(rec)
		if len(violations) == 0 {
			res.Valid = append(res.Valid, rec)
		} else {
			res.Invalid = append(res.Invalid, InvalidRecord{Index: i, Record: rec, Violations: violations})
		}
	}
	res.ValidCount = len(res.Valid)
	res.InvalidCount = len(res.Invalid)
	res.SuccessRate = successRate(res.ValidCount, res.Total)
	return res
}

func (v *Validator) check(rec gps.Record) []Violation {
	var violations []Violation

	for _, field := range requiredFields {
		if !rec.Has(field) {
			violations = append(violations, Violation{
				Type:    RuleMissingField,
				Field:   field,
				Message: fmt.Sprintf("required field %s is missing", field),
			})
		} else if rec.Empty(field) {
			violations = append(violations, Violation{
				Type:    RuleEmptyField,
				Field:   field,
				Message: fmt.Sprintf("required field %s is empty", field),
			})
		}
	}

	violations = append(violations, v.checkCoordinates(rec)...)
	violations = append(violations, v.checkCaptureTime(rec)...)
	violations = append(violations, v.checkIMEI(rec)...)
	violations = append(violations, v.checkOptionalRanges(rec)...)

	return violations
}

func (v *Validator) checkCoordinates(rec gps.Record) []Violation {
	var violations []Violation

	lat, latOK := rec.Float("lat")
	if rec.Has("lat") && !rec.Empty("lat") && (!latOK || lat < -90 || lat > 90) {
		violations = append(violations, Violation{
			Type:    RuleInvalidLatitude,
			Field:   "lat",
			Value:   rec.String("lat"),
			Message: "latitude must be a number in [-90, 90]",
		})
		latOK = false
	}
	lng, lngOK := rec.Float("lng")
	if rec.Has("lng") && !rec.Empty("lng") && (!lngOK || lng < -180 || lng > 180) {
		violations = append(violations, Violation{
			Type:    RuleInvalidLongitude,
			Field:   "lng",
			Value:   rec.String("lng"),
			Message: "longitude must be a number in [-180, 180]",
		})
		lngOK = false
	}
	if !latOK || !lngOK {
		return violations
	}

	if math.Abs(lat) < suspiciousThreshold && math.Abs(lng) < suspiciousThreshold {
		violations = append(violations, Violation{
			Type:    RuleSuspiciousCoordinates,
			Field:   "lat,lng",
			Value:   fmt.Sprintf("%v,%v", lat, lng),
			Message: "coordinates are at the null island origin, device likely has no GPS fix",
		})
		return violations
	}

	if lat < v.cfg.LatMin || lat > v.cfg.LatMax || lng < v.cfg.LngMin || lng > v.cfg.LngMax {
		violations = append(violations, Violation{
			Type:    RuleOutOfBounds,
			Field:   "lat,lng",
			Value:   fmt.Sprintf("%v,%v", lat, lng),
			Message: "coordinates fall outside the configured service area",
		})
	}
	return violations
}

func (v *Validator) checkCaptureTime(rec gps.Record) []Violation {
	dt := rec.String("dt_server")
	if dt == "" {
		return nil // missing/empty already reported
	}

	var captured time.Time
	if epoch, err := strconv.ParseFloat(dt, 64); err == nil {
		if epoch <= 0 {
			return []Violation{{
				Type:    RuleInvalidDateTimeFormat,
				Field:   "dt_server",
				Value:   dt,
				Message: "epoch timestamp must be positive",
			}}
		}
		captured = time.Unix(int64(epoch), 0).UTC()
	} else {
		parsed, err := time.Parse(gps.DateTimeLayout, dt)
		if err != nil {
			return []Violation{{
				Type:    RuleInvalidDateTimeFormat,
				Field:   "dt_server",
				Value:   dt,
				Message: "capture time is neither an epoch nor YYYY-MM-DD HH:MM:SS",
			}}
		}
		captured = parsed
	}

	if captured.Before(v.minEpoch) {
		return []Violation{{
			Type:    RuleTimestampTooOld,
			Field:   "dt_server",
			Value:   dt,
			Message: fmt.Sprintf("capture time predates %d", v.cfg.MinYear),
		}}
	}
	if captured.After(v.clock().Add(maxClockSkew)) {
		return []Violation{{
			Type:    RuleTimestampInFuture,
			Field:   "dt_server",
			Value:   dt,
			Message: "capture time is in the future",
		}}
	}
	return nil
}

func (v *Validator) checkIMEI(rec gps.Record) []Violation {
	raw := rec.String("imei")
	if raw == "" {
		return nil // missing/empty already reported
	}
	imei := gps.DigitsOnly(raw)
	if len(imei) < 14 || len(imei) > 17 {
		return []Violation{{
			Type:    RuleInvalidIMEILength,
			Field:   "imei",
			Value:   raw,
			Message: "IMEI must contain 14 to 17 digits",
		}}
	}
	allZeros := true
	for _, r := range imei {
		if r != '0' {
			allZeros = false
			break
		}
	}
	if allZeros {
		return []Violation{{
			Type:    RuleIMEIAllZeros,
			Field:   "imei",
			Value:   raw,
			Message: "IMEI is all zeros",
		}}
	}
	return nil
}

// checkOptionalRanges validates speed, course, and battery only when present:
// devices that do not report them are fine, devices that report nonsense are
// not.
func (v *Validator) checkOptionalRanges(rec gps.Record) []Violation {
	var violations []Violation

	if rec.Has("speed") && !rec.Empty("speed") {
		speed, ok := rec.Float("speed")
		if !ok || speed < 0 || speed > v.cfg.MaxSpeedKMH {
			violations = append(violations, Violation{
				Type:    RuleInvalidSpeed,
				Field:   "speed",
				Value:   rec.String("speed"),
				Message: fmt.Sprintf("speed must be in [0, %v] km/h", v.cfg.MaxSpeedKMH),
			})
		}
	}
	if rec.Has("course") && !rec.Empty("course") {
		course, ok := rec.Float("course")
		if !ok || course < 0 || course >= 360 {
			violations = append(violations, Violation{
				Type:    RuleInvalidCourse,
				Field:   "course",
				Value:   rec.String("course"),
				Message: "course must be in [0, 360)",
			})
		}
	}
	if rec.Has("battery") && !rec.Empty("battery") {
		battery, ok := rec.Float("battery")
		if !ok || battery < 0 || battery > 100 {
			violations = append(violations, Violation{
				Type:    RuleInvalidBattery,
				Field:   "battery",
				Value:   rec.String("battery"),
				Message: "battery must be a percentage in [0, 100]",
			})
		}
	}
	return violations
}

func (v *Validator) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// successRate returns valid/total as a percentage rounded half away from zero
// to two decimals, zero when the batch is empty.
func successRate(valid, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(valid) / float64(total) * 100
	return math.Round(rate*100) / 100
}
