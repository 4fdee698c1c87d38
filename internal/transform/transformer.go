// Package transform converts validated GPS records into the payload shapes
// the MININTER endpoints accept. The two destination schemas share a common
// body; the municipal (SERENAZGO) variant adds the municipality identifier
// and the police (POLICIAL) variant adds a transmission id and station code.
package transform

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mininter-gps-proxy/backend/internal/gps"
	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/municipality/domain"
)

// destinationTimeLayout is the timestamp format MININTER expects, rendered in
// Peru local time.
const destinationTimeLayout = "02/01/2006 15:04:05"

// Payload is one transformed record. Field names follow the destination
// schema; the variant fields are mutually exclusive and omitted when unset.
type Payload struct {
	Alarma          string  `json:"alarma"`
	Altitud         float64 `json:"altitud"`
	Angulo          float64 `json:"angulo"`
	Distancia       float64 `json:"distancia"`
	FechaHora       string  `json:"fechaHora"`
	HorasMotor      float64 `json:"horasMotor"`
	Ignition        bool    `json:"ignition"`
	IMEI            string  `json:"imei"`
	Latitud         float64 `json:"latitud"`
	Longitud        float64 `json:"longitud"`
	Motion          bool    `json:"motion"`
	Placa           string  `json:"placa"`
	TotalDistancia  float64 `json:"totalDistancia"`
	TotalHorasMotor float64 `json:"totalHorasMotor"`
	Ubigeo          string  `json:"ubigeo"`
	Valid           bool    `json:"valid"`
	Velocidad       float64 `json:"velocidad"`

	// SERENAZGO only.
	IDMunicipalidad string `json:"idMunicipalidad,omitempty"`
	// POLICIAL only.
	IDTransmision   string `json:"idTransmision,omitempty"`
	CodigoComisaria string `json:"codigoComisaria,omitempty"`
}

// Summary counts what the transformation kept and dropped, for audit logs.
type Summary struct {
	Schema      string    `json:"schema"`
	Input       int       `json:"input"`
	Transformed int       `json:"transformed"`
	Dropped     int       `json:"dropped"`
	SuccessRate float64   `json:"success_rate"`
	Timestamp   time.Time `json:"timestamp"`
}

// Transformer builds destination payloads from validated records.
type Transformer struct {
	// Precision is the number of decimal places kept on coordinates.
	Precision int
	// Location is the destination timezone (Peru, UTC-5).
	Location *time.Location
	// DefaultUbigeo is used when a record carries no area code.
	DefaultUbigeo string
	Logger        *logging.Logger

	now   func() time.Time
	newID func() string
}

// New returns a Transformer rendering times in loc with the given coordinate
// precision.
func New(precision int, loc *time.Location, defaultUbigeo string, logger *logging.Logger) *Transformer {
	return &Transformer{
		Precision:     precision,
		Location:      loc,
		DefaultUbigeo: defaultUbigeo,
		Logger:        logger,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// ForSerenazgo transforms records into the municipal schema, stamping each
// payload with the municipality id.
func (t *Transformer) ForSerenazgo(ctx context.Context, records []gps.Record, m *domain.Municipality) []Payload {
	payloads := t.transform(ctx, records, m)
	for i := range payloads {
		payloads[i].IDMunicipalidad = m.ID
	}
	return payloads
}

// ForPolicial transforms records into the police schema, stamping each payload
// with a fresh transmission id and the municipality's station code.
func (t *Transformer) ForPolicial(ctx context.Context, records []gps.Record, m *domain.Municipality) []Payload {
	payloads := t.transform(ctx, records, m)
	for i := range payloads {
		payloads[i].IDTransmision = t.newID()
		payloads[i].CodigoComisaria = m.CodigoComisaria
	}
	return payloads
}

// Summarize builds the audit summary for a transformation pass.
func Summarize(schema string, input, transformed int) Summary {
	s := Summary{
		Schema:      schema,
		Input:       input,
		Transformed: transformed,
		Dropped:     input - transformed,
		Timestamp:   time.Now().UTC(),
	}
	if input > 0 {
		s.SuccessRate = math.Round(float64(transformed)/float64(input)*100*100) / 100
	}
	return s
}

// Fields renders the summary as structured log context.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"schema":       s.Schema,
		"input":        s.Input,
		"transformed":  s.Transformed,
		"dropped":      s.Dropped,
		"success_rate": s.SuccessRate,
		"timestamp":    s.Timestamp,
	}
}

// transform maps each record through the common field rules. Records missing
// the minimum identity fields are dropped with a warning; validation should
// have caught them already, so a drop here means the pipeline stages disagree.
func (t *Transformer) transform(ctx context.Context, records []gps.Record, m *domain.Municipality) []Payload {
	payloads := make([]Payload, 0, len(records))
	for i, rec := range records {
		imei := gps.DigitsOnly(rec.String("imei"))
		lat, latOK := rec.Float("lat")
		lng, lngOK := rec.Float("lng")
		if imei == "" || !latOK || !lngOK || rec.Empty("dt_server") {
			t.Logger.Warning(ctx, logging.ChannelTelemetry, "record reached transform without identity fields, dropping", map[string]any{
				"index":        i,
				"municipality": m.ID,
			})
			continue
		}

		p := Payload{
			Alarma:          rec.String("alarm"),
			Altitud:         math.Round(rec.FloatOr("altitude", 0)),
			Angulo:          normalizeCourse(courseOf(rec)),
			Distancia:       math.Round(rec.FloatOr("distance", 0)),
			FechaHora:       t.formatCaptureTime(ctx, rec),
			HorasMotor:      math.Round(rec.FloatOr("engine_hours", 0)),
			Ignition:        coerceFlag(rec["ignition"]),
			IMEI:            imei,
			Latitud:         roundTo(lat, t.Precision),
			Longitud:        roundTo(lng, t.Precision),
			Motion:          coerceMotion(rec),
			Placa:           t.plate(rec, imei),
			TotalDistancia:  math.Round(normalizeOdometer(rec.FloatOr("odometer", 0))),
			TotalHorasMotor: math.Round(rec.FloatOr("engine_hours", 0)),
			Ubigeo:          t.ubigeo(rec, m),
			Valid:           coerceValid(rec),
			Velocidad:       normalizeSpeed(rec.FloatOr("speed", 0)),
		}
		payloads = append(payloads, p)
	}
	return payloads
}

// formatCaptureTime renders dt_server in the destination timezone. Epoch
// values are treated as UTC and shifted; literal datetime strings are taken
// as already being local time. An unparseable value falls back to now so the
// record is not lost over a clock formatting quirk.
func (t *Transformer) formatCaptureTime(ctx context.Context, rec gps.Record) string {
	dt := rec.String("dt_server")
	if epoch, err := strconv.ParseFloat(dt, 64); err == nil && epoch > 0 {
		return time.Unix(int64(epoch), 0).UTC().In(t.Location).Format(destinationTimeLayout)
	}
	if parsed, err := time.ParseInLocation(gps.DateTimeLayout, dt, t.Location); err == nil {
		return parsed.Format(destinationTimeLayout)
	}
	t.Logger.Warning(ctx, logging.ChannelTelemetry, "unparseable capture time, substituting current time", map[string]any{
		"dt_server": dt,
	})
	return t.clock().In(t.Location).Format(destinationTimeLayout)
}

// plate extracts the vehicle plate. Preference order: plate_number, placa,
// then the device name (taking the segment after a comma when present). The
// candidate is uppercased and stripped to alphanumerics and hyphens; anything
// shorter than 3 characters falls back to a synthetic plate from the IMEI.
func (t *Transformer) plate(rec gps.Record, imei string) string {
	candidates := []string{rec.String("plate_number"), rec.String("placa")}
	if name := rec.String("name"); name != "" {
		if idx := strings.Index(name, ","); idx >= 0 {
			name = name[idx+1:]
		}
		candidates = append(candidates, name)
	}
	for _, c := range candidates {
		if cleaned := cleanPlate(c); len(cleaned) >= 3 {
			return cleaned
		}
	}
	suffix := imei
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "IMEI-" + suffix
}

// ubigeo resolves the administrative area code: a custom field wins, then a
// top-level field, then the municipality's registered code, then the
// configured default. Device-reported candidates count only when they are a
// well-formed 6-digit code.
func (t *Transformer) ubigeo(rec gps.Record, m *domain.Municipality) string {
	for _, cf := range rec.CustomFields() {
		if strings.EqualFold(cf.String("name"), "ubigeo") {
			if v := strings.TrimSpace(cf.String("value")); validUbigeo(v) {
				return v
			}
		}
	}
	if v := strings.TrimSpace(rec.String("ubigeo")); validUbigeo(v) {
		return v
	}
	if m.Ubigeo != "" {
		return m.Ubigeo
	}
	return t.DefaultUbigeo
}

// validUbigeo reports whether s is exactly six digits.
func validUbigeo(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *Transformer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// cleanPlate uppercases and keeps only A-Z, 0-9, and hyphens.
func cleanPlate(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeCourse wraps any angle into [0, 360) and truncates to a whole
// degree.
func normalizeCourse(course float64) float64 {
	wrapped := math.Mod(course, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return math.Trunc(wrapped)
}

// normalizeSpeed clamps negatives to zero and rounds to the nearest integer.
func normalizeSpeed(speed float64) float64 {
	if speed < 0 {
		return 0
	}
	return math.Round(speed)
}

// normalizeOdometer converts kilometer readings to meters. Devices report the
// odometer in meters, but a handful send kilometers; a total under 1000 on a
// fleet vehicle is only plausible as kilometers.
func normalizeOdometer(value float64) float64 {
	if value > 0 && value < 1000 {
		return value * 1000
	}
	return value
}

// coerceFlag interprets the encodings devices use for on/off flags: booleans
// pass through, numbers are on iff exactly 1, strings iff "on" or "1".
// Anything else, including an absent field, is off.
func coerceFlag(v any) bool {
	switch f := v.(type) {
	case bool:
		return f
	case float64:
		return f == 1
	case string:
		s := strings.ToLower(strings.TrimSpace(f))
		return s == "on" || s == "1"
	default:
		return false
	}
}

// courseOf reads the heading. Devices report it as angle or course; angle
// wins when both are present.
func courseOf(rec gps.Record) float64 {
	if rec.Has("angle") {
		return rec.FloatOr("angle", 0)
	}
	return rec.FloatOr("course", 0)
}

// coerceMotion reads the motion flag; devices that do not report one are
// considered moving when the speed says so.
func coerceMotion(rec gps.Record) bool {
	if rec.Has("motion") {
		return coerceFlag(rec["motion"])
	}
	return rec.FloatOr("speed", 0) > 1
}

// coerceValid reads the device fix-valid flag loc_valid: booleans pass
// through, numbers are valid iff exactly 1, strings iff "true" or "1".
// Anything else defaults to valid, since most devices simply omit the flag.
func coerceValid(rec gps.Record) bool {
	switch f := rec["loc_valid"].(type) {
	case bool:
		return f
	case float64:
		return f == 1
	case string:
		s := strings.ToLower(strings.TrimSpace(f))
		if s == "" {
			return true
		}
		return s == "true" || s == "1"
	default:
		return true
	}
}

// roundTo rounds to n decimal places, half away from zero.
func roundTo(v float64, n int) float64 {
	pow := math.Pow(10, float64(n))
	return math.Round(v*pow) / pow
}
