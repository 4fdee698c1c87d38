package transform

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mininter-gps-proxy/backend/internal/gps"
	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/municipality/domain"
)

func testTransformer() *Transformer {
	tr := New(6, time.FixedZone("-05", -5*3600), "230101", logging.New(logging.StdSink{}))
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC) }
	tr.newID = func() string { return "fixed-transmission-id" }
	return tr
}

func serenazgoMuni() *domain.Municipality {
	return &domain.Municipality{
		ID:       "muni-123",
		Name:     "Municipalidad de Tacna",
		TokenGPS: "token",
		Ubigeo:   "230101",
		Tipo:     domain.KindSerenazgo,
		Active:   true,
	}
}

func policialMuni() *domain.Municipality {
	m := serenazgoMuni()
	m.Tipo = domain.KindPolicial
	m.CodigoComisaria = "COM-042"
	return m
}

func baseRecord() gps.Record {
	return gps.Record{
		"imei":      "123-456789012345",
		"lat":       "-12.0463741",
		"lng":       "-77.0427934",
		"dt_server": "2026-03-01 10:30:00",
		"speed":     "45.7",
		"course":    "370",
		"name":      "Flota Norte,ABC-123",
	}
}

func TestForSerenazgoFieldMapping(t *testing.T) {
	got := testTransformer().ForSerenazgo(context.Background(), []gps.Record{baseRecord()}, serenazgoMuni())
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1", len(got))
	}
	p := got[0]
	if p.IMEI != "123456789012345" {
		t.Errorf("imei = %q", p.IMEI)
	}
	if p.Latitud != -12.046374 {
		t.Errorf("latitud = %v, want -12.046374", p.Latitud)
	}
	if p.Longitud != -77.042793 {
		t.Errorf("longitud = %v, want -77.042793", p.Longitud)
	}
	if p.Velocidad != 46 {
		t.Errorf("velocidad = %v, want 46", p.Velocidad)
	}
	if p.Angulo != 10 {
		t.Errorf("angulo = %v, want 10", p.Angulo)
	}
	if p.FechaHora != "01/03/2026 10:30:00" {
		t.Errorf("fechaHora = %q", p.FechaHora)
	}
	if p.Placa != "ABC-123" {
		t.Errorf("placa = %q, want ABC-123", p.Placa)
	}
	if p.Ubigeo != "230101" {
		t.Errorf("ubigeo = %q", p.Ubigeo)
	}
	if !p.Valid {
		t.Error("valid should default to true")
	}
	if p.IDMunicipalidad != "muni-123" {
		t.Errorf("idMunicipalidad = %q", p.IDMunicipalidad)
	}
	if p.IDTransmision != "" || p.CodigoComisaria != "" {
		t.Error("police-only fields must be empty on the municipal schema")
	}
}

func TestUpstreamFieldNames(t *testing.T) {
	rec := baseRecord()
	delete(rec, "course")
	rec["odometer"] = 523.4
	rec["angle"] = float64(370)
	rec["loc_valid"] = float64(0)
	rec["distance"] = float64(500)
	rec["engine_hours"] = 3.6
	p := testTransformer().ForSerenazgo(context.Background(), []gps.Record{rec}, serenazgoMuni())[0]
	if p.TotalDistancia != 523400 {
		t.Errorf("totalDistancia = %v, want 523400", p.TotalDistancia)
	}
	if p.Angulo != 10 {
		t.Errorf("angulo = %v, want 10", p.Angulo)
	}
	if p.Valid {
		t.Error("loc_valid = 0 must yield valid = false")
	}
	if p.Distancia != 500 {
		t.Errorf("distancia = %v, want 500", p.Distancia)
	}
	if p.HorasMotor != 4 || p.TotalHorasMotor != 4 {
		t.Errorf("horasMotor = %v, totalHorasMotor = %v, want 4 and 4", p.HorasMotor, p.TotalHorasMotor)
	}
}

func TestAngleWinsOverCourse(t *testing.T) {
	rec := baseRecord()
	rec["angle"] = float64(90)
	p := testTransformer().ForSerenazgo(context.Background(), []gps.Record{rec}, serenazgoMuni())[0]
	if p.Angulo != 90 {
		t.Errorf("angulo = %v, want 90 from angle over course", p.Angulo)
	}
}

func TestPerLegDistanceNotRescaled(t *testing.T) {
	rec := baseRecord()
	rec["distance"] = "499.6"
	p := testTransformer().ForSerenazgo(context.Background(), []gps.Record{rec}, serenazgoMuni())[0]
	if p.Distancia != 500 {
		t.Errorf("distancia = %v, want 500", p.Distancia)
	}
}

func TestForPolicialVariantFields(t *testing.T) {
	got := testTransformer().ForPolicial(context.Background(), []gps.Record{baseRecord()}, policialMuni())
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1", len(got))
	}
	p := got[0]
	if p.IDTransmision != "fixed-transmission-id" {
		t.Errorf("idTransmision = %q", p.IDTransmision)
	}
	if p.CodigoComisaria != "COM-042" {
		t.Errorf("codigoComisaria = %q", p.CodigoComisaria)
	}
	if p.IDMunicipalidad != "" {
		t.Error("idMunicipalidad must be empty on the police schema")
	}
}

func TestVariantFieldsOmittedFromJSON(t *testing.T) {
	tr := testTransformer()
	serJSON, _ := json.Marshal(tr.ForSerenazgo(context.Background(), []gps.Record{baseRecord()}, serenazgoMuni())[0])
	if strings.Contains(string(serJSON), "idTransmision") || strings.Contains(string(serJSON), "codigoComisaria") {
		t.Errorf("municipal JSON leaks police fields: %s", serJSON)
	}
	polJSON, _ := json.Marshal(tr.ForPolicial(context.Background(), []gps.Record{baseRecord()}, policialMuni())[0])
	if strings.Contains(string(polJSON), "idMunicipalidad") {
		t.Errorf("police JSON leaks municipal field: %s", polJSON)
	}
}

func TestEpochCaptureTimeShiftedToLocal(t *testing.T) {
	rec := baseRecord()
	// 2026-03-01 17:00:00 UTC is 12:00:00 in Peru.
	rec["dt_server"] = "1772384400"
	p := testTransformer().ForSerenazgo(context.Background(), []gps.Record{rec}, serenazgoMuni())[0]
	if p.FechaHora != "01/03/2026 12:00:00" {
		t.Errorf("fechaHora = %q, want 01/03/2026 12:00:00", p.FechaHora)
	}
}

func TestUnparseableCaptureTimeFallsBackToNow(t *testing.T) {
	rec := baseRecord()
	rec["dt_server"] = "garbage"
	p := testTransformer().ForSerenazgo(context.Background(), []gps.Record{rec}, serenazgoMuni())[0]
	// Fixed clock is 17:00 UTC, so 12:00 local.
	if p.FechaHora != "01/03/2026 12:00:00" {
		t.Errorf("fechaHora = %q, want fallback 01/03/2026 12:00:00", p.FechaHora)
	}
}

func TestNormalizeCourse(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {359.9, 359}, {360, 0}, {370, 10}, {-45, 315}, {725, 5},
	}
	for _, tt := range tests {
		if got := normalizeCourse(tt.in); got != tt.want {
			t.Errorf("normalizeCourse(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSpeed(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-5.2, 0}, {0, 0}, {45.7, 46}, {45.4, 45},
	}
	for _, tt := range tests {
		if got := normalizeSpeed(tt.in); got != tt.want {
			t.Errorf("normalizeSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeOdometer(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {999, 999000}, {1000, 1000}, {152340, 152340}, {12.5, 12500},
	}
	for _, tt := range tests {
		if got := normalizeOdometer(tt.in); got != tt.want {
			t.Errorf("normalizeOdometer(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPlateExtraction(t *testing.T) {
	tr := testTransformer()
	tests := []struct {
		name string
		rec  gps.Record
		want string
	}{
		{"plate_number wins", gps.Record{"plate_number": "xyz-789", "name": "Unit,ABC-123"}, "XYZ-789"},
		{"placa second", gps.Record{"placa": "def 456"}, "DEF456"},
		{"name after comma", gps.Record{"name": "Flota Sur,GHI-111"}, "GHI-111"},
		{"name without comma", gps.Record{"name": "JKL-222"}, "JKL-222"},
		{"too short falls back", gps.Record{"name": "AB"}, "IMEI-012345"},
		{"nothing falls back", gps.Record{}, "IMEI-012345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.plate(tt.rec, "123456789012345"); got != tt.want {
				t.Errorf("plate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUbigeoResolution(t *testing.T) {
	tr := testTransformer()
	m := serenazgoMuni()
	m.Ubigeo = "150101"

	withCustom := baseRecord()
	withCustom["custom_fields"] = []any{
		map[string]any{"name": "UBIGEO", "value": "040101"},
	}
	if got := tr.ubigeo(withCustom, m); got != "040101" {
		t.Errorf("custom field ubigeo = %q, want 040101", got)
	}

	withTopLevel := baseRecord()
	withTopLevel["ubigeo"] = "080101"
	if got := tr.ubigeo(withTopLevel, m); got != "080101" {
		t.Errorf("top-level ubigeo = %q, want 080101", got)
	}

	if got := tr.ubigeo(baseRecord(), m); got != "150101" {
		t.Errorf("municipality ubigeo = %q, want 150101", got)
	}

	m.Ubigeo = ""
	if got := tr.ubigeo(baseRecord(), m); got != "230101" {
		t.Errorf("default ubigeo = %q, want 230101", got)
	}
}

func TestUbigeoRejectsMalformedCodes(t *testing.T) {
	tr := testTransformer()
	m := serenazgoMuni()
	m.Ubigeo = ""

	badCustom := baseRecord()
	badCustom["custom_fields"] = []any{
		map[string]any{"name": "ubigeo", "value": "04010"},
	}
	if got := tr.ubigeo(badCustom, m); got != "230101" {
		t.Errorf("short custom-field code accepted: %q", got)
	}

	for _, bad := range []string{"not-a-code", "12345", "1234567", "12A456", ""} {
		rec := baseRecord()
		rec["ubigeo"] = bad
		if got := tr.ubigeo(rec, m); got != "230101" {
			t.Errorf("ubigeo(%q) = %q, want default 230101", bad, got)
		}
	}
}

func TestCoerceFlag(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"bool true", true, true},
		{"string 1", "1", true},
		{"string on", "on", true},
		{"string ON", "ON", true},
		{"number 1", float64(1), true},
		{"number 0", float64(0), false},
		{"number 2", float64(2), false},
		{"string 0", "0", false},
		{"string off", "off", false},
		{"string true not accepted", "true", false},
		{"absent", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceFlag(tt.value); got != tt.want {
				t.Errorf("coerceFlag(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCoerceMotionFallsBackToSpeed(t *testing.T) {
	if !coerceMotion(gps.Record{"motion": "1"}) {
		t.Error("explicit motion=1 must be true")
	}
	if coerceMotion(gps.Record{"motion": "0", "speed": "50"}) {
		t.Error("explicit motion=0 wins over speed")
	}
	if !coerceMotion(gps.Record{"speed": "5"}) {
		t.Error("absent motion with speed > 1 must be true")
	}
	if coerceMotion(gps.Record{"speed": "0.5"}) {
		t.Error("absent motion with speed <= 1 must be false")
	}
}

func TestCoerceValid(t *testing.T) {
	tests := []struct {
		name string
		rec  gps.Record
		want bool
	}{
		{"absent defaults true", gps.Record{}, true},
		{"blank string defaults true", gps.Record{"loc_valid": ""}, true},
		{"string 0", gps.Record{"loc_valid": "0"}, false},
		{"string 1", gps.Record{"loc_valid": "1"}, true},
		{"string true", gps.Record{"loc_valid": "true"}, true},
		{"number 1", gps.Record{"loc_valid": float64(1)}, true},
		{"number 0", gps.Record{"loc_valid": float64(0)}, false},
		{"bool false", gps.Record{"loc_valid": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceValid(tt.rec); got != tt.want {
				t.Errorf("coerceValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordsWithoutIdentityDropped(t *testing.T) {
	noIMEI := gps.Record{"lat": "-12.04", "lng": "-77.04", "dt_server": "2026-03-01 10:00:00"}
	noTime := baseRecord()
	noTime["dt_server"] = ""
	got := testTransformer().ForSerenazgo(context.Background(), []gps.Record{baseRecord(), noIMEI, noTime}, serenazgoMuni())
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1", len(got))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize("SERENAZGO", 10, 8)
	if s.Dropped != 2 || s.Input != 10 || s.Transformed != 8 {
		t.Errorf("summary = %+v", s)
	}
	if s.SuccessRate != 80 {
		t.Errorf("success rate = %v, want 80", s.SuccessRate)
	}
	if s.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
