package inat

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/lox/inatfetch/internal/htmlutil"
	"github.com/lox/inatfetch/internal/labels"
	"github.com/lox/inatfetch/internal/models"
)

// LabelTable resolves controlled term and value IDs. *labels.Table implements it.
type LabelTable interface {
	LookupTerm(id int64) (string, bool)
	LookupValue(id int64) (string, bool)
}

// Normalizer converts raw API observations into models.Observation. Only a
// missing id is fatal for a record; every other field degrades to null.
type Normalizer struct {
	labels  LabelTable
	taxonID int64
	placeID int64
}

func NewNormalizer(table LabelTable, taxonID, placeID int64) *Normalizer {
	return &Normalizer{labels: table, taxonID: taxonID, placeID: placeID}
}

func (n *Normalizer) Normalize(raw gjson.Result) (models.Observation, error) {
	if !raw.IsObject() {
		return models.Observation{}, &MalformedRecordError{Reason: "not a JSON object"}
	}
	id, ok := extractID(raw)
	if !ok {
		return models.Observation{}, &MalformedRecordError{Reason: "missing id"}
	}

	obs := models.Observation{
		ID:                 id,
		SpeciesTaxonID:     n.taxonID,
		PlaceID:            n.placeID,
		ObservedAt:         extractObservedAt(raw),
		Annotations:        n.extractAnnotations(raw),
		QualityGrade:       extractString(raw, "quality_grade"),
		URI:                extractString(raw, "uri"),
		ObservedOn:         extractString(raw, "observed_on"),
		CreatedAt:          extractTime(raw, "created_at"),
		PlaceGuess:         extractString(raw, "place_guess"),
		PositionalAccuracy: extractInt(raw, "positional_accuracy"),
		Geoprivacy:         extractString(raw, "geoprivacy"),
		TaxonName:          extractString(raw, "taxon.name"),
		CommonName:         extractString(raw, "taxon.preferred_common_name"),
		UserLogin:          extractString(raw, "user.login"),
		UserName:           extractString(raw, "user.name"),
		Description:        extractDescription(raw),
	}

	coords := extractCoordinates(raw)
	switch {
	case isObscured(raw):
		obs.LocationPrecision = models.LocationObscured
	case coords == nil:
		obs.LocationPrecision = models.LocationMissing
	default:
		obs.Coordinates = coords
		obs.LocationPrecision = models.LocationExact
	}

	return obs, nil
}

func extractID(raw gjson.Result) (int64, bool) {
	v := raw.Get("id")
	if v.Type != gjson.Number || v.Int() <= 0 {
		return 0, false
	}
	return v.Int(), true
}

func extractString(raw gjson.Result, path string) sql.NullString {
	v := raw.Get(path)
	if v.Type != gjson.String || v.Str == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v.Str, Valid: true}
}

func extractInt(raw gjson.Result, path string) sql.NullInt64 {
	v := raw.Get(path)
	if v.Type != gjson.Number {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.Int(), Valid: true}
}

func extractTime(raw gjson.Result, path string) sql.NullTime {
	v := raw.Get(path)
	if v.Type != gjson.String {
		return sql.NullTime{}
	}
	t, err := time.Parse(time.RFC3339, v.Str)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// extractObservedAt prefers the full timestamp and falls back to the
// observation date at midnight UTC.
func extractObservedAt(raw gjson.Result) sql.NullTime {
	if t := extractTime(raw, "time_observed_at"); t.Valid {
		return t
	}
	on := extractString(raw, "observed_on")
	if !on.Valid {
		return sql.NullTime{}
	}
	t, err := time.Parse(time.DateOnly, on.String)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func extractDescription(raw gjson.Result) sql.NullString {
	s := extractString(raw, "description")
	if !s.Valid {
		return s
	}
	text := htmlutil.ToText(s.String)
	return sql.NullString{String: text, Valid: text != ""}
}

// extractCoordinates reads "lat,lon" from location, falling back to the
// GeoJSON point ([lon, lat]).
func extractCoordinates(raw gjson.Result) *models.Coordinates {
	if loc := raw.Get("location"); loc.Type == gjson.String {
		parts := strings.Split(loc.Str, ",")
		if len(parts) == 2 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if latErr == nil && lonErr == nil && validCoordinates(lat, lon) {
				return &models.Coordinates{Latitude: lat, Longitude: lon}
			}
		}
	}

	if gj := raw.Get("geojson"); gj.IsObject() {
		var g geom.T
		if err := geojson.Unmarshal([]byte(gj.Raw), &g); err != nil {
			return nil
		}
		if p, ok := g.(*geom.Point); ok && len(p.FlatCoords()) >= 2 {
			lat, lon := p.Y(), p.X()
			if validCoordinates(lat, lon) {
				return &models.Coordinates{Latitude: lat, Longitude: lon}
			}
		}
	}
	return nil
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// isObscured reports whether the API fuzzed or withheld the location.
func isObscured(raw gjson.Result) bool {
	if v := raw.Get("obscured"); v.Type == gjson.True {
		return true
	}
	for _, path := range []string{"geoprivacy", "taxon_geoprivacy"} {
		switch strings.ToLower(raw.Get(path).String()) {
		case "obscured", "private":
			return true
		}
	}
	return false
}

func (n *Normalizer) extractAnnotations(raw gjson.Result) []models.Annotation {
	var out []models.Annotation
	for _, a := range raw.Get("annotations").Array() {
		termID, hasTerm := firstID(a, "controlled_attribute_id", "controlled_attribute.id")
		valueID, hasValue := firstID(a, "controlled_value_id", "controlled_value.id")
		if !hasTerm && !hasValue {
			continue
		}
		out = append(out, models.Annotation{
			TermID:     termID,
			TermLabel:  label(n.labels.LookupTerm, termID, a.Get("controlled_attribute.label")),
			ValueID:    valueID,
			ValueLabel: label(n.labels.LookupValue, valueID, a.Get("controlled_value.label")),
		})
	}
	return out
}

func firstID(raw gjson.Result, paths ...string) (int64, bool) {
	for _, path := range paths {
		if v := raw.Get(path); v.Type == gjson.Number && v.Int() > 0 {
			return v.Int(), true
		}
	}
	return 0, false
}

// label resolves from the table first, then the label embedded in the
// response, then the synthesized unknown label.
func label(lookup func(int64) (string, bool), id int64, embedded gjson.Result) string {
	if l, ok := lookup(id); ok {
		return l
	}
	if embedded.Type == gjson.String && embedded.Str != "" {
		return embedded.Str
	}
	return labels.Unknown(id)
}
