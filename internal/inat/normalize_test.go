package inat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lox/inatfetch/internal/labels"
	"github.com/lox/inatfetch/internal/models"
)

func normalize(t *testing.T, body string) (models.Observation, error) {
	t.Helper()
	n := NewNormalizer(labels.Default(), 54890, 1242)
	return n.Normalize(gjson.Parse(body))
}

func TestNormalize_FullRecord(t *testing.T) {
	obs, err := normalize(t, `{
		"id": 123456,
		"observed_on": "2025-07-14",
		"time_observed_at": "2025-07-14T10:30:00-07:00",
		"created_at": "2025-07-15T08:00:00Z",
		"quality_grade": "research",
		"uri": "https://www.inaturalist.org/observations/123456",
		"place_guess": "Yreka, CA",
		"positional_accuracy": 12,
		"location": "41.7357,-122.6345",
		"taxon": {"name": "Amelanchier alnifolia", "preferred_common_name": "Saskatoon serviceberry"},
		"user": {"login": "botanist", "name": "A. Botanist"},
		"annotations": [
			{"controlled_attribute_id": 12, "controlled_value_id": 14},
			{"controlled_attribute_id": 17, "controlled_value_id": 18}
		]
	}`)
	require.NoError(t, err)

	assert.Equal(t, int64(123456), obs.ID)
	assert.Equal(t, int64(54890), obs.SpeciesTaxonID)
	assert.Equal(t, int64(1242), obs.PlaceID)

	require.True(t, obs.ObservedAt.Valid)
	want := time.Date(2025, 7, 14, 17, 30, 0, 0, time.UTC)
	assert.True(t, obs.ObservedAt.Time.Equal(want), "observed_at %v", obs.ObservedAt.Time)
	assert.True(t, obs.CreatedAt.Valid)

	assert.Equal(t, models.LocationExact, obs.LocationPrecision)
	require.NotNil(t, obs.Coordinates)
	assert.InDelta(t, 41.7357, obs.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, -122.6345, obs.Coordinates.Longitude, 1e-9)

	assert.Equal(t, "research", obs.QualityGrade.String)
	assert.Equal(t, "Yreka, CA", obs.PlaceGuess.String)
	assert.Equal(t, int64(12), obs.PositionalAccuracy.Int64)
	assert.Equal(t, "Amelanchier alnifolia", obs.TaxonName.String)
	assert.Equal(t, "Saskatoon serviceberry", obs.CommonName.String)
	assert.Equal(t, "botanist", obs.UserLogin.String)

	assert.Equal(t, []models.Annotation{
		{TermID: 12, TermLabel: "Plant Phenology", ValueID: 14, ValueLabel: "Fruits or Seeds"},
		{TermID: 17, TermLabel: "Alive or Dead", ValueID: 18, ValueLabel: "Alive"},
	}, obs.Annotations)
	assert.True(t, obs.HasAnnotation(models.AnnotationFilter{TermID: 12, ValueID: 14}))
}

func TestNormalize_ObservedOnFallback(t *testing.T) {
	obs, err := normalize(t, `{"id": 1, "observed_on": "2024-06-02"}`)
	require.NoError(t, err)
	require.True(t, obs.ObservedAt.Valid)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), obs.ObservedAt.Time)
}

func TestNormalize_LocationPrecision(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		precision models.LocationPrecision
		coords    *models.Coordinates
	}{
		{
			name:      "obscured flag drops coordinates",
			body:      `{"id": 1, "location": "41.7,-122.6", "obscured": true}`,
			precision: models.LocationObscured,
		},
		{
			name:      "obscured geoprivacy",
			body:      `{"id": 1, "location": "41.7,-122.6", "geoprivacy": "obscured"}`,
			precision: models.LocationObscured,
		},
		{
			name:      "private geoprivacy without location",
			body:      `{"id": 1, "geoprivacy": "private"}`,
			precision: models.LocationObscured,
		},
		{
			name:      "taxon geoprivacy",
			body:      `{"id": 1, "location": "41.7,-122.6", "taxon_geoprivacy": "obscured"}`,
			precision: models.LocationObscured,
		},
		{
			name:      "open geoprivacy is exact",
			body:      `{"id": 1, "location": "41.7,-122.6", "geoprivacy": "open"}`,
			precision: models.LocationExact,
			coords:    &models.Coordinates{Latitude: 41.7, Longitude: -122.6},
		},
		{
			name:      "missing location",
			body:      `{"id": 1}`,
			precision: models.LocationMissing,
		},
		{
			name:      "unparseable location",
			body:      `{"id": 1, "location": "somewhere"}`,
			precision: models.LocationMissing,
		},
		{
			name:      "out of range location",
			body:      `{"id": 1, "location": "141.7,-122.6"}`,
			precision: models.LocationMissing,
		},
		{
			name:      "geojson fallback",
			body:      `{"id": 1, "geojson": {"type": "Point", "coordinates": [-122.6, 41.7]}}`,
			precision: models.LocationExact,
			coords:    &models.Coordinates{Latitude: 41.7, Longitude: -122.6},
		},
		{
			name:      "geojson that is not a point",
			body:      `{"id": 1, "geojson": {"type": "LineString", "coordinates": [[-122.6, 41.7], [-122.5, 41.8]]}}`,
			precision: models.LocationMissing,
		},
		{
			name:      "malformed geojson",
			body:      `{"id": 1, "geojson": {"type": "Point", "coordinates": "41.7,-122.6"}}`,
			precision: models.LocationMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := normalize(t, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.precision, obs.LocationPrecision)
			assert.Equal(t, tt.coords, obs.Coordinates)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"id": null}`,
		`{"id": "123"}`,
		`{"id": 0}`,
		`[1, 2]`,
		`"observation"`,
	} {
		_, err := normalize(t, body)
		var malformed *MalformedRecordError
		assert.ErrorAs(t, err, &malformed, body)
	}
}

func TestNormalize_TypeMismatchesBecomeNull(t *testing.T) {
	obs, err := normalize(t, `{
		"id": 9,
		"quality_grade": 3,
		"observed_on": false,
		"time_observed_at": "yesterday",
		"positional_accuracy": "12m",
		"taxon": "Amelanchier",
		"annotations": "none"
	}`)
	require.NoError(t, err)

	assert.Equal(t, int64(9), obs.ID)
	assert.False(t, obs.QualityGrade.Valid)
	assert.False(t, obs.ObservedOn.Valid)
	assert.False(t, obs.ObservedAt.Valid)
	assert.False(t, obs.PositionalAccuracy.Valid)
	assert.False(t, obs.TaxonName.Valid)
	assert.Empty(t, obs.Annotations)
}

func TestNormalize_AnnotationLabels(t *testing.T) {
	obs, err := normalize(t, `{
		"id": 5,
		"annotations": [
			{"controlled_attribute": {"id": 12}, "controlled_value": {"id": 13}},
			{"controlled_attribute_id": 900, "controlled_value_id": 901,
			 "controlled_attribute": {"id": 900, "label": "Custom Term"},
			 "controlled_value": {"id": 901, "label": "Custom Value"}},
			{"controlled_attribute_id": 901, "controlled_value_id": 902},
			{"uuid": "no ids at all"},
			{"controlled_attribute_id": 12}
		]
	}`)
	require.NoError(t, err)

	require.Len(t, obs.Annotations, 4)
	assert.Equal(t, models.Annotation{TermID: 12, TermLabel: "Plant Phenology", ValueID: 13, ValueLabel: "Flowering"}, obs.Annotations[0])
	assert.Equal(t, models.Annotation{TermID: 900, TermLabel: "Custom Term", ValueID: 901, ValueLabel: "Custom Value"}, obs.Annotations[1])
	assert.Equal(t, models.Annotation{TermID: 901, TermLabel: "unknown (901)", ValueID: 902, ValueLabel: "unknown (902)"}, obs.Annotations[2])
	assert.Equal(t, int64(12), obs.Annotations[3].TermID)
	assert.Equal(t, int64(0), obs.Annotations[3].ValueID)
}

func TestNormalize_Description(t *testing.T) {
	obs, err := normalize(t, `{"id": 3, "description": "<p>Ripe &amp; dark <b>berries</b></p>"}`)
	require.NoError(t, err)
	require.True(t, obs.Description.Valid)
	assert.Contains(t, obs.Description.String, "Ripe & dark")
	assert.NotContains(t, obs.Description.String, "<p>")

	obs, err = normalize(t, `{"id": 4, "description": "<p> </p>"}`)
	require.NoError(t, err)
	assert.False(t, obs.Description.Valid)
}
