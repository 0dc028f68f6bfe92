package export

import (
	"bytes"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/inatfetch/internal/models"
)

func TestSummaryReporter(t *testing.T) {
	var buf bytes.Buffer
	summary := models.Summary{
		Place:                       "Siskiyou County (County)",
		TotalObservations:           1500,
		ObservationsExamined:        3000,
		ObservationsWithAnnotations: 1200,
		Annotations: models.AnnotationStats{
			{TermLabel: "Plant Phenology", ValueLabel: "Fruits or Seeds"}: 1500,
			{TermLabel: "Plant Phenology", ValueLabel: "Flowering"}:       20,
			{TermLabel: "Alive or Dead", ValueLabel: "Alive"}:             3,
		},
		QualityGrades:    map[string]int{"research": 1400, "needs_id": 100},
		EarliestObserved: sql.NullTime{Time: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		LatestObserved:   sql.NullTime{Time: time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC), Valid: true},
	}

	require.NoError(t, NewSummaryReporter(&buf).Report(summary))
	out := buf.String()

	assert.Contains(t, out, "Place: Siskiyou County (County)\n")
	assert.Contains(t, out, "Total observations retrieved: 1,500\n")
	assert.Contains(t, out, "Observations with annotations: 1,200 of 3,000 examined (40.0%)\n")
	assert.Contains(t, out, "Date range: 2019-06-01 to 2025-08-02\n")
	assert.Contains(t, out, "Quality grades:\n  needs_id: 100\n  research: 1,400\n")
	assert.Contains(t, out, "  Alive or Dead:\n    Alive: 3\n  Plant Phenology:\n    Flowering: 20\n    Fruits or Seeds: 1,500\n")
}

func TestSummaryReporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummaryReporter(&buf).Report(models.Summary{}))
	assert.Contains(t, buf.String(), "No observations found matching the criteria.")
	assert.NotContains(t, buf.String(), "Quality grades")
	assert.NotContains(t, buf.String(), "Place:")
}
