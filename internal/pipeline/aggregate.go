package pipeline

import (
	"database/sql"
	"maps"

	"github.com/lox/inatfetch/internal/models"
)

// Aggregator accumulates annotation counts and run-level summary figures.
// It has no failure modes and is not safe for concurrent use.
type Aggregator struct {
	stats           models.AnnotationStats
	total           int
	examined        int
	withAnnotations int
	qualityGrades   map[string]int
	earliest        sql.NullTime
	latest          sql.NullTime
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		stats:         models.AnnotationStats{},
		qualityGrades: map[string]int{},
	}
}

// Observe counts a normalized observation before the annotation filter is
// applied, so the annotated share covers everything that was retrieved.
func (a *Aggregator) Observe(obs models.Observation) {
	a.examined++
	if len(obs.Annotations) > 0 {
		a.withAnnotations++
	}
}

// Record counts each (term label, value label) pair on a kept observation once.
func (a *Aggregator) Record(obs models.Observation) {
	a.total++
	for _, ann := range obs.Annotations {
		a.stats[models.AnnotationKey{TermLabel: ann.TermLabel, ValueLabel: ann.ValueLabel}]++
	}

	grade := "unknown"
	if obs.QualityGrade.Valid {
		grade = obs.QualityGrade.String
	}
	a.qualityGrades[grade]++

	if obs.ObservedAt.Valid {
		t := obs.ObservedAt.Time
		if !a.earliest.Valid || t.Before(a.earliest.Time) {
			a.earliest = sql.NullTime{Time: t, Valid: true}
		}
		if !a.latest.Valid || t.After(a.latest.Time) {
			a.latest = sql.NullTime{Time: t, Valid: true}
		}
	}
}

// Snapshot returns a copy of the annotation counts.
func (a *Aggregator) Snapshot() models.AnnotationStats {
	return maps.Clone(a.stats)
}

func (a *Aggregator) Summary() models.Summary {
	return models.Summary{
		TotalObservations:           a.total,
		ObservationsExamined:        a.examined,
		ObservationsWithAnnotations: a.withAnnotations,
		Annotations:                 a.Snapshot(),
		QualityGrades:               maps.Clone(a.qualityGrades),
		EarliestObserved:            a.earliest,
		LatestObserved:              a.latest,
	}
}
