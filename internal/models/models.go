package models

import (
	"database/sql"
	"fmt"
	"time"
)

type LocationPrecision string

const (
	LocationExact    LocationPrecision = "exact"
	LocationObscured LocationPrecision = "obscured"
	LocationMissing  LocationPrecision = "missing"
)

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type Annotation struct {
	TermID     int64
	TermLabel  string
	ValueID    int64
	ValueLabel string
}

// Matches reports whether the annotation carries the given term and value.
func (a Annotation) Matches(f AnnotationFilter) bool {
	return a.TermID == f.TermID && a.ValueID == f.ValueID
}

// AnnotationFilter selects observations tagged with one controlled term/value pair,
// e.g. Plant Phenology (12) = Fruits or Seeds (14).
type AnnotationFilter struct {
	TermID  int64
	ValueID int64
}

func (f AnnotationFilter) String() string {
	return fmt.Sprintf("%d=%d", f.TermID, f.ValueID)
}

type Observation struct {
	ID                 int64
	SpeciesTaxonID     int64
	PlaceID            int64
	ObservedAt         sql.NullTime
	Coordinates        *Coordinates
	LocationPrecision  LocationPrecision
	Annotations        []Annotation
	QualityGrade       sql.NullString
	URI                sql.NullString
	ObservedOn         sql.NullString
	CreatedAt          sql.NullTime
	PlaceGuess         sql.NullString
	PositionalAccuracy sql.NullInt64
	Geoprivacy         sql.NullString
	TaxonName          sql.NullString
	CommonName         sql.NullString
	UserLogin          sql.NullString
	UserName           sql.NullString
	Description        sql.NullString
}

// HasAnnotation reports whether any annotation on the observation matches f.
func (o Observation) HasAnnotation(f AnnotationFilter) bool {
	for _, a := range o.Annotations {
		if a.Matches(f) {
			return true
		}
	}
	return false
}

type AnnotationKey struct {
	TermLabel  string
	ValueLabel string
}

type AnnotationStats map[AnnotationKey]int

// Summary describes a run. TotalObservations counts kept records;
// ObservationsExamined counts every normalized record, kept or filtered.
type Summary struct {
	Place                       string
	TotalObservations           int
	ObservationsExamined        int
	ObservationsWithAnnotations int
	Annotations                 AnnotationStats
	QualityGrades               map[string]int
	EarliestObserved            sql.NullTime
	LatestObserved              sql.NullTime
}

// AnnotationPercentage is the share of examined observations carrying at
// least one annotation of any kind.
func (s Summary) AnnotationPercentage() float64 {
	if s.ObservationsExamined == 0 {
		return 0
	}
	return float64(s.ObservationsWithAnnotations) / float64(s.ObservationsExamined) * 100
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type FetchRun struct {
	ID           int64
	RunID        string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	SpeciesName  string
	PlaceName    string
	TaxonID      sql.NullInt64
	PlaceID      sql.NullInt64
	Filter       string
	Pages        int
	Fetched      int
	Skipped      int
	FilteredOut  int
	Kept         int
	Status       sql.NullString
	ErrorMessage sql.NullString
}
