package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/inatfetch/internal/models"
)

const observationURL = "https://www.inaturalist.org/observations/%d"

// record is the flat row shape shared by the CSV and JSON outputs. Annotations
// are a single "Term: Value; ..." column in CSV and a list in JSON.
type record struct {
	ID                 int64              `csv:"id" json:"id"`
	ObservedOn         string             `csv:"observed_on" json:"observed_on,omitempty"`
	ObservedAt         string             `csv:"observed_at" json:"observed_at,omitempty"`
	CreatedAt          string             `csv:"created_at" json:"created_at,omitempty"`
	PlaceGuess         string             `csv:"place_guess" json:"place_guess,omitempty"`
	Latitude           *float64           `csv:"latitude" json:"latitude"`
	Longitude          *float64           `csv:"longitude" json:"longitude"`
	LocationPrecision  string             `csv:"location_precision" json:"location_precision"`
	PositionalAccuracy *int64             `csv:"positional_accuracy" json:"positional_accuracy"`
	Geoprivacy         string             `csv:"geoprivacy" json:"geoprivacy,omitempty"`
	TaxonName          string             `csv:"taxon_name" json:"taxon_name,omitempty"`
	CommonName         string             `csv:"common_name" json:"common_name,omitempty"`
	UserLogin          string             `csv:"user_login" json:"user_login,omitempty"`
	UserName           string             `csv:"user_name" json:"user_name,omitempty"`
	QualityGrade       string             `csv:"quality_grade" json:"quality_grade,omitempty"`
	AnnotationSummary  string             `csv:"annotations" json:"-"`
	Annotations        []annotationRecord `csv:"-" json:"annotations"`
	Description        string             `csv:"description" json:"description,omitempty"`
	URL                string             `csv:"url" json:"url"`
}

type annotationRecord struct {
	TermID  int64  `json:"term_id"`
	Term    string `json:"term"`
	ValueID int64  `json:"value_id"`
	Value   string `json:"value"`
}

func newRecord(obs models.Observation) record {
	r := record{
		ID:                obs.ID,
		ObservedOn:        obs.ObservedOn.String,
		CreatedAt:         formatTime(obs.CreatedAt.Time, obs.CreatedAt.Valid),
		ObservedAt:        formatTime(obs.ObservedAt.Time, obs.ObservedAt.Valid),
		PlaceGuess:        obs.PlaceGuess.String,
		LocationPrecision: string(obs.LocationPrecision),
		Geoprivacy:        obs.Geoprivacy.String,
		TaxonName:         obs.TaxonName.String,
		CommonName:        obs.CommonName.String,
		UserLogin:         obs.UserLogin.String,
		UserName:          obs.UserName.String,
		QualityGrade:      obs.QualityGrade.String,
		Description:       obs.Description.String,
		URL:               obs.URI.String,
		Annotations:       make([]annotationRecord, 0, len(obs.Annotations)),
	}
	if r.URL == "" {
		r.URL = fmt.Sprintf(observationURL, obs.ID)
	}
	if obs.Coordinates != nil {
		lat, lon := obs.Coordinates.Latitude, obs.Coordinates.Longitude
		r.Latitude, r.Longitude = &lat, &lon
	}
	if obs.PositionalAccuracy.Valid {
		acc := obs.PositionalAccuracy.Int64
		r.PositionalAccuracy = &acc
	}

	pairs := make([]string, 0, len(obs.Annotations))
	for _, a := range obs.Annotations {
		pairs = append(pairs, a.TermLabel+": "+a.ValueLabel)
		r.Annotations = append(r.Annotations, annotationRecord{
			TermID:  a.TermID,
			Term:    a.TermLabel,
			ValueID: a.ValueID,
			Value:   a.ValueLabel,
		})
	}
	r.AnnotationSummary = strings.Join(pairs, "; ")
	return r
}

func formatTime(t time.Time, valid bool) string {
	if !valid {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
