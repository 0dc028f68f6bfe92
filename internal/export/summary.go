package export

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/inatfetch/internal/models"
)

// SummaryReporter prints the end-of-run summary as plain text.
type SummaryReporter struct {
	out io.Writer
}

func NewSummaryReporter(out io.Writer) *SummaryReporter {
	return &SummaryReporter{out: out}
}

func (r *SummaryReporter) Report(s models.Summary) error {
	var b strings.Builder

	b.WriteString("\nSummary:\n")
	if s.Place != "" {
		fmt.Fprintf(&b, "Place: %s\n", s.Place)
	}
	if s.TotalObservations == 0 {
		b.WriteString("No observations found matching the criteria.\n")
		_, err := io.WriteString(r.out, b.String())
		return err
	}

	fmt.Fprintf(&b, "Total observations retrieved: %s\n", humanize.Comma(int64(s.TotalObservations)))
	fmt.Fprintf(&b, "Observations with annotations: %s of %s examined (%.1f%%)\n",
		humanize.Comma(int64(s.ObservationsWithAnnotations)),
		humanize.Comma(int64(s.ObservationsExamined)),
		s.AnnotationPercentage())
	if s.EarliestObserved.Valid && s.LatestObserved.Valid {
		fmt.Fprintf(&b, "Date range: %s to %s\n",
			s.EarliestObserved.Time.Format(time.DateOnly), s.LatestObserved.Time.Format(time.DateOnly))
	}

	b.WriteString("\nQuality grades:\n")
	for _, grade := range slices.Sorted(maps.Keys(s.QualityGrades)) {
		fmt.Fprintf(&b, "  %s: %s\n", grade, humanize.Comma(int64(s.QualityGrades[grade])))
	}

	b.WriteString("\nAnnotation breakdown:\n")
	keys := slices.SortedFunc(maps.Keys(s.Annotations), func(x, y models.AnnotationKey) int {
		return cmp.Or(cmp.Compare(x.TermLabel, y.TermLabel), cmp.Compare(x.ValueLabel, y.ValueLabel))
	})
	for i, k := range keys {
		if i == 0 || k.TermLabel != keys[i-1].TermLabel {
			fmt.Fprintf(&b, "  %s:\n", k.TermLabel)
		}
		fmt.Fprintf(&b, "    %s: %s\n", k.ValueLabel, humanize.Comma(int64(s.Annotations[k])))
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}
