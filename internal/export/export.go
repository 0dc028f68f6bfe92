// Package export writes pipeline results to CSV, JSON and XLSX files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lox/inatfetch/internal/models"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv", "json" or "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("unknown output format %q", s)
	}
}

const timestampLayout = "20060102_150405"

// Writer writes one file per format into dir. Every file from the same
// Writer shares the timestamp taken at construction.
type Writer struct {
	dir      string
	baseName string
	stamp    string
}

// NewWriter names files <species-slug>_<term>-<value>_<timestamp>.<ext>.
func NewWriter(dir, species string, filter models.AnnotationFilter, now time.Time) *Writer {
	base := slugify(species)
	if base == "" {
		base = "observations"
	}
	return &Writer{
		dir:      dir,
		baseName: fmt.Sprintf("%s_%d-%d", base, filter.TermID, filter.ValueID),
		stamp:    now.Format(timestampLayout),
	}
}

// Path returns the file path Write uses for format.
func (w *Writer) Path(format Format) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", w.baseName, w.stamp, format))
}

func (w *Writer) Write(records []models.Observation, format Format) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = EncodeCSV(records)
	case FormatJSON:
		data, err = EncodeJSON(records)
	case FormatXLSX:
		data, err = EncodeXLSX(records)
	default:
		return "", eris.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", eris.Wrapf(err, "create output directory %s", w.dir)
	}
	path := w.Path(format)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", eris.Wrapf(err, "write %s", path)
	}

	zap.L().Info("export: saved observations",
		zap.String("path", path),
		zap.Int("count", len(records)),
	)
	return path, nil
}

// EncodeCSV renders records as CSV with a header row, even when empty.
func EncodeCSV(records []models.Observation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)

	if err := enc.EncodeHeader(record{}); err != nil {
		return nil, eris.Wrap(err, "encode csv header")
	}
	for _, obs := range records {
		if err := enc.Encode(newRecord(obs)); err != nil {
			return nil, eris.Wrapf(err, "encode observation %d", obs.ID)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "flush csv")
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders records as an indented JSON array.
func EncodeJSON(records []models.Observation) ([]byte, error) {
	out := make([]record, 0, len(records))
	for _, obs := range records {
		out = append(out, newRecord(obs))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "encode json")
	}
	return append(data, '\n'), nil
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// slugify folds accents to ASCII ("Québec" -> "quebec") before stripping
// anything that is not a word character, space or hyphen.
func slugify(s string) string {
	deaccent := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(deaccent, s); err == nil {
		s = folded
	}
	s = slugStrip.ReplaceAllString(strings.ToLower(s), "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}
