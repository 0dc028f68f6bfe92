// Package labels maps iNaturalist controlled term, value and place IDs to
// human-readable names.
package labels

import (
	_ "embed"
	"fmt"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var defaultYAML []byte

// PlaceInfo describes a known place.
type PlaceInfo struct {
	Name      string  `yaml:"name"`
	BBoxArea  float64 `yaml:"bbox_area"`
	PlaceType *int    `yaml:"place_type"`
}

// Table holds label lookups. All lookup methods are total: unknown IDs get a
// synthesized "unknown (<id>)" label.
type Table struct {
	Terms      map[int64]string    `yaml:"terms"`
	Values     map[int64]string    `yaml:"values"`
	PlaceTypes map[int]string      `yaml:"place_types"`
	Places     map[int64]PlaceInfo `yaml:"places"`
}

// Default returns the embedded label table.
func Default() *Table {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("labels: embedded table: %v", err))
	}
	return t
}

// Parse decodes a YAML label table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "labels: parse yaml")
	}
	if t.Terms == nil {
		t.Terms = map[int64]string{}
	}
	if t.Values == nil {
		t.Values = map[int64]string{}
	}
	if t.PlaceTypes == nil {
		t.PlaceTypes = map[int]string{}
	}
	if t.Places == nil {
		t.Places = map[int64]PlaceInfo{}
	}
	return &t, nil
}

// Unknown is the fallback label for an ID missing from the table.
func Unknown(id int64) string {
	return fmt.Sprintf("unknown (%d)", id)
}

func (t *Table) LookupTerm(id int64) (string, bool) {
	label, ok := t.Terms[id]
	return label, ok
}

func (t *Table) LookupValue(id int64) (string, bool) {
	label, ok := t.Values[id]
	return label, ok
}

func (t *Table) Term(id int64) string {
	if label, ok := t.LookupTerm(id); ok {
		return label
	}
	return Unknown(id)
}

func (t *Table) Value(id int64) string {
	if label, ok := t.LookupValue(id); ok {
		return label
	}
	return Unknown(id)
}

// Place returns place metadata, falling back to a "not found" record.
func (t *Table) Place(id int64) PlaceInfo {
	if info, ok := t.Places[id]; ok {
		return info
	}
	return PlaceInfo{Name: fmt.Sprintf("Not found (%d)", id)}
}

// PlaceType returns the label for a place type code.
func (t *Table) PlaceType(code int) string {
	if label, ok := t.PlaceTypes[code]; ok {
		return label
	}
	return Unknown(int64(code))
}

// DescribePlace renders a known place as "Name (Type)", or just the name when
// the place has no type. Unknown places report false.
func (t *Table) DescribePlace(id int64) (string, bool) {
	info, ok := t.Places[id]
	if !ok {
		return "", false
	}
	if info.PlaceType == nil {
		return info.Name, true
	}
	return fmt.Sprintf("%s (%s)", info.Name, t.PlaceType(*info.PlaceType)), true
}
