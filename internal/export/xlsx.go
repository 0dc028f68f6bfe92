package export

import (
	"bytes"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lox/inatfetch/internal/models"
)

const sheetName = "observations"

// rowCollector satisfies csvutil.Writer by buffering rows in memory.
type rowCollector struct {
	rows [][]string
}

func (c *rowCollector) Write(row []string) error {
	c.rows = append(c.rows, append([]string(nil), row...))
	return nil
}

// EncodeXLSX renders records as a single-sheet workbook with the same
// columns as the CSV output.
func EncodeXLSX(records []models.Observation) ([]byte, error) {
	rows := &rowCollector{}
	enc := csvutil.NewEncoder(rows)
	if err := enc.EncodeHeader(record{}); err != nil {
		return nil, eris.Wrap(err, "xlsx: encode header")
	}
	for _, obs := range records {
		if err := enc.Encode(newRecord(obs)); err != nil {
			return nil, eris.Wrapf(err, "xlsx: encode observation %d", obs.ID)
		}
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}
	for _, cells := range rows.rows {
		row := sheet.AddRow()
		for _, value := range cells {
			row.AddCell().SetString(value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "xlsx: write workbook")
	}
	return buf.Bytes(), nil
}
