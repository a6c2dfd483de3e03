package leadio

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospector-cli/internal/model"
)

// SheetName is the worksheet written by ExportXLSX.
const SheetName = "Leads"

// ExportXLSX writes leads as a single-sheet workbook with the same columns
// as ExportCSV. Scores are numeric cells.
func ExportXLSX(w io.Writer, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "leadio: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Headers {
		header.AddCell().SetString(h)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		for _, v := range []string{l.Name, l.Email, l.Website, l.Phone, l.Address} {
			row.AddCell().SetString(v)
		}
		row.AddCell().SetFloat(l.Score)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "leadio: write xlsx")
	}
	return nil
}

// ReadXLSX decodes rows from the first sheet of a workbook written by
// ExportXLSX (or any sheet whose first row carries the standard headers).
func ReadXLSX(data []byte) ([]Row, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "leadio: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, c := range sheet.Rows[0].Cells {
		index[c.String()] = i
	}
	cell := func(r *xlsx.Row, h string) string {
		i, ok := index[h]
		if !ok || i >= len(r.Cells) {
			return ""
		}
		return r.Cells[i].String()
	}

	rows := make([]Row, 0, len(sheet.Rows)-1)
	for _, r := range sheet.Rows[1:] {
		rows = append(rows, Row{
			Name:    cell(r, HeaderName),
			Email:   cell(r, HeaderEmail),
			Website: cell(r, HeaderWebsite),
			Phone:   cell(r, HeaderPhone),
			Address: cell(r, HeaderAddress),
			Score:   cell(r, HeaderScore),
		})
	}
	return rows, nil
}
