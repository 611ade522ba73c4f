package fetcher

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the bulletin sheet and, on write, names it.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string // wins over SheetIndex
	SkipRows   int    // banner rows above the header
}

// DefaultSheetName names the sheet WriteXLSX creates when none is given.
const DefaultSheetName = "Ocorrencias"

// ReadXLSX returns the formatted cell values of one sheet. SSP exports pad
// the sheet with styled but empty cells, so trailing blank cells are cut and
// blank rows dropped.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		if cells := cellValues(row, f.Date1904); len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows, nil
}

// WriteXLSX writes rows as text cells to a single-sheet workbook.
func WriteXLSX(path string, rows [][]string, opts XLSXOptions) error {
	name := opts.SheetName
	if name == "" {
		name = DefaultSheetName
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", name)
	}
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		if sheet, ok := f.Sheet[opts.SheetName]; ok {
			return sheet, nil
		}
		names := make([]string, 0, len(f.Sheets))
		for _, s := range f.Sheets {
			names = append(names, s.Name)
		}
		return nil, eris.Errorf("xlsx: sheet %q not found (have %s)", opts.SheetName, strings.Join(names, ", "))
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// cellValues returns the row up to its last non-blank cell.
func cellValues(row *xlsx.Row, date1904 bool) []string {
	last := -1
	values := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		if cell == nil {
			continue
		}
		values[i] = cellText(cell, date1904)
		if strings.TrimSpace(values[i]) != "" {
			last = i
		}
	}
	return values[:last+1]
}

// cellText renders date and time cells in ISO form, since their display
// format is locale dependent. Other cells keep their formatted value.
func cellText(cell *xlsx.Cell, date1904 bool) string {
	if !cell.IsTime() {
		return cell.String()
	}
	serial, err := cell.Float()
	if err != nil || serial < 0 {
		return cell.String()
	}
	if serial < 1 {
		secs := int(math.Round(serial*86400)) % 86400
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	ts := xlsx.TimeFromExcelTime(serial, date1904).Round(time.Second)
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
		return ts.Format("2006-01-02")
	}
	return ts.Format("2006-01-02 15:04:05")
}
