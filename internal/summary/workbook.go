package summary

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook.
const (
	SheetUploads      = "Uploads"
	SheetChunks       = "Chunks"
	SheetVerification = "Verification"
)

// Workbook builds the XLSX summary. The caller must Close it.
func Workbook(s *Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetUploads); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetChunks, SheetVerification} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	rows := map[string][][]any{
		SheetUploads:      uploadRows(s),
		SheetChunks:       chunkRows(s),
		SheetVerification: verificationRows(s),
	}
	for sheet, data := range rows {
		for i, row := range data {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				f.Close()
				return nil, fmt.Errorf("summary: writing %s: %w", sheet, err)
			}
		}
	}
	return f, nil
}

func uploadRows(s *Summary) [][]any {
	rows := [][]any{{"Table", "Records", "Succeeded", "Failed", "Skipped", "Not attempted"}}
	for _, r := range s.Uploads {
		rows = append(rows, []any{r.Table, r.Total, r.Succeeded, r.Failed, r.Skipped, r.NotAttempted})
	}
	t := s.Totals()
	return append(rows, []any{"total", t.Records, t.Succeeded, t.Failed, t.Skipped, t.NotAttempted})
}

func chunkRows(s *Summary) [][]any {
	rows := [][]any{{"Table", "Chunk", "Offset", "Size", "Batch", "Outcome", "Attempts", "Duration (ms)", "Error"}}
	for _, r := range s.Uploads {
		for _, c := range r.Chunks {
			var msg string
			if c.Err != nil {
				msg = c.Err.Error()
			}
			rows = append(rows, []any{r.Table, c.Index, c.Offset, c.Size, c.BatchID,
				string(c.Outcome), c.Attempts, c.Duration.Milliseconds(), msg})
		}
	}
	return rows
}

func verificationRows(s *Summary) [][]any {
	rows := [][]any{{"Check", "Achieved", "Expected", "Delta", "Delta %", "Tolerance %", "Within tolerance"}}
	for _, v := range s.Verification {
		rows = append(rows, []any{v.Check,
			v.Achieved.InexactFloat64(), v.Expected.InexactFloat64(), v.Delta.InexactFloat64(),
			v.DeltaFraction * 100, v.Tolerance * 100, v.WithinTolerance})
	}
	return rows
}

// WriteWorkbook writes the XLSX summary to w.
func WriteWorkbook(w io.Writer, s *Summary) error {
	f, err := Workbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// SaveWorkbook writes the XLSX summary to path.
func SaveWorkbook(path string, s *Summary) error {
	f, err := Workbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}
