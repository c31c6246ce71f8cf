package output

import (
	"fmt"
	"time"

	"github.com/dtnitsch/ffrate-extractor/pkg/combiner"
	"github.com/xuri/excelize/v2"
)

// ComparisonSheet is the sheet name of the comparison workbook.
const ComparisonSheet = "comparison"

var comparisonHeader = []any{
	"date", "panel",
	"our_p25", "our_median", "our_p75",
	"ref_p25", "ref_median", "ref_p75",
	"median_diff", "abs_diff", "source", "flag",
}

func cellValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// WriteComparison saves rows as a single-sheet workbook at path.
func WriteComparison(path string, rows []combiner.ComparisonRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ComparisonSheet); err != nil {
		return fmt.Errorf("failed to name comparison sheet: %w", err)
	}

	header := comparisonHeader
	if err := f.SetSheetRow(ComparisonSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write comparison header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(ComparisonSheet, 1, 1, style)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.Date.Format(time.DateOnly), string(r.Panel),
			cellValue(r.OurPctl25), cellValue(r.OurMedian), cellValue(r.OurPctl75),
			cellValue(r.RefPctl25), cellValue(r.RefMedian), cellValue(r.RefPctl75),
			cellValue(r.MedianDiff), cellValue(r.AbsDiff), string(r.Source), r.Flag,
		}
		if err := f.SetSheetRow(ComparisonSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write comparison row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save comparison workbook: %w", err)
	}
	return nil
}
