// Package report формирует файловые артефакты по результатам сьюта
// проверок: XLSX-отчет для разбора людьми и сжатый JSON-архив
// с контрольной суммой для долгого хранения.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/tpcc-workbench/pkg/acid"
)

// Имена листов XLSX-отчета
const (
	summarySheet = "Summary"
	checksSheet  = "Checks"
)

// WriteXLSX записывает результат сьюта в XLSX-файл: лист Summary
// с итогами и лист Checks с построчной разбивкой проверок.
//
// Пример:
//
//	err := report.WriteXLSX(result, "acid-report.xlsx")
func WriteXLSX(result *acid.SuiteResult, filePath string) error {
	if result == nil {
		return fmt.Errorf("suite result is nil")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	passedStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#107C10"},
	})
	failedStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#C42B1C"},
	})

	if err := writeSummarySheet(f, result, headerStyle); err != nil {
		return err
	}
	if err := writeChecksSheet(f, result, headerStyle, passedStyle, failedStyle); err != nil {
		return err
	}
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save xlsx report: %w", err)
	}
	return nil
}

// writeSummarySheet пишет лист с итогами сьюта
func writeSummarySheet(f *excelize.File, result *acid.SuiteResult, headerStyle int) error {
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	f.SetActiveSheet(index)

	f.SetCellValue(summarySheet, "A1", "Parameter")
	f.SetCellValue(summarySheet, "B1", "Value")
	f.SetCellStyle(summarySheet, "A1", "B1", headerStyle)

	verdict := "PASSED"
	if !result.Passed() {
		verdict = "FAILED"
	}
	rows := []struct {
		name  string
		value any
	}{
		{"Backend", result.Provider},
		{"Session", result.SessionID},
		{"Verdict", verdict},
		{"Checks total", result.Summary.Total},
		{"Checks passed", result.Summary.Passed},
		{"Checks failed", result.Summary.Failed},
		{"Success rate (%)", result.Summary.SuccessRate},
		{"Duration (ms)", result.Summary.DurationMs},
		{"Started at", result.StartedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Finished at", result.FinishedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	for i, row := range rows {
		f.SetCellValue(summarySheet, "A"+strconv.Itoa(i+2), row.name)
		f.SetCellValue(summarySheet, "B"+strconv.Itoa(i+2), row.value)
	}

	f.SetColWidth(summarySheet, "A", "A", 20)
	f.SetColWidth(summarySheet, "B", "B", 28)
	return nil
}

// writeChecksSheet пишет лист с построчной разбивкой проверок:
// автофильтр по заголовку, первая строка закреплена
func writeChecksSheet(f *excelize.File, result *acid.SuiteResult, headerStyle, passedStyle, failedStyle int) error {
	if _, err := f.NewSheet(checksSheet); err != nil {
		return fmt.Errorf("failed to create checks sheet: %w", err)
	}

	headers := []string{"#", "Check", "Status", "Duration (ms)", "Description", "Details"}
	for col, header := range headers {
		cell := columnName(col+1) + "1"
		f.SetCellValue(checksSheet, cell, header)
		f.SetCellStyle(checksSheet, cell, cell, headerStyle)
	}

	for i, check := range result.Checks {
		row := strconv.Itoa(i + 2)
		f.SetCellValue(checksSheet, "A"+row, i+1)
		f.SetCellValue(checksSheet, "B"+row, check.Name)
		f.SetCellValue(checksSheet, "C"+row, string(check.Status))
		f.SetCellValue(checksSheet, "D"+row, check.DurationMs)
		f.SetCellValue(checksSheet, "E"+row, check.Description)
		f.SetCellValue(checksSheet, "F"+row, flattenDetails(check.Details))

		statusStyle := passedStyle
		if !check.Passed() {
			statusStyle = failedStyle
		}
		f.SetCellStyle(checksSheet, "C"+row, "C"+row, statusStyle)
	}

	lastRow := len(result.Checks) + 1
	filterRange := fmt.Sprintf("A1:F%d", lastRow)
	if err := f.AutoFilter(checksSheet, filterRange, nil); err != nil {
		return fmt.Errorf("failed to set autofilter: %w", err)
	}
	if err := f.SetPanes(checksSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}

	widths := map[string]float64{"A": 5, "B": 14, "C": 10, "D": 14, "E": 52, "F": 60}
	for col, width := range widths {
		f.SetColWidth(checksSheet, col, col, width)
	}
	return nil
}

// flattenDetails сводит детали проверки в одну строку со стабильным
// порядком ключей
func flattenDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, details[key]))
	}
	return strings.Join(parts, "; ")
}

// columnName переводит номер колонки в имя колонки Excel (1 → A, 27 → AA)
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
