// Package report writes batch prediction results to disk.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"scoutout/internal/engine"
	"scoutout/internal/property"
)

// WriteBatch writes result to path. The format follows the extension:
// .csv, .json or .xlsx.
func WriteBatch(path string, result *engine.BatchResult) error {
	if result == nil {
		return fmt.Errorf("no batch result to write")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".json", ".xlsx":
	default:
		return fmt.Errorf("unsupported report format %q", ext)
	}
	if ext == ".xlsx" {
		if err := writeWorkbook(path, result); err != nil {
			return err
		}
		log.Info().Str("file", path).Int("rows", len(result.Rows)).Msg("Batch report generated")
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if ext == ".csv" {
		err = WriteCSV(file, result)
	} else {
		err = WriteJSON(file, result)
	}
	if err != nil {
		return err
	}

	log.Info().Str("file", path).Int("rows", len(result.Rows)).Msg("Batch report generated")
	return nil
}

// WriteCSV writes the input columns followed by the computed columns.
func WriteCSV(w io.Writer, result *engine.BatchResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(result.Columns); err != nil {
		return err
	}
	for _, row := range result.Rows {
		if err := writer.Write(record(row)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the rows as an indented array of flat objects.
func WriteJSON(w io.Writer, result *engine.BatchResult) error {
	rows := result.Rows
	if rows == nil {
		rows = []property.BatchRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeWorkbook(path string, result *engine.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]any, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range result.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, 0, len(row.Values)+len(property.ComputedColumns))
		for _, v := range row.Values {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				values = append(values, n)
			} else {
				values = append(values, v)
			}
		}
		for _, v := range row.Computed() {
			values = append(values, v)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func record(row property.BatchRow) []string {
	out := make([]string, 0, len(row.Values)+len(property.ComputedColumns))
	out = append(out, row.Values...)
	for _, v := range row.Computed() {
		out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return out
}

// Summary aggregates a batch for the command line.
type Summary struct {
	Rows                int     `json:"rows" yaml:"rows"`
	MeanPrice           float64 `json:"mean_price" yaml:"mean_price"`
	MedianPrice         float64 `json:"median_price" yaml:"median_price"`
	MinPrice            float64 `json:"min_price" yaml:"min_price"`
	MaxPrice            float64 `json:"max_price" yaml:"max_price"`
	MeanConfidence      float64 `json:"mean_confidence" yaml:"mean_confidence"`
	MeanInvestmentScore float64 `json:"mean_investment_score" yaml:"mean_investment_score"`
	HighInvestmentRows  int     `json:"high_investment_rows" yaml:"high_investment_rows"`
	HighRiskRows        int     `json:"high_risk_rows" yaml:"high_risk_rows"`
}

// High score threshold used for the investment and risk counts.
const highScore = 70

// Summarize computes batch statistics. An empty result yields a zero Summary.
func Summarize(result *engine.BatchResult) Summary {
	if result == nil || len(result.Rows) == 0 {
		return Summary{}
	}

	n := len(result.Rows)
	prices := make(stats.Float64Data, n)
	confidences := make(stats.Float64Data, n)
	investments := make(stats.Float64Data, n)

	s := Summary{Rows: n}
	for i, row := range result.Rows {
		prices[i] = row.PredictedPrice
		confidences[i] = row.Confidence
		investments[i] = row.InvestmentScore
		if row.InvestmentScore >= highScore {
			s.HighInvestmentRows++
		}
		if row.RiskScore >= highScore {
			s.HighRiskRows++
		}
	}

	s.MeanPrice, _ = prices.Mean()
	s.MedianPrice, _ = prices.Median()
	s.MinPrice, _ = prices.Min()
	s.MaxPrice, _ = prices.Max()
	s.MeanConfidence, _ = confidences.Mean()
	s.MeanInvestmentScore, _ = investments.Mean()
	return s
}
