package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"EarnScan/internal/domain/models"
)

// Category labels for final_results.csv rows.
const (
	CategoryTierOne  = "TIER_1_RECOMMENDED"
	CategoryTierTwo  = "TIER_2_RECOMMENDED"
	CategoryNearMiss = "NEAR_MISS"
)

const (
	allTickersFile   = "all_tickers_analyzed.csv"
	finalResultsFile = "final_results.csv"
	summaryFile      = "scan_results.json"
)

const (
	colStatus   = "status"
	colCategory = "category"
	colReason   = "reason"
)

// preferredColumns fixes the leading column order of all_tickers_analyzed.csv.
// Metric keys outside this list follow alphabetically.
var preferredColumns = []string{
	models.MetricTicker,
	colStatus,
	models.MetricTier,
	models.MetricPrice,
	models.MetricVolume,
	models.MetricTermStructure,
	models.MetricIVRVRatio,
	models.MetricWinRate,
	models.MetricWinQuarters,
	models.MetricExpectedMoveUSD,
	models.MetricExpectedMovePct,
	models.MetricOpenInterest,
	models.MetricDaysToExpiry,
	colReason,
}

// finalColumns is the fixed layout of final_results.csv.
var finalColumns = []string{
	models.MetricTicker,
	colCategory,
	models.MetricTier,
	models.MetricPrice,
	models.MetricVolume,
	models.MetricTermStructure,
	models.MetricIVRVRatio,
	models.MetricWinRate,
	models.MetricWinQuarters,
	models.MetricExpectedMoveUSD,
	colReason,
}

// FileExporter writes one finished scan into a timestamped directory under
// baseDir: every analyzed ticker with its metric columns, a flattened
// recommendation summary, and the JSON summary shape.
type FileExporter struct {
	baseDir string
}

// NewFileExporter returns an exporter rooted at baseDir. An empty baseDir
// writes relative to the working directory.
func NewFileExporter(baseDir string) *FileExporter {
	return &FileExporter{baseDir: baseDir}
}

// Export writes all three files and returns the directory they landed in.
// The directory name carries the scan start time so repeated runs never clobber
// each other.
func (e *FileExporter) Export(res *models.ScanResult) (string, error) {
	dir := filepath.Join(e.baseDir, "scan_results_"+res.StartedAt.Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := e.writeAllTickers(filepath.Join(dir, allTickersFile), res); err != nil {
		return "", err
	}
	if err := e.writeFinalResults(filepath.Join(dir, finalResultsFile), res); err != nil {
		return "", err
	}
	if err := e.writeSummary(filepath.Join(dir, summaryFile), res); err != nil {
		return "", err
	}
	return dir, nil
}

// writeAllTickers emits one row per classification in discovery order. The
// header is the union of metric keys across every bundle, preferred keys first
// and the rest alphabetical, so partial bundles from early gate failures still
// line up.
func (e *FileExporter) writeAllTickers(path string, res *models.ScanResult) error {
	fields := map[string]bool{
		models.MetricTicker: true,
		colStatus:           true,
		colReason:           true,
	}
	for _, c := range res.Classifications {
		for k := range c.Metrics {
			fields[k] = true
		}
	}

	header := make([]string, 0, len(fields))
	for _, k := range preferredColumns {
		if fields[k] {
			header = append(header, k)
		}
	}
	inHeader := make(map[string]bool, len(header))
	for _, k := range header {
		inHeader[k] = true
	}
	rest := make([]string, 0, len(fields))
	for k := range fields {
		if !inHeader[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	header = append(header, rest...)

	rows := make([][]string, 0, len(res.Classifications))
	for _, c := range res.Classifications {
		row := make([]string, len(header))
		for i, k := range header {
			switch k {
			case models.MetricTicker:
				row[i] = c.Symbol
			case colStatus:
				row[i] = c.Status()
			case colReason:
				row[i] = c.Reason
			default:
				row[i] = formatValue(c.Metrics[k])
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

// writeFinalResults emits the flattened recommendation view: tier 1 rows, then
// tier 2, then near misses, each group in discovery order.
func (e *FileExporter) writeFinalResults(path string, res *models.ScanResult) error {
	var rows [][]string
	appendGroup := func(category string, match func(models.Classification) bool) {
		for _, c := range res.Classifications {
			if !match(c) {
				continue
			}
			row := make([]string, len(finalColumns))
			for i, k := range finalColumns {
				switch k {
				case models.MetricTicker:
					row[i] = c.Symbol
				case colCategory:
					row[i] = category
				case models.MetricTier:
					row[i] = strconv.Itoa(c.Tier)
				case colReason:
					row[i] = c.Reason
				default:
					row[i] = formatValue(c.Metrics[k])
				}
			}
			rows = append(rows, row)
		}
	}

	appendGroup(CategoryTierOne, func(c models.Classification) bool {
		return c.Outcome == models.OutcomePass && c.Tier == 1
	})
	appendGroup(CategoryTierTwo, func(c models.Classification) bool {
		return c.Outcome == models.OutcomePass && c.Tier == 2
	})
	appendGroup(CategoryNearMiss, func(c models.Classification) bool {
		return c.Outcome == models.OutcomeNearMiss
	})
	return writeCSV(path, finalColumns, rows)
}

func (e *FileExporter) writeSummary(path string, res *models.ScanResult) error {
	b, err := json.MarshalIndent(res.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", summaryFile, err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// formatValue renders one metric cell. Floats take the shortest decimal form
// without exponents; absent values render empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
