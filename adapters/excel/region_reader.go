// Package excel loads fine-mapping regions from analyst workbooks: a summary
// sheet with per-variant statistics plus an LD matrix, from .xlsx or .csv.
package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"corrcov/domain/core"
	"corrcov/domain/finemap"
)

// LDSheet is the workbook sheet holding the LD matrix when no separate LD file is given
const LDSheet = "LD"

// RegionReader reads a region from Excel or CSV files
type RegionReader struct {
	filePath string
	ldPath   string // optional separate LD matrix file; empty means the LD sheet of filePath
}

// NewRegionReader creates a reader for a summary-statistics workbook. ldPath
// may be empty when the workbook carries its own LD sheet.
func NewRegionReader(filePath, ldPath string) *RegionReader {
	return &RegionReader{filePath: filePath, ldPath: ldPath}
}

// Read loads the region. The summary sheet needs an `snp` column plus either
// (`z`, `maf`) or (`bhat`, `varbeta`); n0/n1 are the control/case sample sizes.
func (r *RegionReader) Read(n0, n1 int) (*finemap.Region, error) {
	log.Printf("[RegionReader] reading summary statistics from %s", r.filePath)

	rows, err := readRows(r.filePath, "Sheet1")
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("summary file must have a header row and at least one data row")
	}

	variants, err := parseVariants(rows)
	if err != nil {
		return nil, err
	}

	ldSource := r.ldPath
	var ld [][]float64
	if ldSource != "" {
		ldRows, err := readRows(ldSource, "Sheet1")
		if err != nil {
			return nil, fmt.Errorf("failed to read LD file: %w", err)
		}
		ld, err = parseLD(ldRows, len(variants))
		if err != nil {
			return nil, err
		}
	} else {
		ldRows, err := readRows(r.filePath, LDSheet)
		if err != nil {
			return nil, fmt.Errorf("no LD file given and workbook has no %s sheet: %w", LDSheet, err)
		}
		ld, err = parseLD(ldRows, len(variants))
		if err != nil {
			return nil, err
		}
	}

	log.Printf("[RegionReader] loaded %d variants with %dx%d LD matrix", len(variants), len(ld), len(ld))
	return &finemap.Region{
		Variants: variants,
		N0:       n0,
		N1:       n1,
		LD:       ld,
	}, nil
}

// readRows returns the raw string rows of a worksheet or CSV file
func readRows(path, sheet string) ([][]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer file.Close()
		return csv.NewReader(file).ReadAll()
	}

	start := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	log.Printf("[RegionReader] %s!%s read in %.2fms (%d rows)",
		filepath.Base(path), sheet, float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// parseVariants maps header names onto VariantStat fields, case-insensitively
func parseVariants(rows [][]string) ([]finemap.VariantStat, error) {
	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	snpCol, hasSNP := cols["snp"]
	_, hasZ := cols["z"]
	_, hasBhat := cols["bhat"]
	_, hasVarbeta := cols["varbeta"]
	_, hasMAF := cols["maf"]

	if !hasZ && !hasBhat {
		return nil, fmt.Errorf("summary sheet needs a z or bhat column, found: %s", strings.Join(rows[0], ", "))
	}
	if hasBhat && !hasVarbeta {
		return nil, fmt.Errorf("bhat column requires a varbeta column")
	}
	if hasZ && !hasBhat && !hasMAF {
		return nil, fmt.Errorf("z column requires a maf column to derive effect-size variances")
	}

	variants := make([]finemap.VariantStat, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		cell := func(name string) (float64, error) {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return 0, nil
			}
			raw := strings.TrimSpace(row[idx])
			if raw == "" {
				return 0, nil
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, fmt.Errorf("row %d: cannot parse %s value %q", i+1, name, raw)
			}
			return v, nil
		}

		var v finemap.VariantStat
		if hasSNP && snpCol < len(row) {
			v.ID = core.VariantID(strings.TrimSpace(row[snpCol]))
		}
		if v.ID == "" {
			v.ID = core.VariantID(fmt.Sprintf("snp%d", i))
		}

		var err error
		if v.Z, err = cell("z"); err != nil {
			return nil, err
		}
		if v.Bhat, err = cell("bhat"); err != nil {
			return nil, err
		}
		if v.Varbeta, err = cell("varbeta"); err != nil {
			return nil, err
		}
		if v.MAF, err = cell("maf"); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// parseLD reads a bare numeric matrix, skipping a leading header row if present
func parseLD(rows [][]string, nsnps int) ([][]float64, error) {
	if len(rows) > 0 && !isNumericRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) != nsnps {
		return nil, fmt.Errorf("LD matrix has %d rows for %d variants", len(rows), nsnps)
	}

	ld := make([][]float64, nsnps)
	for i, row := range rows {
		// Tolerate a leading row-label column.
		if len(row) == nsnps+1 && !isNumeric(row[0]) {
			row = row[1:]
		}
		if len(row) != nsnps {
			return nil, fmt.Errorf("LD matrix row %d has %d columns for %d variants", i+1, len(row), nsnps)
		}
		ld[i] = make([]float64, nsnps)
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("LD matrix cell (%d,%d): cannot parse %q", i+1, j+1, cell)
			}
			ld[i][j] = v
		}
	}
	return ld, nil
}

func isNumericRow(row []string) bool {
	for _, cell := range row {
		if !isNumeric(cell) {
			return false
		}
	}
	return len(row) > 0
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
