package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"corrcov/domain/core"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCSVRegion(t *testing.T) {
	summary := writeTempCSV(t, "summary.csv",
		"snp,z,maf\nrs1,4.2,0.3\nrs2,1.8,0.25\nrs3,0.5,0.4\n")
	ld := writeTempCSV(t, "ld.csv",
		"1,0.2,0.1\n0.2,1,0.3\n0.1,0.3,1\n")

	region, err := NewRegionReader(summary, ld).Read(5000, 5000)
	require.NoError(t, err)

	require.Equal(t, 3, region.NSnps())
	assert.Equal(t, core.VariantID("rs1"), region.Variants[0].ID)
	assert.InDelta(t, 4.2, region.Variants[0].Z, 1e-12)
	assert.InDelta(t, 0.25, region.Variants[1].MAF, 1e-12)
	assert.Equal(t, 5000, region.N0)
	assert.InDelta(t, 0.3, region.LD[1][2], 1e-12)
}

func TestReadCSVRegionBhatFamily(t *testing.T) {
	summary := writeTempCSV(t, "summary.csv",
		"snp,bhat,varbeta\nrs1,0.4,0.01\nrs2,-0.2,0.04\n")
	ld := writeTempCSV(t, "ld.csv", "1,0\n0,1\n")

	region, err := NewRegionReader(summary, ld).Read(0, 0)
	require.NoError(t, err)

	require.Equal(t, 2, region.NSnps())
	assert.InDelta(t, 0.4, region.Variants[0].Bhat, 1e-12)
	assert.InDelta(t, 0.04, region.Variants[1].Varbeta, 1e-12)
}

func TestReadCSVRegionDefaultsVariantIDs(t *testing.T) {
	summary := writeTempCSV(t, "summary.csv", "z,maf\n2.0,0.3\n1.0,0.3\n")
	ld := writeTempCSV(t, "ld.csv", "1,0\n0,1\n")

	region, err := NewRegionReader(summary, ld).Read(100, 100)
	require.NoError(t, err)

	assert.Equal(t, core.VariantID("snp1"), region.Variants[0].ID)
	assert.Equal(t, core.VariantID("snp2"), region.Variants[1].ID)
}

func TestReadLDWithHeaderAndLabels(t *testing.T) {
	summary := writeTempCSV(t, "summary.csv", "snp,z,maf\nrs1,2.0,0.3\nrs2,1.0,0.3\n")
	ld := writeTempCSV(t, "ld.csv", ",rs1,rs2\nrs1,1,0.5\nrs2,0.5,1\n")

	region, err := NewRegionReader(summary, ld).Read(100, 100)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, region.LD[0][1], 1e-12)
	assert.InDelta(t, 1.0, region.LD[1][1], 1e-12)
}

func TestReadCSVRegionErrors(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		ld      string
	}{
		{"missing stat columns", "snp,pvalue\nrs1,0.01\n", "1\n"},
		{"bhat without varbeta", "snp,bhat\nrs1,0.4\n", "1\n"},
		{"z without maf", "snp,z\nrs1,2.0\n", "1\n"},
		{"ld dimension mismatch", "snp,z,maf\nrs1,2.0,0.3\nrs2,1.0,0.3\n", "1,0\n"},
		{"unparseable cell", "snp,z,maf\nrs1,abc,0.3\n", "1\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			summary := writeTempCSV(t, "summary.csv", test.summary)
			ld := writeTempCSV(t, "ld.csv", test.ld)

			_, err := NewRegionReader(summary, ld).Read(100, 100)
			assert.Error(t, err)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := NewRegionReader(filepath.Join(t.TempDir(), "nope.csv"), "").Read(100, 100)
	assert.Error(t, err)
}

func TestReadWorkbookWithLDSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"snp", "z", "maf"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"rs1", 3.1, 0.3}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"rs2", 0.9, 0.2}))
	_, err := f.NewSheet(LDSheet)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(LDSheet, "A1", &[]interface{}{1.0, 0.4}))
	require.NoError(t, f.SetSheetRow(LDSheet, "A2", &[]interface{}{0.4, 1.0}))

	path := filepath.Join(t.TempDir(), "region.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	region, err := NewRegionReader(path, "").Read(2000, 2000)
	require.NoError(t, err)

	require.Equal(t, 2, region.NSnps())
	assert.Equal(t, core.VariantID("rs2"), region.Variants[1].ID)
	assert.InDelta(t, 0.4, region.LD[0][1], 1e-12)
}
