package reportfile

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/attestation"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/declaration"
)

func sampleDeclaration(t *testing.T) *declaration.Declaration {
	t.Helper()
	d, err := declaration.NewDeclaration(declaration.PeriodQuarterly, 2026, 2)
	require.NoError(t, err)
	d.OpeningStock = types.NewQuantityFromFloat64(12000)
	d.Entries = types.NewQuantityFromFloat64(8000)
	d.Exits = types.NewQuantityFromFloat64(4000)
	d.ClosingStock = types.NewQuantityFromFloat64(16000)
	d.ExitsReduced = types.NewQuantityFromFloat64(3000)
	d.ExitsStandard = types.NewQuantityFromFloat64(1000)
	d.TaxDue = types.MustMoney("36390")
	d.ClientCount = 2
	return d
}

func sampleLines() []declaration.ClientLine {
	c := client.NewClient("CLI-100", "EARL des Champs")
	c.SIREN = "123456789"
	c.AddressLine = "12 route des Vignes"
	c.PostalCode = "21200"
	c.City = "Beaune"
	c.AttestationDossier = "ATT-2025-0042"
	return []declaration.ClientLine{{
		Client:           c,
		Volume:           types.NewQuantityFromFloat64(3000),
		TaxAmount:        types.MustMoney("11580"),
		Attestation:      attestation.StatusValid,
		AttestationLabel: attestation.StatusValid.String(),
	}}
}

func TestQuarterlyStatementXLSX(t *testing.T) {
	d := sampleDeclaration(t)

	var buf bytes.Buffer
	require.NoError(t, QuarterlyStatementXLSX(d, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	code, err := f.GetCellValue(sheetName, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2026-T2", code)

	entries, err := f.GetCellValue(sheetName, "B5")
	require.NoError(t, err)
	assert.Equal(t, "8000.0000", entries)

	taxDue, err := f.GetCellValue(sheetName, "B11")
	require.NoError(t, err)
	assert.Equal(t, "36390.00", taxDue)
}

func TestQuarterlyStatementCSV(t *testing.T) {
	d := sampleDeclaration(t)

	var buf bytes.Buffer
	require.NoError(t, QuarterlyStatementCSV(d, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 11)
	assert.Equal(t, []string{"Relevé trimestriel GNR", "2026-T2"}, records[0])
	assert.Equal(t, "Stock final (L)", records[5][0])
	assert.Equal(t, "16000.0000", records[5][1])
}

func TestClientListXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ClientListXLSX("2026-S1", sampleLines(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(sheetName, "B3")
	require.NoError(t, err)
	assert.Equal(t, "EARL des Champs", name)

	status, err := f.GetCellValue(sheetName, "H3")
	require.NoError(t, err)
	assert.Equal(t, "valid", status)
}

func TestClientListCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ClientListCSV("2026-S1", sampleLines(), &buf))

	reader := csv.NewReader(&buf)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, clientListHeader, records[1])
	assert.Equal(t, "CLI-100", records[2][0])
	assert.Equal(t, "11580.00", records[2][9])
}

func TestStatementDatesAreFrench(t *testing.T) {
	d := sampleDeclaration(t)
	d.GeneratedAt = time.Date(2026, 7, 3, 9, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, QuarterlyStatementCSV(d, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "01/04/2026 – 30/06/2026", records[1][1])
	assert.Equal(t, "03/07/2026 09:30", records[10][1])
}
