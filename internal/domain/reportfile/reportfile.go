// Package reportfile renders declarations into the statutory exchange
// formats: XLSX workbooks for the accountant, CSV for the tax portal.
package reportfile

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/domain/declaration"
)

// ContentTypeXLSX is the MIME type of rendered workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ContentTypeCSV is the MIME type of rendered CSV files.
const ContentTypeCSV = "text/csv; charset=utf-8"

const sheetName = "Sheet1"

// QuarterlyStatementXLSX renders the quarterly stock-and-tax statement.
func QuarterlyStatementXLSX(d *declaration.Declaration, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	rows := statementRows(d)
	f.SetCellValue(sheetName, "A1", "Relevé trimestriel GNR")
	f.SetCellValue(sheetName, "B1", d.Code)
	for i, row := range rows {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(i+3), row[0])
		f.SetCellValue(sheetName, "B"+fmt.Sprint(i+3), row[1])
	}

	if err := f.Write(w); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// QuarterlyStatementCSV renders the same statement as CSV.
func QuarterlyStatementCSV(d *declaration.Declaration, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Relevé trimestriel GNR", d.Code}); err != nil {
		return apperror.NewInternal(err)
	}
	for _, row := range statementRows(d) {
		if err := cw.Write(row); err != nil {
			return apperror.NewInternal(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// statementRows lays out the statement in declaration order: stock
// movements first, then the attestation split, then the tax due.
func statementRows(d *declaration.Declaration) [][]string {
	return [][]string{
		{"Période", fmt.Sprintf("%s – %s", d.StartDate.Format("02/01/2006"), d.EndDate.Format("02/01/2006"))},
		{"Stock initial (L)", d.OpeningStock.String()},
		{"Entrées (L)", d.Entries.String()},
		{"Sorties (L)", d.Exits.String()},
		{"Stock final (L)", d.ClosingStock.String()},
		{"Sorties sous attestation (L)", d.ExitsReduced.String()},
		{"Sorties au taux plein (L)", d.ExitsStandard.String()},
		{"Nombre de clients", fmt.Sprint(d.ClientCount)},
		{"Taxe due (EUR)", d.TaxDue.StringFixed(2)},
		{"Généré le", d.GeneratedAt.Format("02/01/2006 15:04")},
	}
}

var clientListHeader = []string{
	"Code client", "Raison sociale", "SIREN",
	"Adresse", "Code postal", "Ville",
	"N° dossier attestation", "Statut attestation",
	"Volume livré (L)", "Taxe (EUR)",
}

// ClientListXLSX renders the semestrial client list.
func ClientListXLSX(code string, lines []declaration.ClientLine, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetCellValue(sheetName, "A1", "Liste semestrielle des clients GNR")
	f.SetCellValue(sheetName, "B1", code)
	for col, h := range clientListHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return apperror.NewInternal(err)
		}
		f.SetCellValue(sheetName, cell, h)
	}

	for i, line := range lines {
		for col, value := range clientListRow(line) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+3)
			if err != nil {
				return apperror.NewInternal(err)
			}
			f.SetCellValue(sheetName, cell, value)
		}
	}

	if err := f.Write(w); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// ClientListCSV renders the client list as CSV.
func ClientListCSV(code string, lines []declaration.ClientLine, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Liste semestrielle des clients GNR", code}); err != nil {
		return apperror.NewInternal(err)
	}
	if err := cw.Write(clientListHeader); err != nil {
		return apperror.NewInternal(err)
	}
	for _, line := range lines {
		if err := cw.Write(clientListRow(line)); err != nil {
			return apperror.NewInternal(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

func clientListRow(line declaration.ClientLine) []string {
	c := line.Client
	return []string{
		c.Code, c.Name, c.SIREN,
		c.AddressLine, c.PostalCode, c.City,
		c.AttestationDossier, line.AttestationLabel,
		line.Volume.String(), line.TaxAmount.StringFixed(2),
	}
}
