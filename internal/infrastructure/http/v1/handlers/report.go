package handlers

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/domain/reportfile"
	"gnrtax/pkg/logger"
)

// ReportHandler renders declarations into the statutory file formats.
type ReportHandler struct {
	*BaseHandler
	decls *declaration.Service

	// outputDir keeps a copy of every rendered file; empty disables it
	outputDir string
}

// NewReportHandler creates a new report handler.
func NewReportHandler(decls *declaration.Service, outputDir string) *ReportHandler {
	return &ReportHandler{
		BaseHandler: NewBaseHandler(),
		decls:       decls,
		outputDir:   outputDir,
	}
}

// QuarterlyStatement renders the quarterly stock-and-tax statement.
// GET /api/v1/reports/quarterly-statement?year=2026&index=2&format=xlsx
func (h *ReportHandler) QuarterlyStatement(c *gin.Context) {
	year := h.ParseIntQuery(c, "year", 0)
	index := h.ParseIntQuery(c, "index", 0)
	if year == 0 || index == 0 {
		h.Error(c, apperror.NewValidation("year and index are required"))
		return
	}

	d, err := h.decls.GetByPeriod(c.Request.Context(), declaration.PeriodQuarterly, year, index)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	format := c.DefaultQuery("format", "xlsx")
	switch format {
	case "xlsx":
		err = reportfile.QuarterlyStatementXLSX(d, &buf)
	case "csv":
		err = reportfile.QuarterlyStatementCSV(d, &buf)
	default:
		h.Error(c, apperror.NewValidation("unsupported format").WithDetail("format", format))
		return
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	filename := fmt.Sprintf("releve-%s.%s", d.Code, format)
	h.deliver(c, filename, format, buf.Bytes())
}

// ClientList renders the semestrial client list.
// GET /api/v1/reports/client-list?year=2026&index=1&format=xlsx
func (h *ReportHandler) ClientList(c *gin.Context) {
	year := h.ParseIntQuery(c, "year", 0)
	index := h.ParseIntQuery(c, "index", 0)
	if year == 0 || index == 0 {
		h.Error(c, apperror.NewValidation("year and index are required"))
		return
	}

	ctx := c.Request.Context()

	d, err := h.decls.GetByPeriod(ctx, declaration.PeriodSemestrial, year, index)
	if err != nil {
		h.Error(c, err)
		return
	}

	lines, err := h.decls.Aggregator().ClientLines(ctx, d.StartDate, d.EndDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	format := c.DefaultQuery("format", "xlsx")
	switch format {
	case "xlsx":
		err = reportfile.ClientListXLSX(d.Code, lines, &buf)
	case "csv":
		err = reportfile.ClientListCSV(d.Code, lines, &buf)
	default:
		h.Error(c, apperror.NewValidation("unsupported format").WithDetail("format", format))
		return
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	filename := fmt.Sprintf("clients-%s.%s", d.Code, format)
	h.deliver(c, filename, format, buf.Bytes())
}

// deliver streams the rendered file and keeps a copy in outputDir.
func (h *ReportHandler) deliver(c *gin.Context, filename, format string, data []byte) {
	if h.outputDir != "" {
		path := filepath.Join(h.outputDir, filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Warn(c.Request.Context(), "report copy not written",
				"path", path,
				"error", err,
			)
		}
	}

	contentType := reportfile.ContentTypeXLSX
	if format == "csv" {
		contentType = reportfile.ContentTypeCSV
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(200, contentType, data)
}
