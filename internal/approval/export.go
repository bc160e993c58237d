// internal/approval/export.go
package approval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "property-approvals/internal/common/errors"
	"property-approvals/internal/common/logger"
)

// Format is an export output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query-string value onto a Format. Empty defaults to
// CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unsupported export format: %q", s))
	}
}

// ContentType returns the MIME type the API layer sends for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Exporter streams filtered requests to a writer. It pages through the
// store so an export never loads the full result set into memory.
type Exporter struct {
	store    Store
	pageSize int
	logger   logger.Logger
}

func NewExporter(store Store, pageSize int, log logger.Logger) *Exporter {
	if pageSize < 1 {
		pageSize = 500
	}
	return &Exporter{
		store:    store,
		pageSize: pageSize,
		logger:   log.WithFields(map[string]interface{}{"component": "exporter"}),
	}
}

// Export writes every request matching the filter to w in the given
// format. Pagination fields on the filter are ignored; the export always
// covers the full filtered set.
func (e *Exporter) Export(ctx context.Context, w io.Writer, filter Filter, format Format) error {
	switch format {
	case FormatCSV:
		return e.exportCSV(ctx, w, filter)
	case FormatJSON:
		return e.exportJSON(ctx, w, filter)
	case FormatXLSX:
		return e.exportXLSX(ctx, w, filter)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unsupported export format: %q", format))
	}
}

// forEach pages through the filtered set and calls fn for every request.
func (e *Exporter) forEach(ctx context.Context, filter Filter, fn func(*Request) error) error {
	filter.PageSize = e.pageSize
	for page := 1; ; page++ {
		filter.Page = page
		result, err := e.store.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, req := range result.Items {
			if err := fn(req); err != nil {
				return err
			}
		}
		if len(result.Items) < e.pageSize {
			return nil
		}
	}
}

func exportHeader() []string {
	return []string{
		"id", "kind", "target_id", "requested_by", "status",
		"reviewed_by", "reviewed_at", "notes", "created_at", "updated_at",
	}
}

func exportRow(req *Request) []string {
	reviewedBy := ""
	if req.ReviewedBy != nil {
		reviewedBy = *req.ReviewedBy
	}
	reviewedAt := ""
	if req.ReviewedAt != nil {
		reviewedAt = req.ReviewedAt.UTC().Format(time.RFC3339)
	}
	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}
	return []string{
		req.ID.String(),
		req.Kind.String(),
		req.TargetID,
		req.RequestedBy,
		req.Status.String(),
		reviewedBy,
		reviewedAt,
		notes,
		req.CreatedAt.UTC().Format(time.RFC3339),
		req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (e *Exporter) exportCSV(ctx context.Context, w io.Writer, filter Filter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader()); err != nil {
		return err
	}
	err := e.forEach(ctx, filter, func(req *Request) error {
		return cw.Write(exportRow(req))
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (e *Exporter) exportJSON(ctx context.Context, w io.Writer, filter Filter) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	first := true
	err := e.forEach(ctx, filter, func(req *Request) error {
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		return enc.Encode(req)
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "]")
	return err
}

func (e *Exporter) exportXLSX(ctx context.Context, w io.Writer, filter Filter) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Approvals"
	f.SetSheetName("Sheet1", sheet)

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	writeRow := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}

	if err := writeRow(1, exportHeader()); err != nil {
		return err
	}

	rowNum := 2
	err = e.forEach(ctx, filter, func(req *Request) error {
		if err := writeRow(rowNum, exportRow(req)); err != nil {
			return err
		}
		rowNum++
		return nil
	})
	if err != nil {
		return err
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}
