package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// AuditStreamer streams audit events matching a query.
// Satisfied by *AuditService.
type AuditStreamer interface {
	Stream(ctx context.Context, q AuditQuery, fn func(AuditEvent) error) error
}

// AuditExportHeader is the column order of every audit export.
var AuditExportHeader = []string{"created_at", "event_type", "details", "id"}

const auditTimeLayout = "2006-01-02 15:04:05"

// csvFlushInterval controls how often buffered CSV rows are flushed.
const csvFlushInterval = 1000

func auditExportRow(e AuditEvent) []string {
	created := ""
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.Format(auditTimeLayout)
	}
	return []string{created, e.EventType, e.Details, e.ID}
}

// WriteAuditCSV streams matching events to w as CSV.
func WriteAuditCSV(ctx context.Context, w io.Writer, src AuditStreamer, q AuditQuery) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AuditExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rowCount := 0
	err := src.Stream(ctx, q, func(e AuditEvent) error {
		if err := cw.Write(auditExportRow(e)); err != nil {
			return err
		}
		rowCount++
		if rowCount%csvFlushInterval == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})

	cw.Flush()
	if err != nil {
		return fmt.Errorf("export audit csv: %w", err)
	}
	return cw.Error()
}

// WriteAuditXLSX writes matching events to w as a single-sheet workbook.
// Rows go through excelize's StreamWriter so large exports stay off the heap.
func WriteAuditXLSX(ctx context.Context, w io.Writer, src AuditStreamer, q AuditQuery) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Audit Log"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}

	row := 1
	writeRow := func(values []string) error {
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return sw.SetRow(cell, cells)
	}

	if err := writeRow(AuditExportHeader); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	if err := src.Stream(ctx, q, func(e AuditEvent) error {
		return writeRow(auditExportRow(e))
	}); err != nil {
		return fmt.Errorf("export audit xlsx: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
