package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/fsx"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

const sheetName = "carwatch"

// ParseFormat accepts csv, json, or xlsx. An empty value yields the
// format implied by the extension of path, falling back to csv.
func ParseFormat(raw string, path string) (Format, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		value = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if value == "" {
			return FormatCSV, nil
		}
	}
	switch Format(value) {
	case FormatCSV, FormatJSON, FormatXLSX:
		return Format(value), nil
	default:
		return "", coreerrors.Newf(
			coreerrors.ErrUsage,
			"export_format_unsupported",
			"use one of csv, json, xlsx",
			"unsupported export format %q", value,
		)
	}
}

func Render(format Format, table Table) ([]byte, error) {
	switch format {
	case FormatCSV:
		return RenderCSV(table)
	case FormatJSON:
		return RenderJSON(table)
	case FormatXLSX:
		return RenderXLSX(table)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteFile renders table and replaces path atomically.
func WriteFile(path string, format Format, table Table) error {
	content, err := Render(format, table)
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(path, content, 0o644); err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("write %s: %w", path, err),
			coreerrors.CategoryIOFailure,
			"export_write_failed",
			"check that the output directory exists and is writable",
			false,
		)
	}
	return nil
}

func RenderCSV(table Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

func RenderJSON(table Table) ([]byte, error) {
	rows := make([]map[string]any, 0, len(table.Rows))
	for _, row := range table.Rows {
		entry := make(map[string]any, len(table.Columns))
		for index, column := range table.Columns {
			if row[index] == "" {
				entry[column] = nil
				continue
			}
			entry[column] = row[index]
		}
		rows = append(rows, entry)
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json rows: %w", err)
	}
	return append(encoded, '\n'), nil
}

func RenderXLSX(table Table) ([]byte, error) {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(table.Columns))
	for index, column := range table.Columns {
		header[index] = column
	}
	if err := file.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := file.SetRowStyle(sheetName, 1, 1, headerStyle); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	for rowIndex, row := range table.Rows {
		for columnIndex, value := range row {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(columnIndex+1, rowIndex+2)
			if err != nil {
				return nil, fmt.Errorf("cell name: %w", err)
			}
			if err := file.SetCellStr(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
