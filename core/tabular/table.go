// Package tabular holds the row/column tables produced by the log engine and
// renders them as CSV, JSON, or XLSX.
package tabular

import (
	"fmt"
	"slices"
)

// Table is a rectangular table of string cells. An empty cell is null.
type Table struct {
	Columns []string
	Rows    [][]string
}

func New(columns ...string) Table {
	return Table{Columns: slices.Clone(columns)}
}

// Append adds one row; it must have exactly one cell per column.
func (table *Table) Append(row ...string) error {
	if len(row) != len(table.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(table.Columns))
	}
	table.Rows = append(table.Rows, slices.Clone(row))
	return nil
}

// AppendRecord adds one row built from a column-to-value map. Columns
// absent from values are null.
func (table *Table) AppendRecord(values map[string]string) {
	row := make([]string, len(table.Columns))
	for index, column := range table.Columns {
		row[index] = values[column]
	}
	table.Rows = append(table.Rows, row)
}

func (table Table) ColumnIndex(name string) int {
	return slices.Index(table.Columns, name)
}

// Column returns the cells of a column, or nil when absent.
func (table Table) Column(name string) []string {
	index := table.ColumnIndex(name)
	if index < 0 {
		return nil
	}
	cells := make([]string, len(table.Rows))
	for rowIndex, row := range table.Rows {
		cells[rowIndex] = row[index]
	}
	return cells
}

// Records returns every row as a column-to-value map.
func (table Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make(map[string]string, len(table.Columns))
		for index, column := range table.Columns {
			record[column] = row[index]
		}
		records = append(records, record)
	}
	return records
}

// Concat stacks tables vertically. Columns are the union in order of first
// appearance; cells missing from a table are null.
func Concat(tables ...Table) Table {
	var columns []string
	seen := map[string]struct{}{}
	for _, table := range tables {
		for _, column := range table.Columns {
			if _, ok := seen[column]; ok {
				continue
			}
			seen[column] = struct{}{}
			columns = append(columns, column)
		}
	}
	out := Table{Columns: columns}
	for _, table := range tables {
		for _, record := range table.Records() {
			out.AppendRecord(record)
		}
	}
	return out
}

// Prepend returns a copy of table with a constant leading column.
func (table Table) Prepend(column string, value string) Table {
	out := Table{Columns: append([]string{column}, table.Columns...)}
	for _, row := range table.Rows {
		out.Rows = append(out.Rows, append([]string{value}, row...))
	}
	return out
}
