package export

import (
	"fmt"
	"strings"
)

// Supported output formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// Column maps a row key to the label shown in the rendered header.
type Column struct {
	Key   string
	Label string
}

// Dataset defines tabular export content. Rows are keyed by Column.Key.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

// Labels returns the header labels in column order.
func (d Dataset) Labels() []string {
	labels := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Key
		}
	}
	return labels
}

// Values returns a row's cells in column order.
func (d Dataset) Values(row map[string]string) []string {
	values := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		values[i] = row[col.Key]
	}
	return values
}

// Exporter renders a dataset into a downloadable document.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// NormalizeFormat lowercases the format and defaults to xlsx.
func NormalizeFormat(raw string) string {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		return FormatXLSX
	}
	return format
}

// ForFormat returns the exporter for the given format name.
func ForFormat(format string) (Exporter, error) {
	switch NormalizeFormat(format) {
	case FormatXLSX:
		return NewXLSXExporter(), nil
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
