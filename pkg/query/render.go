package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/olekukonko/tablewriter"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Output formats accepted by the CLI.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Render writes a result in the requested format.
func Render(w io.Writer, result *Result, format string) error {
	switch format {
	case FormatTable:
		return renderTable(w, result)
	case FormatJSON:
		return renderJSON(w, result)
	case FormatCSV:
		return renderCSV(w, result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func renderTable(w io.Writer, result *Result) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(result.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellString(v)
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Fprintf(w, "%d row(s)\n", len(result.Rows))
	return nil
}

func renderJSON(w io.Writer, result *Result) error {
	records := make([]map[string]interface{}, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]interface{}, len(result.Columns))
		for i, col := range result.Columns {
			record[col] = row[i]
		}
		records = append(records, record)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func renderCSV(w io.Writer, result *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(result.Columns); err != nil {
		return err
	}
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellString(v)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
