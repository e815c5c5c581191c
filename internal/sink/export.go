package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultExportLimit caps the rows written by an export.
const DefaultExportLimit = 10000

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

const xlsxSheet = "Results"

// ParseFormat accepts a format name ("csv", "excel", "xlsx", "json").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "xls":
		return "", fmt.Errorf("legacy .xls is not supported, use .xlsx")
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, xlsx or json)", s)
}

// FormatForPath derives the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Export writes up to limit rows, best score first, to path in the given
// format and returns the number of rows written.
func (s *Sink) Export(format Format, path string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	opts := DefaultQueryOptions()
	opts.Limit = limit

	rs, err := s.Query(opts)
	if err != nil {
		return 0, err
	}
	if len(rs.Columns) == 0 {
		return 0, fmt.Errorf("export: no results table in %s", s.Path())
	}

	switch format {
	case FormatXLSX:
		if strings.EqualFold(filepath.Ext(path), ".xls") {
			return 0, fmt.Errorf("export: xlsx data cannot be written to %s, use a .xlsx path", path)
		}
		err = writeXLSX(path, rs)
	case FormatCSV, FormatJSON:
		err = writeFile(path, func(w io.Writer) error {
			if format == FormatCSV {
				return WriteCSV(w, rs)
			}
			return WriteJSON(w, rs)
		})
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info("sink_exported", "format", string(format), "path", path, "rows", rs.Len())
	return rs.Len(), nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, rs *ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rs.Columns); err != nil {
		return err
	}
	row := make([]string, len(rs.Columns))
	for _, rec := range rs.Records {
		row[0] = rec.Key
		for i, v := range rec.Values {
			row[i+1] = strconv.FormatInt(v, 10)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes an array of objects whose keys follow column order.
func WriteJSON(w io.Writer, rs *ResultSet) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, rec := range rs.Records {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := writeJSONRecord(w, rs.Columns, rec); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

func writeJSONRecord(w io.Writer, columns []string, rec Record) error {
	var b strings.Builder
	b.WriteString("{")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(",")
		}
		name, err := json.Marshal(c)
		if err != nil {
			return err
		}
		b.Write(name)
		b.WriteString(":")
		if i == 0 {
			key, err := json.Marshal(rec.Key)
			if err != nil {
				return err
			}
			b.Write(key)
			continue
		}
		b.WriteString(strconv.FormatInt(rec.Values[i-1], 10))
	}
	b.WriteString("}")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeXLSX(path string, rs *ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	header := make([]any, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	for r, rec := range rs.Records {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		row := make([]any, len(rs.Columns))
		row[0] = rec.Key
		for i, v := range rec.Values {
			row[i+1] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
