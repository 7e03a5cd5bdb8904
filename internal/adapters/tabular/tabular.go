// Package tabular decodes uploaded CSV and Excel files into a rectangular
// string matrix and encodes record sets back into those formats.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "xls":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func (f Format) Extension() string { return "." + string(f) }

// ValidationError marks a problem with the uploaded file itself, as opposed
// to a failure of the service.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Table is a decoded upload. Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

var allowedExtensions = map[string]bool{".csv": true, ".xlsx": true, ".xls": true}

var allowedMIMETypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/octet-stream": true,
}

type Codec struct {
	maxBytes int64
}

func NewCodec(maxBytes int64) *Codec { return &Codec{maxBytes: maxBytes} }

func (c *Codec) Parse(u Upload) (*Table, error) {
	if u.Filename == "" {
		return nil, invalid("File has no file name")
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if !allowedExtensions[ext] {
		return nil, invalid("Unsupported file type. Only CSV and Excel files are allowed.")
	}
	mediaType := "application/octet-stream"
	if u.ContentType != "" {
		parsed, _, err := mime.ParseMediaType(u.ContentType)
		if err != nil {
			return nil, invalid("Invalid MIME type: %s", u.ContentType)
		}
		mediaType = parsed
	}
	if !allowedMIMETypes[mediaType] {
		return nil, invalid("Invalid MIME type: %s", u.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(u.Content, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, invalid("File too large. Max allowed size is %dMB.", c.maxBytes/(1024*1024))
	}

	var matrix [][]string
	if ext == ".csv" {
		matrix, err = parseCSV(data, u.ContentType)
	} else {
		matrix, err = parseExcel(data)
	}
	if err != nil {
		return nil, err
	}
	return rectangular(matrix)
}

// parseCSV honours a charset parameter on the upload's content type and
// otherwise sniffs the encoding, defaulting to windows-1252 for non-UTF-8 input.
func parseCSV(data []byte, contentType string) ([][]string, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, invalid("CSV parsing failed: %v", err)
	}
	decoded = bytes.TrimPrefix(decoded, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	matrix, err := r.ReadAll()
	if err != nil {
		return nil, invalid("CSV parsing failed: %v", err)
	}
	return matrix, nil
}

func parseExcel(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("Invalid or corrupted Excel file.")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, invalid("Excel file contains no sheets.")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, invalid("Excel parsing failed: %v", err)
	}
	return rows, nil
}

// rectangular splits off the header row and pads short rows. Rows wider than
// the header and blank rows are rejected and dropped respectively.
func rectangular(matrix [][]string) (*Table, error) {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return nil, invalid("No columns detected in file.")
	}
	headers := matrix[0]
	rows := make([][]string, 0, len(matrix)-1)
	for i, raw := range matrix[1:] {
		if blank(raw) {
			continue
		}
		if len(raw) > len(headers) {
			return nil, invalid("Row %d has more fields than the header.", i+2)
		}
		row := make([]string, len(headers))
		copy(row, raw)
		rows = append(rows, row)
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (c *Codec) Encode(w io.Writer, format Format, columns []string, rows [][]string) error {
	if format == FormatXLSX {
		return encodeXLSX(w, columns, rows)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func encodeXLSX(w io.Writer, columns []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	write := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}

	if err := write(1, columns); err != nil {
		return err
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
