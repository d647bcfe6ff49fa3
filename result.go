package firebolt

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column describes one column of a result.
type Column struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the wire type tag, e.g. "int", "text null" or "array(int)"
	Type string `json:"type"`
}

// ColumnType returns the column's normalized type and whether it is nullable.
func (c Column) ColumnType() (ColumnType, bool) {
	return ParseColumnType(c.Type)
}

// Statistics holds the execution statistics reported with a result.
type Statistics struct {
	// Elapsed is the execution time in seconds
	Elapsed   float64 `json:"elapsed"`
	RowsRead  int64   `json:"rows_read"`
	BytesRead int64   `json:"bytes_read"`
}

// Duration returns Elapsed as a time.Duration.
func (s *Statistics) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.Elapsed * float64(time.Second))
}

// QueryResult is the decoded output of one statement.
type QueryResult struct {
	Columns    []Column
	Rows       [][]any
	RowCount   int
	Statistics *Statistics
}

// ColumnNames returns the column names in order.
func (qr *QueryResult) ColumnNames() []string {
	names := make([]string, len(qr.Columns))
	for i, col := range qr.Columns {
		names[i] = col.Name
	}
	return names
}

// wireResult mirrors the JSON_Compact response body.
type wireResult struct {
	Meta       []Column    `json:"meta"`
	Data       [][]any     `json:"data"`
	Rows       *int        `json:"rows"`
	Statistics *Statistics `json:"statistics"`
}

// Decode parses a JSON_Compact response body into a QueryResult. Cell values
// are converted according to their column's declared type tag only.
func Decode(body []byte) (*QueryResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var wr wireResult
	if err := dec.Decode(&wr); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DecodeError{Err: errors.New("unexpected data after the result object")}
	}
	if wr.Meta == nil {
		return nil, &DecodeError{Err: errors.New(`response has no "meta" column list`)}
	}
	if wr.Data == nil && len(wr.Meta) > 0 {
		return nil, &DecodeError{Err: errors.New(`response has no "data" rows`)}
	}

	types := make([]ColumnType, len(wr.Meta))
	for i, col := range wr.Meta {
		types[i], _ = col.ColumnType()
	}

	rows := make([][]any, len(wr.Data))
	for i, raw := range wr.Data {
		if len(raw) != len(wr.Meta) {
			return nil, &DecodeError{Err: fmt.Errorf("row %d has %d values, expected %d", i, len(raw), len(wr.Meta))}
		}
		row := make([]any, len(raw))
		for j, val := range raw {
			v, err := convertValue(val, types[j])
			if err != nil {
				return nil, &DecodeError{Err: fmt.Errorf("row %d column %q: %w", i, wr.Meta[j].Name, err)}
			}
			row[j] = v
		}
		rows[i] = row
	}

	rowCount := len(rows)
	if wr.Rows != nil {
		rowCount = *wr.Rows
	}
	return &QueryResult{
		Columns:    wr.Meta,
		Rows:       rows,
		RowCount:   rowCount,
		Statistics: wr.Statistics,
	}, nil
}

// convertValue converts a JSON value decoded with UseNumber into the Go type
// for its column type.
func convertValue(val any, t ColumnType) (any, error) {
	if val == nil {
		return nil, nil
	}

	switch t {
	case TypeInt, TypeBigInt:
		switch v := val.(type) {
		case json.Number:
			return v.Int64()
		case string:
			// bigint values may arrive quoted to preserve precision
			return strconv.ParseInt(v, 10, 64)
		}

	case TypeDouble:
		switch v := val.(type) {
		case json.Number:
			return v.Float64()
		case string:
			return parseFloatText(v)
		}

	case TypeBoolean:
		switch v := val.(type) {
		case bool:
			return v, nil
		case json.Number:
			return v.String() != "0", nil
		case string:
			return strconv.ParseBool(v)
		}

	case TypeText:
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", val), nil

	case TypeNumeric:
		// Kept as text for precision safety
		switch v := val.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}

	case TypeDate:
		if s, ok := val.(string); ok {
			return time.Parse(dateLayout, s)
		}

	case TypeTimestamp:
		if s, ok := val.(string); ok {
			return time.Parse("2006-01-02 15:04:05.999999999", s)
		}

	case TypeTimestampTZ:
		if s, ok := val.(string); ok {
			return parseTimestampTZ(s)
		}

	case TypeBytea:
		if s, ok := val.(string); ok {
			if hexText, found := strings.CutPrefix(s, `\x`); found {
				return hex.DecodeString(hexText)
			}
			return []byte(s), nil
		}

	default:
		// array and unknown types pass through as decoded
		return val, nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", val, t)
}

func parseFloatText(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan", "-nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseTimestampTZ parses a "timestamp with time zone" value such as
// "2023-01-01 10:30:00.123+00" or "2023-01-01 10:30:00+05:30".
func parseTimestampTZ(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05.999999999-07",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999-07:00:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamptz %q", s)
}
