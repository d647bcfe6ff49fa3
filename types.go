package firebolt

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ethanyzhang/firebolt-go/utils"
)

// ColumnType is the normalized form of a column's wire type tag.
type ColumnType int8

const (
	TypeUnknown ColumnType = iota
	TypeInt
	TypeBigInt
	TypeDouble
	TypeBoolean
	TypeText
	TypeNumeric
	TypeDate
	TypeTimestamp
	TypeTimestampTZ
	TypeBytea
	TypeArray
)

var columnTypeNames = utils.NewBiMap(map[ColumnType]string{
	TypeUnknown:     "unknown",
	TypeInt:         "int",
	TypeBigInt:      "bigint",
	TypeDouble:      "double",
	TypeBoolean:     "boolean",
	TypeText:        "text",
	TypeNumeric:     "numeric",
	TypeDate:        "date",
	TypeTimestamp:   "timestamp",
	TypeTimestampTZ: "timestamptz",
	TypeBytea:       "bytea",
	TypeArray:       "array",
})

// typeAliases maps alternative spellings seen on the wire to canonical names.
var typeAliases = map[string]string{
	"integer":          "int",
	"int4":             "int",
	"int32":            "int",
	"long":             "bigint",
	"int8":             "bigint",
	"int64":            "bigint",
	"float":            "double",
	"real":             "double",
	"double precision": "double",
	"float4":           "double",
	"float8":           "double",
	"float32":          "double",
	"float64":          "double",
	"bool":             "boolean",
	"string":           "text",
	"varchar":          "text",
	"decimal":          "numeric",
	"pgdate":           "date",
	"timestampntz":     "timestamp",
	"datetime":         "timestamp",
	"timestampext":     "timestamp",
}

// String returns the canonical name of the type.
func (t ColumnType) String() string {
	if name, ok := columnTypeNames.Lookup(t); ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType normalizes a wire type tag such as "int null",
// "Nullable(Int32)", "numeric(38, 9)" or "array(text)". The second result
// reports whether the column is nullable.
func ParseColumnType(tag string) (ColumnType, bool) {
	base, nullable := normalizeType(tag)
	if alias, ok := typeAliases[base]; ok {
		base = alias
	}
	if t, ok := columnTypeNames.RLookup(base); ok {
		return t, nullable
	}
	return TypeUnknown, nullable
}

// normalizeType lower-cases a type tag and strips nullability markers and
// parameters: "Nullable(Decimal(10,2))" becomes "decimal".
func normalizeType(tag string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(tag))
	nullable := false

	if strings.HasPrefix(t, "nullable(") && strings.HasSuffix(t, ")") {
		t = strings.TrimSpace(t[len("nullable(") : len(t)-1])
		nullable = true
	}
	if strings.HasSuffix(t, " not null") {
		t = strings.TrimSpace(strings.TrimSuffix(t, " not null"))
	} else if strings.HasSuffix(t, " null") {
		t = strings.TrimSpace(strings.TrimSuffix(t, " null"))
		nullable = true
	}

	if idx := strings.IndexByte(t, '('); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}
	return t, nullable
}

// scanType returns the reflect.Type that Scan should use for the type.
func (t ColumnType) scanType() reflect.Type {
	switch t {
	case TypeInt, TypeBigInt:
		return reflect.TypeOf(int64(0))
	case TypeDouble:
		return reflect.TypeOf(float64(0))
	case TypeBoolean:
		return reflect.TypeOf(false)
	case TypeBytea:
		return reflect.TypeOf([]byte(nil))
	case TypeDate, TypeTimestamp, TypeTimestampTZ:
		return reflect.TypeOf(time.Time{})
	default:
		// text, numeric, array and unknown types → string
		return reflect.TypeOf("")
	}
}

// NullArray is a nullable array column that implements sql.Scanner.
// The driver delivers arrays as JSON text.
//
//	var tags NullArray[string]
//	err := row.Scan(&tags)
type NullArray[T any] struct {
	Array []T
	Valid bool // Valid is true if the value is not NULL
}

var _ sql.Scanner = (*NullArray[any])(nil)

// Scan implements sql.Scanner.
func (a *NullArray[T]) Scan(src any) error {
	if src == nil {
		a.Array = nil
		a.Valid = false
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("firebolt: cannot scan %T into NullArray", src)
	}

	if err := json.Unmarshal(data, &a.Array); err != nil {
		return fmt.Errorf("firebolt: cannot unmarshal array: %w", err)
	}
	a.Valid = true
	return nil
}
