package firebolt

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ParamKind enumerates the parameter value kinds the encoder understands.
type ParamKind uint8

const (
	KindNull ParamKind = iota
	KindString
	KindTime
	KindBool
	KindList
	KindNumber

	// KindUnsupported carries a Go value ParamOf could not map
	KindUnsupported
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Param is a bind parameter value. The zero value is NULL.
// Build one with the kind constructors or ParamOf.
type Param struct {
	kind ParamKind
	text string // string value, number literal, or list type description
	t    time.Time
	b    bool
	err  error
}

// NamedParam pairs a placeholder name, as written in the SQL text
// (e.g. "@id" or ":id"), with its value.
type NamedParam struct {
	Name  string
	Value Param
}

// Named is shorthand for building a NamedParam from a Go value.
// Values ParamOf cannot map keep their error, which surfaces from
// Substitute with the parameter name attached.
func Named(name string, v any) NamedParam {
	p, err := ParamOf(v)
	if err != nil {
		p = Param{kind: KindUnsupported, err: err}
	}
	return NamedParam{Name: name, Value: p}
}

func Null() Param                { return Param{kind: KindNull} }
func String(s string) Param      { return Param{kind: KindString, text: s} }
func Time(t time.Time) Param     { return Param{kind: KindTime, t: t} }
func Bool(b bool) Param          { return Param{kind: KindBool, b: b} }
func Int(i int64) Param          { return Param{kind: KindNumber, text: strconv.FormatInt(i, 10)} }
func Uint(u uint64) Param        { return Param{kind: KindNumber, text: strconv.FormatUint(u, 10)} }
func Float(f float64) Param      { return Param{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)} }
func List(typeName string) Param { return Param{kind: KindList, text: typeName} }

// Kind reports the parameter's kind.
func (p Param) Kind() ParamKind {
	return p.kind
}

// Encode renders a parameter as SQL literal text. Lists and values ParamOf
// could not map fail.
func Encode(p Param) (string, error) {
	switch p.kind {
	case KindString:
		return "'" + escapeString(p.text) + "'", nil
	case KindTime:
		return "'" + formatTime(p.t) + "'", nil
	case KindNull:
		return "NULL", nil
	case KindBool:
		if p.b {
			return "1", nil
		}
		return "0", nil
	case KindList:
		return "", &UnsupportedParameterError{Type: p.text}
	case KindNumber:
		return p.text, nil
	case KindUnsupported:
		return "", p.err
	default:
		return "", &UnsupportedParameterError{Type: fmt.Sprintf("kind %d", p.kind)}
	}
}

// stringEscaper runs in a single pass, so the backslashes it emits are never
// escaped a second time.
var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\x00", `\0`,
	`'`, `\'`,
)

func escapeString(s string) string {
	return stringEscaper.Replace(s)
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(dateTimeLayout)
}

var timeType = reflect.TypeOf(time.Time{})

// ParamOf maps a Go value to a Param. Checks run in a fixed priority:
// string, time, null, bool, list, then numeric scalars. Named types are
// resolved by their underlying kind.
func ParamOf(v any) (Param, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(val), nil
	case time.Time:
		return Time(val), nil
	case bool:
		return Bool(val), nil
	case []byte:
		return List("[]byte"), nil
	case json.Number:
		return Param{kind: KindNumber, text: val.String()}, nil
	case int64:
		return Int(val), nil
	case float64:
		return Float(val), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null(), nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	}
	if rv.Type().ConvertibleTo(timeType) && rv.Kind() == reflect.Struct {
		return Time(rv.Convert(timeType).Interface().(time.Time)), nil
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok && s.String() == "" {
		return Null(), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		return List(rv.Type().String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint()), nil
	case reflect.Float32:
		return Param{kind: KindNumber, text: strconv.FormatFloat(rv.Float(), 'f', -1, 32)}, nil
	case reflect.Float64:
		return Float(rv.Float()), nil
	}

	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return Param{kind: KindNumber, text: s.String()}, nil
	}
	return Param{}, &UnsupportedParameterError{Type: rv.Type().String()}
}
