package firebolt

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		tag          string
		want         ColumnType
		wantNullable bool
	}{
		{"int", TypeInt, false},
		{"INTEGER", TypeInt, false},
		{"int null", TypeInt, true},
		{"int not null", TypeInt, false},
		{"Nullable(Int32)", TypeInt, true},
		{"long", TypeBigInt, false},
		{"double precision", TypeDouble, false},
		{"float null", TypeDouble, true},
		{"bool", TypeBoolean, false},
		{"text", TypeText, false},
		{"String", TypeText, false},
		{"numeric(38, 9)", TypeNumeric, false},
		{"Nullable(Decimal(10,2))", TypeNumeric, true},
		{"pgdate", TypeDate, false},
		{"timestampntz", TypeTimestamp, false},
		{"timestamptz null", TypeTimestampTZ, true},
		{"bytea", TypeBytea, false},
		{"array(int)", TypeArray, false},
		{"array(text null) null", TypeArray, true},
		{"geography", TypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, nullable := ParseColumnType(tt.tag)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantNullable, nullable)
		})
	}
}

func TestColumnType_String(t *testing.T) {
	assert.Equal(t, "bigint", TypeBigInt.String())
	assert.Equal(t, "timestamptz", TypeTimestampTZ.String())
	assert.Equal(t, "ColumnType(99)", ColumnType(99).String())
}

func TestColumnType_ScanType(t *testing.T) {
	assert.Equal(t, reflect.TypeOf(int64(0)), TypeInt.scanType())
	assert.Equal(t, reflect.TypeOf(float64(0)), TypeDouble.scanType())
	assert.Equal(t, reflect.TypeOf(true), TypeBoolean.scanType())
	assert.Equal(t, reflect.TypeOf([]byte(nil)), TypeBytea.scanType())
	assert.Equal(t, reflect.TypeOf(time.Time{}), TypeDate.scanType())
	assert.Equal(t, reflect.TypeOf(""), TypeNumeric.scanType())
	assert.Equal(t, reflect.TypeOf(""), TypeArray.scanType())
}

func TestNullArray_Scan(t *testing.T) {
	var ints NullArray[int64]
	require.NoError(t, ints.Scan("[1,2,3]"))
	assert.True(t, ints.Valid)
	assert.Equal(t, []int64{1, 2, 3}, ints.Array)

	var strs NullArray[string]
	require.NoError(t, strs.Scan([]byte(`["a",null]`)))
	assert.Equal(t, []string{"a", ""}, strs.Array)

	require.NoError(t, strs.Scan(nil))
	assert.False(t, strs.Valid)
	assert.Nil(t, strs.Array)

	assert.Error(t, strs.Scan(42))
	assert.Error(t, strs.Scan("not json"))
}
