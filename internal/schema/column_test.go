package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumns(t *testing.T) {
	data := []byte(`[
		{"columnName":"Id","ordinalPosition":1,"dataType":"int","isIdentityColumn":1},
		{"columnName":"CustomerId","ordinalPosition":2,"dataType":"int","isIdentityColumn":0},
		{"columnName":"Total","ordinalPosition":3,"dataType":"numeric","isIdentityColumn":false}
	]`)

	cols, err := ParseColumns(data)
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, NewColumnDefinition("Id", 1, "int", true), cols[0])
	assert.Equal(t, "CustomerId", cols[1].Name)
	assert.False(t, cols[1].IsIdentity)
	assert.Equal(t, 3, cols[2].OrdinalPosition)
}

func TestParseColumns_EmptyForms(t *testing.T) {
	for _, in := range []string{"", "null", "[]", "  [ ] "} {
		cols, err := ParseColumns([]byte(in))
		require.NoError(t, err, "input %q", in)
		assert.NotNil(t, cols)
		assert.Empty(t, cols)
	}
}

func TestParseColumns_PreservesReturnedOrder(t *testing.T) {
	cols, err := ParseColumns([]byte(`[
		{"columnName":"b","ordinalPosition":2,"dataType":"text"},
		{"columnName":"a","ordinalPosition":1,"dataType":"text"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, "b", cols[0].Name)
	assert.Equal(t, "a", cols[1].Name)
}

func TestParseColumns_IdentityFlagForms(t *testing.T) {
	tests := []struct {
		flag string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"YES"`, true},
		{`"NO"`, false},
		{`null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cols, err := ParseColumns([]byte(`[{"columnName":"x","ordinalPosition":1,"dataType":"int","isIdentityColumn":` + tt.flag + `}]`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cols[0].IsIdentity)
		})
	}
}

func TestParseColumns_Invalid(t *testing.T) {
	_, err := ParseColumns([]byte(`{"not":"an array"}`))
	assert.Error(t, err)

	_, err = ParseColumns([]byte(`[{"columnName":"x","isIdentityColumn":"maybe"}]`))
	assert.Error(t, err)
}

func TestColumnDefinition_String(t *testing.T) {
	assert.Equal(t, "Total [numeric]", NewColumnDefinition("Total", 3, "numeric", false).String())
}
