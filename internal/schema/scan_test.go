package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceRows replays fixed metadata rows.
type sliceRows struct {
	data   [][3]string
	pos    int
	closed bool
	err    error
}

func (r *sliceRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	*dest[0].(*string) = row[0]
	*dest[1].(*string) = row[1]
	*dest[2].(*[]byte) = []byte(row[2])
	return nil
}

func (r *sliceRows) Close()     { r.closed = true }
func (r *sliceRows) Err() error { return r.err }

func TestScanTableDefinitions(t *testing.T) {
	rows := &sliceRows{data: [][3]string{
		{"dbo", "Orders", `[{"columnName":"Total","ordinalPosition":3,"dataType":"numeric","isIdentityColumn":false},
			{"columnName":"Id","ordinalPosition":1,"dataType":"int","isIdentityColumn":true},
			{"columnName":"CustomerId","ordinalPosition":2,"dataType":"int","isIdentityColumn":false}]`},
		{"dbo", "Empty", `[]`},
	}}

	defs, err := ScanTableDefinitions(rows)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.True(t, rows.closed)

	assert.Equal(t, "dbo.Orders", defs[0].QualifiedName())
	assert.Equal(t, []string{"Id", "CustomerId", "Total"}, defs[0].GetColumnNames(true))
	assert.True(t, defs[0].HasIdentity())
	assert.Empty(t, defs[1].Columns())
}

func TestScanTableDefinitions_Errors(t *testing.T) {
	_, err := ScanTableDefinitions(&sliceRows{data: [][3]string{{"dbo", "Bad", `{`}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbo.Bad")

	iterErr := errors.New("connection reset")
	_, err = ScanTableDefinitions(&sliceRows{err: iterErr})
	assert.ErrorIs(t, err, iterErr)
}
