package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/bulkhelpers/internal/errs"
)

// fakeSource counts metadata queries and can block until released.
type fakeSource struct {
	calls    atomic.Int32
	deadline atomic.Bool
	release  chan struct{}
	err     error
	defs    []*TableDefinition
}

func (f *fakeSource) LoadTableDefinitions(ctx context.Context) ([]*TableDefinition, error) {
	f.calls.Add(1)
	_, ok := ctx.Deadline()
	f.deadline.Store(ok)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.defs, nil
}

func sampleDefs() []*TableDefinition {
	return []*TableDefinition{
		NewTableDefinition("dbo", "Orders", []ColumnDefinition{
			NewColumnDefinition("Id", 1, "int", true),
			NewColumnDefinition("CustomerId", 2, "int", false),
			NewColumnDefinition("Total", 3, "decimal", false),
		}),
		NewTableDefinition("archive", "Orders", []ColumnDefinition{
			NewColumnDefinition("Id", 1, "int", false),
		}),
		NewTableDefinition("dbo", "Empty", nil),
	}
}

func TestCatalog_GetTableSchemaDefinition(t *testing.T) {
	src := &fakeSource{defs: sampleDefs()}
	c := NewCatalog(src)
	ctx := context.Background()

	def, err := c.GetTableSchemaDefinition(ctx, "Orders")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "dbo", def.SchemaName(), "first match in metadata order")

	empty, err := c.GetTableSchemaDefinition(ctx, "Empty")
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty.Columns())

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCatalog_UnknownTableIsAbsent(t *testing.T) {
	c := NewCatalog(&fakeSource{defs: sampleDefs()})

	for _, name := range []string{"Customers", "orders", "", "nope.Orders", "dbo."} {
		def, err := c.GetTableSchemaDefinition(context.Background(), name)
		assert.NoError(t, err, name)
		assert.Nil(t, def, name)
	}
}

func TestCatalog_QualifiedName(t *testing.T) {
	c := NewCatalog(&fakeSource{defs: sampleDefs()})

	def, err := c.GetTableSchemaDefinition(context.Background(), "archive.Orders")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "archive", def.SchemaName())
	assert.False(t, def.HasIdentity())
}

func TestCatalog_TableNames(t *testing.T) {
	c := NewCatalog(&fakeSource{defs: sampleDefs()})

	names, err := c.TableNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "Empty"}, names)
}

func TestCatalog_ConcurrentFirstAccessLoadsOnce(t *testing.T) {
	src := &fakeSource{defs: sampleDefs(), release: make(chan struct{})}
	c := NewCatalog(src)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]*TableDefinition, workers)
	errList := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errList[i] = c.GetTableSchemaDefinition(context.Background(), "Orders")
		}(i)
	}

	// Let every goroutine reach the load before releasing it.
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for i := 0; i < workers; i++ {
		require.NoError(t, errList[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestCatalog_LoadFailureThenRetry(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	c := NewCatalog(src)
	ctx := context.Background()

	def, err := c.GetTableSchemaDefinition(ctx, "Orders")
	require.Error(t, err)
	assert.Nil(t, def)
	assert.True(t, errs.IsLoadFailure(err))
	assert.ErrorIs(t, err, src.err)
	assert.False(t, c.Loaded())

	src.err = nil
	src.defs = sampleDefs()

	def, err = c.GetTableSchemaDefinition(ctx, "Orders")
	require.NoError(t, err)
	assert.NotNil(t, def)
	assert.True(t, c.Loaded())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCatalog_LoadIsIdempotent(t *testing.T) {
	src := &fakeSource{defs: sampleDefs()}
	c := NewCatalog(src)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Load(context.Background()))
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCatalog_WaiterContextCancelled(t *testing.T) {
	src := &fakeSource{defs: sampleDefs(), release: make(chan struct{})}
	c := NewCatalog(src)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Load(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))

	// The shared load keeps running and completes for later callers.
	close(src.release)
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCatalog_LoadTimeoutBoundsQuery(t *testing.T) {
	src := &fakeSource{defs: sampleDefs(), release: make(chan struct{})}
	defer close(src.release)
	c := NewCatalog(src, WithLoadTimeout(30*time.Millisecond))

	start := time.Now()
	err := c.Load(context.Background())
	require.Error(t, err)

	assert.True(t, errs.IsLoadFailure(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, src.deadline.Load(), "metadata query must see the deadline")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, c.Loaded())
}

func TestCatalog_NoLoadTimeoutByDefault(t *testing.T) {
	src := &fakeSource{defs: sampleDefs()}
	require.NoError(t, NewCatalog(src).Load(context.Background()))
	assert.False(t, src.deadline.Load())
}

func TestShared_ReturnsSameCatalog(t *testing.T) {
	a := Shared(&fakeSource{defs: sampleDefs()})
	b := Shared(&fakeSource{})

	assert.Same(t, a, b)
}
