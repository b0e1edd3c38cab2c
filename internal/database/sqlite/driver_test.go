package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/bulkhelpers/internal/bulk"
	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

type order struct {
	ID         int64   `db:"Id"`
	CustomerID int64   `db:"CustomerId"`
	Total      float64 `db:"Total"`
}

func openTestDB(t *testing.T) *Driver {
	t.Helper()
	ctx := context.Background()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "bulk.db"))
	cfg.Driver = database.DriverSQLite

	d, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.NoError(t, d.Exec(ctx, `CREATE TABLE Orders (
		Id         INTEGER PRIMARY KEY,
		CustomerId INTEGER NOT NULL,
		Total      REAL    NOT NULL
	)`))
	require.NoError(t, d.Exec(ctx, `CREATE TABLE OrderTags (
		OrderId INTEGER NOT NULL,
		Tag     TEXT    NOT NULL,
		PRIMARY KEY (OrderId, Tag)
	)`))
	return d
}

func newEngine(t *testing.T, d *Driver) *bulk.Engine[order] {
	t.Helper()
	m, err := bulk.NewStructMapper[order]()
	require.NoError(t, err)
	return bulk.New[order](schema.NewCatalog(d), d, m)
}

// inTx runs fn in a transaction and commits it.
func inTx(t *testing.T, d *Driver, fn func(tx database.Tx) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
}

func countOrders(t *testing.T, d *Driver) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow(context.Background(), `SELECT count(*) FROM Orders`).Scan(&n))
	return n
}

func TestLoadTableDefinitions(t *testing.T) {
	d := openTestDB(t)

	defs, err := d.LoadTableDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "OrderTags", defs[0].TableName(), "ordered by table name")
	assert.False(t, defs[0].HasIdentity(), "composite key is not a rowid alias")

	orders := defs[1]
	assert.Equal(t, "main", orders.SchemaName())
	assert.Equal(t, []string{"Id", "CustomerId", "Total"}, orders.GetColumnNames(true))
	assert.Equal(t, []string{"CustomerId", "Total"}, orders.GetColumnNames(false))

	id, ok := orders.IdentityColumn()
	require.True(t, ok)
	assert.Equal(t, "Id", id.Name)
	assert.Equal(t, "integer", id.DataType)
}

func TestBulkInsert(t *testing.T) {
	d := openTestDB(t)
	e := newEngine(t, d)

	var out []order
	inTx(t, d, func(tx database.Tx) error {
		var err error
		out, err = e.BulkInsert(context.Background(), []order{
			{CustomerID: 5, Total: 10},
			{CustomerID: 7, Total: 20},
		}, "Orders", tx)
		return err
	})

	require.Len(t, out, 2)
	assert.Equal(t, int64(5), out[0].CustomerID)
	assert.Equal(t, int64(7), out[1].CustomerID)
	assert.NotZero(t, out[0].ID)
	assert.Greater(t, out[1].ID, out[0].ID)

	var total float64
	require.NoError(t, d.QueryRow(context.Background(), `SELECT Total FROM Orders WHERE Id = ?`, out[1].ID).Scan(&total))
	assert.Equal(t, float64(20), total)
}

func TestBulkInsert_NoIdentityTable(t *testing.T) {
	d := openTestDB(t)
	m := bulk.MapMapper{}
	e := bulk.New[map[string]any](schema.NewCatalog(d), d, m)

	inTx(t, d, func(tx database.Tx) error {
		_, err := e.BulkInsert(context.Background(), []map[string]any{
			{"orderid": 1, "tag": "rush"},
			{"orderid": 1, "tag": "gift"},
		}, "OrderTags", tx)
		return err
	})

	var n int
	require.NoError(t, d.QueryRow(context.Background(), `SELECT count(*) FROM OrderTags`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestBulkInsertOrUpdate_SameIdentityTwice(t *testing.T) {
	d := openTestDB(t)
	e := newEngine(t, d)
	ctx := context.Background()

	var first []order
	inTx(t, d, func(tx database.Tx) error {
		var err error
		first, err = e.BulkInsertOrUpdate(ctx, []order{{CustomerID: 5, Total: 10}}, "Orders", tx)
		return err
	})
	id := first[0].ID
	require.NotZero(t, id)

	inTx(t, d, func(tx database.Tx) error {
		out, err := e.BulkInsertOrUpdate(ctx, []order{{ID: id, CustomerID: 5, Total: 30}}, "Orders", tx)
		if err == nil {
			assert.Equal(t, id, out[0].ID)
		}
		return err
	})

	assert.Equal(t, 1, countOrders(t, d))
	var total float64
	require.NoError(t, d.QueryRow(ctx, `SELECT Total FROM Orders WHERE Id = ?`, id).Scan(&total))
	assert.Equal(t, float64(30), total)
}

func TestBulkInsertOrUpdate_Mixed(t *testing.T) {
	d := openTestDB(t)
	e := newEngine(t, d)
	ctx := context.Background()

	var out []order
	inTx(t, d, func(tx database.Tx) error {
		seeded, err := e.BulkInsert(ctx, []order{{CustomerID: 1, Total: 1}}, "Orders", tx)
		if err != nil {
			return err
		}
		out, err = e.BulkInsertOrUpdate(ctx, []order{
			{CustomerID: 2, Total: 2},
			{ID: seeded[0].ID, CustomerID: 1, Total: 11},
			{ID: 900, CustomerID: 9, Total: 9},
		}, "Orders", tx)
		return err
	})

	require.Len(t, out, 3)
	assert.NotZero(t, out[0].ID)
	assert.Equal(t, int64(900), out[2].ID, "unmatched identity is inserted with that key")
	assert.Equal(t, 3, countOrders(t, d))
}

func TestBulkUpdate(t *testing.T) {
	d := openTestDB(t)
	e := newEngine(t, d)
	ctx := context.Background()

	inTx(t, d, func(tx database.Tx) error {
		inserted, err := e.BulkInsert(ctx, []order{{CustomerID: 1, Total: 1}, {CustomerID: 2, Total: 2}}, "Orders", tx)
		if err != nil {
			return err
		}
		inserted[0].Total = 100
		inserted[1].Total = 200
		_, err = e.BulkUpdate(ctx, append(inserted, order{ID: 999, CustomerID: 3, Total: 3}), "Orders", tx)
		return err
	})

	var sum float64
	require.NoError(t, d.QueryRow(ctx, `SELECT sum(Total) FROM Orders`).Scan(&sum))
	assert.Equal(t, float64(300), sum)
	assert.Equal(t, 2, countOrders(t, d), "unmatched identity changes nothing")
}

func TestBulkUpdate_UnsetIdentity(t *testing.T) {
	d := openTestDB(t)
	e := newEngine(t, d)
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = e.BulkUpdate(ctx, []order{{CustomerID: 1, Total: 1}}, "Orders", tx)
	require.Error(t, err)
	assert.True(t, errs.IsIdentityMismatch(err))
}

func TestTransfer_ConstraintErrorIsRaw(t *testing.T) {
	d := openTestDB(t)
	e := bulk.New[map[string]any](schema.NewCatalog(d), d, bulk.MapMapper{})
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = e.BulkInsert(ctx, []map[string]any{{"CustomerId": 1}}, "Orders", tx)
	require.Error(t, err, "Total is NOT NULL")

	var kindErr *errs.Error
	assert.NotErrorAs(t, err, &kindErr)
}

func TestTransfer_ForeignTx(t *testing.T) {
	d := openTestDB(t)
	def, err := schema.NewCatalog(d).GetTableSchemaDefinition(context.Background(), "Orders")
	require.NoError(t, err)

	_, err = d.Transfer(context.Background(), struct{ database.Tx }{}, &bulk.TransferRequest{Table: def})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestStatementBuilders(t *testing.T) {
	target := dialect.QualifiedName("main", "Orders")

	assert.Equal(t,
		`INSERT INTO "main"."Orders" ("CustomerId", "Total") VALUES (?, ?) RETURNING "Id"`,
		buildInsert(target, []string{"CustomerId", "Total"}, "Id"))
	assert.Equal(t,
		`INSERT INTO "main"."Orders" ("CustomerId") VALUES (?)`,
		buildInsert(target, []string{"CustomerId"}, ""))
	assert.Equal(t,
		`UPDATE "main"."Orders" SET "CustomerId" = ?, "Total" = ? WHERE "Id" = ?`,
		buildUpdate(target, []string{"CustomerId", "Total"}, "Id"))
	assert.Equal(t,
		`INSERT INTO "main"."Orders" ("Id", "Total") VALUES (?, ?) ON CONFLICT("Id") DO UPDATE SET "Total" = excluded."Total" RETURNING "Id"`,
		buildUpsert(target, []string{"Id", "Total"}, "Id"))
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "file.db?mode=ro", buildDSN("file.db?mode=ro"))
	assert.Contains(t, buildDSN("file.db"), "_journal_mode=WAL")
	assert.NotContains(t, buildDSN(":memory:"), "_journal_mode")
}

func TestIsMemory(t *testing.T) {
	assert.True(t, IsMemory(":memory:"))
	assert.True(t, IsMemory("file::memory:?cache=shared"))
	assert.True(t, IsMemory("file:test.db?mode=memory"))
	assert.False(t, IsMemory("orders.db"))
}
