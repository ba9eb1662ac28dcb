package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
)

type execCall struct {
	query string
	args  []any
}

type fakeBatch struct {
	driver.Batch
	rows      [][]any
	sent      bool
	aborted   bool
	appendErr error
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

// fakeRows scans canned values into destinations of matching type.
type fakeRows struct {
	driver.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.data[r.pos-1], dest)
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeRow struct {
	driver.Row
	data []any
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.data == nil {
		return sql.ErrNoRows
	}
	return assign(r.data, dest)
}

func assign(values, dest []any) error {
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeConn struct {
	execs     []execCall
	batch     *fakeBatch
	appendErr error
	rowCalls  []execCall
	row       []any
	queries   map[string][][]any
}

func (c *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	c.execs = append(c.execs, execCall{query: query, args: args})
	return nil
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) (driver.Rows, error) {
	for table, data := range c.queries {
		if strings.Contains(query, table) {
			return &fakeRows{data: data}, nil
		}
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) QueryRow(_ context.Context, query string, args ...any) driver.Row {
	c.rowCalls = append(c.rowCalls, execCall{query: query, args: args})
	return &fakeRow{data: c.row}
}

func (c *fakeConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.batch = &fakeBatch{appendErr: c.appendErr}
	return c.batch, nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }
func (c *fakeConn) Close() error               { return nil }

func TestEnsureSchema(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, NewStoreWithConn(conn).EnsureSchema(context.Background()))

	require.Len(t, conn.execs, 2)
	assert.Contains(t, conn.execs[0].query, "verification_runs")
	assert.Contains(t, conn.execs[1].query, "verification_counts")
}

func TestRecordRun(t *testing.T) {
	related := 2
	run := &verify.Run{
		ID:         uuid.New(),
		Source:     "aws",
		StartedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
		Outcome:    verify.OutcomeMismatch,
		Expected:   entity.Counts{entity.VM: 2, entity.Flavor: 76},
		Report: &reconcile.Report{Rows: []reconcile.Row{
			{Type: entity.Flavor, Expected: 76, Persisted: 76, Match: true},
			{Type: entity.VM, Expected: 2, Persisted: 3, Related: &related},
		}},
	}
	conn := &fakeConn{}

	require.NoError(t, NewStoreWithConn(conn).RecordRun(context.Background(), run))

	require.Len(t, conn.execs, 1)
	assert.Equal(t, run.ID, conn.execs[0].args[0])
	assert.Equal(t, "mismatch", conn.execs[0].args[4])
	assert.Equal(t, uint32(1), conn.execs[0].args[5])

	require.NotNil(t, conn.batch)
	assert.True(t, conn.batch.sent)
	require.Len(t, conn.batch.rows, 2)

	flavorRow := conn.batch.rows[0]
	assert.Equal(t, "flavor", flavorRow[1])
	assert.Equal(t, uint8(1), flavorRow[5])
	assert.Nil(t, flavorRow[4].(*int64))

	vmRow := conn.batch.rows[1]
	assert.Equal(t, "vm", vmRow[1])
	assert.Equal(t, int64(3), *vmRow[3].(*int64))
	assert.Equal(t, int64(2), *vmRow[4].(*int64))
	assert.Equal(t, uint8(0), vmRow[5])
}

func TestRecordRun_AppendFailureAbortsBatch(t *testing.T) {
	conn := &fakeConn{appendErr: errors.New("column type mismatch")}
	run := &verify.Run{ID: uuid.New(), Outcome: verify.OutcomePassed, Expected: entity.Counts{entity.VM: 1}}

	err := NewStoreWithConn(conn).RecordRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append count: column type mismatch")

	assert.Len(t, conn.execs, 1)
	require.NotNil(t, conn.batch)
	assert.True(t, conn.batch.aborted)
	assert.False(t, conn.batch.sent)
}

func TestRecordRun_WithoutExpected(t *testing.T) {
	conn := &fakeConn{}
	run := &verify.Run{ID: uuid.New(), Outcome: verify.OutcomeError, Error: "boom"}

	require.NoError(t, NewStoreWithConn(conn).RecordRun(context.Background(), run))
	assert.Len(t, conn.execs, 1)
	assert.Nil(t, conn.batch)
}

func TestCountRecords_NoReport(t *testing.T) {
	run := &verify.Run{Expected: entity.Counts{entity.VM: 1}}
	records := countRecords(run)

	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].Expected)
	assert.Nil(t, records[0].Persisted)
	assert.Nil(t, records[0].Drift)
	assert.False(t, records[0].Match)
}

func TestListRuns(t *testing.T) {
	id := uuid.New()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	conn := &fakeConn{queries: map[string][][]any{
		"verification_runs": {{id, "aws", started, started.Add(time.Second), "passed", uint32(0), ""}},
	}}

	runs, err := NewStoreWithConn(conn).ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "passed", runs[0].Outcome)
}

func TestGetRun(t *testing.T) {
	id := uuid.New()
	persisted := int64(1)
	conn := &fakeConn{
		row: []any{id, "aws", time.Time{}, time.Time{}, "passed", uint32(0), ""},
		queries: map[string][][]any{
			"verification_counts": {{"vm", int64(1), &persisted, nil, uint8(1), nil}},
		},
	}

	detail, err := NewStoreWithConn(conn).GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, detail.ID)
	require.Len(t, detail.Counts, 1)
	assert.Equal(t, "vm", detail.Counts[0].EntityType)
	assert.True(t, detail.Counts[0].Match)
	assert.Nil(t, detail.Counts[0].Related)
}

func TestGetRun_NotFound(t *testing.T) {
	_, err := NewStoreWithConn(&fakeConn{}).GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCountRuns(t *testing.T) {
	conn := &fakeConn{row: []any{uint64(4)}}
	store := NewStoreWithConn(conn)

	n, err := store.CountRuns(context.Background(), "mismatch")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = store.CountRuns(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, conn.rowCalls, 2)
	assert.Contains(t, conn.rowCalls[0].query, "WHERE outcome = ?")
	assert.Equal(t, []any{"mismatch"}, conn.rowCalls[0].args)
	assert.NotContains(t, conn.rowCalls[1].query, "WHERE")
	assert.Empty(t, conn.rowCalls[1].args)
}
