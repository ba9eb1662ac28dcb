package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-verify/db/clickhouse"
	"inventory-verify/decision/flavor"
	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
)

func sampleRun() *verify.Run {
	related := 3
	return &verify.Run{
		ID:      uuid.New(),
		Source:  "snapshot:fixtures/empty.yaml",
		Outcome: verify.OutcomeMismatch,
		Report: &reconcile.Report{Rows: []reconcile.Row{
			{Type: entity.Flavor, Expected: 76, Persisted: 76, Match: true},
			{Type: entity.VM, Expected: 2, Persisted: 3, Related: &related, Drift: decimal.NewFromInt(50)},
		}},
	}
}

func TestWriteReport_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "table", sampleRun()))

	out := buf.String()
	assert.Contains(t, out, "flavor")
	assert.Contains(t, out, "FAIL (1 mismatches)")
}

func TestWriteReport_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "markdown", sampleRun()))

	out := buf.String()
	assert.Contains(t, out, "| vm | 2 | 3 | 3 | 50.00% | ❌ |")
	assert.Contains(t, out, "- **vm**: expected 2, persisted 3, related 3")
}

func TestWriteReport_RootAttributes(t *testing.T) {
	version := "3.0"
	run := sampleRun()
	run.Report.Attributes = []reconcile.AttributeCheck{
		{Name: "api_version", Actual: &version},
		{Name: "uid_ems", Match: true},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "table", run))
	assert.Contains(t, buf.String(), "ROOT ATTRIBUTE")
	assert.Contains(t, buf.String(), "FAIL (2 mismatches)")

	buf.Reset()
	require.NoError(t, writeReport(&buf, "markdown", run))
	assert.Contains(t, buf.String(), "| api_version | null | 3.0 | ❌ |")
	assert.Contains(t, buf.String(), "| uid_ems | null | null | ✅ |")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", sampleRun()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "mismatch", decoded["outcome"])
}

func TestWriteCounts(t *testing.T) {
	counts := entity.Counts{entity.VM: 2, entity.Disk: 5}

	var buf bytes.Buffer
	require.NoError(t, writeCounts(&buf, "markdown", counts))
	assert.Equal(t, "| Entity | Expected |\n|--------|----------|\n| disk | 5 |\n| vm | 2 |\n", buf.String())

	buf.Reset()
	require.NoError(t, writeCounts(&buf, "json", counts))
	assert.JSONEq(t, `{"disk": 5, "vm": 2}`, buf.String())
}

func TestWriteRuns_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRuns(&buf, "json", nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestWriteRunDetail(t *testing.T) {
	persisted := int64(3)
	detail := &clickhouse.RunDetail{
		RunRecord: clickhouse.RunRecord{ID: uuid.New(), Source: "aws:us-east-1", Outcome: "mismatch"},
		Counts: []clickhouse.CountRecord{
			{EntityType: "vm", Expected: 2, Persisted: &persisted},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeRunDetail(&buf, "table", detail))
	assert.Contains(t, buf.String(), "vm")
	assert.Contains(t, buf.String(), "aws:us-east-1")
}

func TestWriteRunStats(t *testing.T) {
	stats := &RunStats{Total: 3, ByOutcome: map[string]int{"passed": 2, "error": 1}}

	var buf bytes.Buffer
	require.NoError(t, writeRunStats(&buf, "table", stats))
	assert.Equal(t, "passed     2\nmismatch   0\nerror      1\ntotal      3\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRunStats(&buf, "json", stats))
	assert.JSONEq(t, `{"total": 3, "by_outcome": {"passed": 2, "error": 1}}`, buf.String())
}

func TestWriteFlavors(t *testing.T) {
	table := flavor.Table{"t2.micro": 0, "c3.large": 2}

	var buf bytes.Buffer
	require.NoError(t, writeFlavors(&buf, "markdown", table))
	assert.Equal(t, "| Instance type | Ephemeral disks |\n|---------------|-----------------|\n| c3.large | 2 |\n| t2.micro | 0 |\n", buf.String())

	buf.Reset()
	require.NoError(t, writeFlavors(&buf, "table", table))
	assert.Contains(t, buf.String(), "c3.large")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
