package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"inventory-verify/db/clickhouse"
	"inventory-verify/decision/flavor"
	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func relatedCell(row reconcile.Row) string {
	if row.Related == nil {
		return "-"
	}
	return strconv.Itoa(*row.Related)
}

func attributeCell(v *string) string {
	if v == nil {
		return "null"
	}
	return *v
}

func statusIcon(match bool) string {
	if match {
		return "✅"
	}
	return "❌"
}

// writeReport renders the comparison of a run.
func writeReport(w io.Writer, format string, run *verify.Run) error {
	switch format {
	case "json":
		return writeJSON(w, run)
	case "markdown":
		return reportMarkdown(w, run)
	default:
		return reportTable(w, run)
	}
}

func reportTable(w io.Writer, run *verify.Run) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      🔎 INVENTORY VERIFICATION                        ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Run:      %-57s ║\n", run.ID)
	fmt.Fprintf(w, "║  Source:   %-57s ║\n", truncate(run.Source, 57))
	fmt.Fprintf(w, "║  Duration: %-57s ║\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  %-32s %9s %9s %9s %7s  ║\n", "ENTITY", "EXPECTED", "PERSISTED", "RELATED", "")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════════════╣")
	for _, row := range run.Report.Rows {
		fmt.Fprintf(w, "║  %-32s %9d %9d %9s %6s  ║\n",
			truncate(string(row.Type), 32), row.Expected, row.Persisted, relatedCell(row), statusIcon(row.Match))
	}
	if len(run.Report.Attributes) > 0 {
		fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════════════╣")
		fmt.Fprintf(w, "║  %-32s %14s %14s %4s  ║\n", "ROOT ATTRIBUTE", "EXPECTED", "ACTUAL", "")
		for _, a := range run.Report.Attributes {
			fmt.Fprintf(w, "║  %-32s %14s %14s %3s  ║\n",
				truncate(a.Name, 32), truncate(attributeCell(a.Expected), 14), truncate(attributeCell(a.Actual), 14), statusIcon(a.Match))
		}
	}
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════════════╣")
	result := "✅ PASS"
	if !run.Report.Passed() {
		result = fmt.Sprintf("❌ FAIL (%d mismatches)", len(run.Report.Mismatches())+len(run.Report.AttributeMismatches()))
	}
	fmt.Fprintf(w, "║  Result:   %-57s ║\n", result)
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════════════╝")
	return nil
}

func reportMarkdown(w io.Writer, run *verify.Run) error {
	fmt.Fprintln(w, "## 🔎 Inventory Verification Report")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run `%s` from `%s`: **%s**\n", run.ID, run.Source, run.Outcome)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Entity | Expected | Persisted | Related | Drift | |")
	fmt.Fprintln(w, "|--------|----------|-----------|---------|-------|---|")
	for _, row := range run.Report.Rows {
		fmt.Fprintf(w, "| %s | %d | %d | %s | %s%% | %s |\n",
			row.Type, row.Expected, row.Persisted, relatedCell(row), row.Drift.StringFixed(2), statusIcon(row.Match))
	}

	if mismatches := run.Report.Mismatches(); len(mismatches) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### ❌ Mismatches")
		fmt.Fprintln(w)
		for _, row := range mismatches {
			fmt.Fprintf(w, "- **%s**: expected %d, persisted %d, related %s\n",
				row.Type, row.Expected, row.Persisted, relatedCell(row))
		}
	}

	if len(run.Report.Attributes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Root attribute | Expected | Actual | |")
		fmt.Fprintln(w, "|----------------|----------|--------|---|")
		for _, a := range run.Report.Attributes {
			fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
				a.Name, attributeCell(a.Expected), attributeCell(a.Actual), statusIcon(a.Match))
		}
	}
	return nil
}

// writeCounts renders derived counts.
func writeCounts(w io.Writer, format string, counts entity.Counts) error {
	switch format {
	case "json":
		return writeJSON(w, counts)
	case "markdown":
		fmt.Fprintln(w, "| Entity | Expected |")
		fmt.Fprintln(w, "|--------|----------|")
		for _, typ := range counts.Types() {
			fmt.Fprintf(w, "| %s | %d |\n", typ, counts[typ])
		}
		return nil
	default:
		for _, typ := range counts.Types() {
			fmt.Fprintf(w, "%-32s %d\n", typ, counts[typ])
		}
		return nil
	}
}

// writeRuns renders the run history.
func writeRuns(w io.Writer, format string, runs []clickhouse.RunRecord) error {
	if format == "json" {
		if runs == nil {
			runs = []clickhouse.RunRecord{}
		}
		return writeJSON(w, runs)
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-8s  %10s  %s\n", "ID", "STARTED", "OUTCOME", "MISMATCHES", "SOURCE")
	for _, run := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-8s  %10d  %s\n",
			run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.Outcome, run.Mismatches, run.Source)
	}
	return nil
}

// writeRunStats renders run counts per outcome.
func writeRunStats(w io.Writer, format string, stats *RunStats) error {
	if format == "json" {
		return writeJSON(w, stats)
	}
	for _, outcome := range []verify.Outcome{verify.OutcomePassed, verify.OutcomeMismatch, verify.OutcomeError} {
		fmt.Fprintf(w, "%-10s %d\n", outcome, stats.ByOutcome[string(outcome)])
	}
	fmt.Fprintf(w, "%-10s %d\n", "total", stats.Total)
	return nil
}

// writeFlavors renders a flavor table sorted by instance type.
func writeFlavors(w io.Writer, format string, table flavor.Table) error {
	switch format {
	case "json":
		return writeJSON(w, table)
	case "markdown":
		fmt.Fprintln(w, "| Instance type | Ephemeral disks |")
		fmt.Fprintln(w, "|---------------|-----------------|")
		for _, name := range table.Names() {
			fmt.Fprintf(w, "| %s | %d |\n", name, table[name])
		}
		return nil
	default:
		for _, name := range table.Names() {
			fmt.Fprintf(w, "%-24s %d\n", name, table[name])
		}
		return nil
	}
}

// writeRunDetail renders one recorded run.
func writeRunDetail(w io.Writer, format string, detail *clickhouse.RunDetail) error {
	if format == "json" {
		return writeJSON(w, detail)
	}
	fmt.Fprintf(w, "Run %s (%s) %s\n", detail.ID, detail.Source, detail.Outcome)
	if detail.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", detail.Error)
	}
	for _, rec := range detail.Counts {
		persisted, related := "-", "-"
		if rec.Persisted != nil {
			persisted = strconv.FormatInt(*rec.Persisted, 10)
		}
		if rec.Related != nil {
			related = strconv.FormatInt(*rec.Related, 10)
		}
		fmt.Fprintf(w, "%-32s %9d %9s %9s %s\n", rec.EntityType, rec.Expected, persisted, related, statusIcon(rec.Match))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
