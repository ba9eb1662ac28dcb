// Package reconcile compares derived inventory counts against the
// persisted records and the relationships of the EMS root object.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"inventory-verify/pkg/entity"
	verr "inventory-verify/pkg/errors"
)

// Counter returns the number of persisted records of an entity type.
type Counter interface {
	Count(ctx context.Context, typ entity.Type) (int, error)
}

// RelatedCounter returns the number of records reachable from the EMS
// root through the relationship of an entity type. Only types reporting
// Related() are queried.
type RelatedCounter interface {
	RelatedCount(ctx context.Context, typ entity.Type) (int, error)
}

// AttributeReader returns columns of the EMS root record. A nil value is NULL.
type AttributeReader interface {
	Attributes(ctx context.Context, names []string) (map[string]*string, error)
}

// DefaultRootAttributes are the values a freshly refreshed AWS manager
// carries: neither an API version nor a provider uid is recorded.
func DefaultRootAttributes() map[string]*string {
	return map[string]*string{
		"api_version": nil,
		"uid_ems":     nil,
	}
}

// AttributeCheck compares one root attribute against its expected value.
type AttributeCheck struct {
	Name     string  `json:"name"`
	Expected *string `json:"expected"`
	Actual   *string `json:"actual"`
	Match    bool    `json:"match"`
}

func (a AttributeCheck) String() string {
	return fmt.Sprintf("%s (expected=%s actual=%s)", a.Name, nullable(a.Expected), nullable(a.Actual))
}

func nullable(v *string) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%q", *v)
}

// Row is the three-way comparison of one entity type.
type Row struct {
	Type      entity.Type `json:"type"`
	Expected  int         `json:"expected"`
	Persisted int         `json:"persisted"`
	Related   *int        `json:"related,omitempty"`
	Match     bool        `json:"match"`
	// Drift is (persisted - expected) / expected in percent; zero when
	// expected is zero.
	Drift decimal.Decimal `json:"drift_pct"`
}

// Report holds the rows of a comparison, ordered by entity type, and the
// root attribute checks ordered by name.
type Report struct {
	Rows       []Row            `json:"rows"`
	Attributes []AttributeCheck `json:"attributes,omitempty"`
}

// Mismatches returns the rows that failed.
func (r *Report) Mismatches() []Row {
	var out []Row
	for _, row := range r.Rows {
		if !row.Match {
			out = append(out, row)
		}
	}
	return out
}

// AttributeMismatches returns the root attribute checks that failed.
func (r *Report) AttributeMismatches() []AttributeCheck {
	var out []AttributeCheck
	for _, a := range r.Attributes {
		if !a.Match {
			out = append(out, a)
		}
	}
	return out
}

// Passed reports whether every row and attribute check matched.
func (r *Report) Passed() bool {
	return len(r.Mismatches()) == 0 && len(r.AttributeMismatches()) == 0
}

// Err returns a MismatchError listing every failing row and attribute, or nil.
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	return &MismatchError{Mismatches: r.Mismatches(), Attributes: r.AttributeMismatches()}
}

// MismatchError aggregates all disagreeing entity types and root
// attributes of one comparison.
type MismatchError struct {
	Mismatches []Row
	Attributes []AttributeCheck
}

func (e *MismatchError) Error() string {
	var sections []string
	if len(e.Mismatches) > 0 {
		parts := make([]string, 0, len(e.Mismatches))
		for _, row := range e.Mismatches {
			related := "-"
			if row.Related != nil {
				related = fmt.Sprintf("%d", *row.Related)
			}
			parts = append(parts, fmt.Sprintf("%s (expected=%d persisted=%d related=%s)",
				row.Type, row.Expected, row.Persisted, related))
		}
		sections = append(sections, fmt.Sprintf("%d entity types disagree: %s",
			len(e.Mismatches), strings.Join(parts, ", ")))
	}
	if len(e.Attributes) > 0 {
		parts := make([]string, 0, len(e.Attributes))
		for _, a := range e.Attributes {
			parts = append(parts, a.String())
		}
		sections = append(sections, fmt.Sprintf("%d root attributes disagree: %s",
			len(e.Attributes), strings.Join(parts, ", ")))
	}
	return fmt.Sprintf("%s: %s", verr.ErrCodeCountMismatch, strings.Join(sections, "; "))
}

// Types returns the failing entity types.
func (e *MismatchError) Types() []entity.Type {
	out := make([]entity.Type, 0, len(e.Mismatches))
	for _, row := range e.Mismatches {
		out = append(out, row.Type)
	}
	return out
}

// Comparator checks expected counts against the accessors. Root is
// optional; when it also implements AttributeReader, Attributes are
// checked against the root record.
type Comparator struct {
	Persisted  Counter
	Root       RelatedCounter
	Attributes map[string]*string
}

// NewComparator creates a comparator expecting DefaultRootAttributes.
func NewComparator(persisted Counter, root RelatedCounter) *Comparator {
	return &Comparator{Persisted: persisted, Root: root, Attributes: DefaultRootAttributes()}
}

// Compare evaluates every expected key. It returns the full report and,
// when any key disagrees, a *MismatchError covering all of them. Accessor
// failures abort the comparison.
func (c *Comparator) Compare(ctx context.Context, expected entity.Counts) (*Report, error) {
	if c.Persisted == nil {
		return nil, fmt.Errorf("comparator has no persisted counter")
	}

	report := &Report{Rows: make([]Row, 0, len(expected))}
	for _, typ := range expected.Types() {
		want := expected[typ]
		persisted, err := c.Persisted.Count(ctx, typ)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", typ, err)
		}

		row := Row{
			Type:      typ,
			Expected:  want,
			Persisted: persisted,
			Match:     persisted == want,
			Drift:     drift(want, persisted),
		}
		if c.Root != nil && typ.Related() {
			related, err := c.Root.RelatedCount(ctx, typ)
			if err != nil {
				return nil, fmt.Errorf("related count %s: %w", typ, err)
			}
			row.Related = &related
			row.Match = row.Match && related == want
		}
		report.Rows = append(report.Rows, row)
	}

	sort.SliceStable(report.Rows, func(i, j int) bool { return report.Rows[i].Type < report.Rows[j].Type })

	if reader, ok := c.Root.(AttributeReader); ok && len(c.Attributes) > 0 {
		checks, err := c.checkAttributes(ctx, reader)
		if err != nil {
			return nil, err
		}
		report.Attributes = checks
	}
	return report, report.Err()
}

func (c *Comparator) checkAttributes(ctx context.Context, reader AttributeReader) ([]AttributeCheck, error) {
	names := make([]string, 0, len(c.Attributes))
	for name := range c.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	actual, err := reader.Attributes(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("root attributes: %w", err)
	}
	checks := make([]AttributeCheck, 0, len(names))
	for _, name := range names {
		want, got := c.Attributes[name], actual[name]
		checks = append(checks, AttributeCheck{
			Name:     name,
			Expected: want,
			Actual:   got,
			Match:    sameValue(want, got),
		})
	}
	return checks, nil
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func drift(expected, persisted int) decimal.Decimal {
	if expected == 0 {
		return decimal.Zero
	}
	diff := decimal.NewFromInt(int64(persisted - expected))
	return diff.Div(decimal.NewFromInt(int64(expected))).Mul(decimal.NewFromInt(100)).Round(2)
}

// StaticCounts serves both accessors from fixed mappings. Absent types count zero.
type StaticCounts struct {
	Persisted entity.Counts
	Related   entity.Counts
}

func (s StaticCounts) Count(_ context.Context, typ entity.Type) (int, error) {
	return s.Persisted[typ], nil
}

func (s StaticCounts) RelatedCount(_ context.Context, typ entity.Type) (int, error) {
	if s.Related == nil {
		return s.Persisted[typ], nil
	}
	return s.Related[typ], nil
}
