package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-verify/pkg/entity"
	verr "inventory-verify/pkg/errors"
)

func emptyInventory() entity.Counts {
	c := entity.NewCounts()
	c[entity.ExtManagementSystem] = 4
	c[entity.Flavor] = 76
	return c
}

func TestCompare_EmptyScenarioPasses(t *testing.T) {
	expected := emptyInventory()
	store := StaticCounts{Persisted: emptyInventory()}

	report, err := NewComparator(store, store).Compare(context.Background(), expected)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Len(t, report.Rows, len(entity.All()))

	for _, row := range report.Rows {
		if row.Type.Related() {
			require.NotNil(t, row.Related, row.Type)
		} else {
			assert.Nil(t, row.Related, row.Type)
		}
	}
}

func TestCompare_ReportsEveryMismatch(t *testing.T) {
	expected := emptyInventory()
	expected[entity.VM] = 3
	expected[entity.FloatingIP] = 2
	expected[entity.Disk] = 10

	persisted := emptyInventory()
	persisted[entity.VM] = 3
	persisted[entity.FloatingIP] = 2
	persisted[entity.Disk] = 8

	related := emptyInventory()
	related[entity.FloatingIP] = 1

	report, err := NewComparator(StaticCounts{Persisted: persisted}, StaticCounts{Persisted: persisted, Related: related}).
		Compare(context.Background(), expected)
	require.Error(t, err)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []entity.Type{entity.Disk, entity.FloatingIP}, mismatch.Types())

	disk := mismatch.Mismatches[0]
	assert.Equal(t, 10, disk.Expected)
	assert.Equal(t, 8, disk.Persisted)
	assert.Nil(t, disk.Related)
	assert.Equal(t, "-20", disk.Drift.String())

	fip := mismatch.Mismatches[1]
	assert.Equal(t, 2, fip.Persisted)
	require.NotNil(t, fip.Related)
	assert.Equal(t, 1, *fip.Related)

	assert.Contains(t, err.Error(), "COUNT_MISMATCH: 2 entity types disagree")
	assert.Contains(t, err.Error(), "disk (expected=10 persisted=8 related=-)")
	assert.Contains(t, err.Error(), "floating_ip (expected=2 persisted=2 related=1)")

	require.NotNil(t, report)
	assert.False(t, report.Passed())
	assert.Len(t, report.Mismatches(), 2)
}

func TestCompare_WithoutRoot(t *testing.T) {
	expected := entity.Counts{entity.FloatingIP: 1}
	report, err := NewComparator(StaticCounts{Persisted: entity.Counts{entity.FloatingIP: 1}}, nil).
		Compare(context.Background(), expected)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Nil(t, report.Rows[0].Related)
}

func TestCompare_OnlyExpectedKeys(t *testing.T) {
	expected := entity.Counts{entity.VM: 1}
	persisted := entity.Counts{entity.VM: 1, entity.Disk: 99}
	report, err := NewComparator(StaticCounts{Persisted: persisted}, nil).Compare(context.Background(), expected)
	require.NoError(t, err)
	assert.Len(t, report.Rows, 1)
}

type failingCounter struct{}

func (failingCounter) Count(context.Context, entity.Type) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingCounter) RelatedCount(context.Context, entity.Type) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCompare_AccessorErrors(t *testing.T) {
	_, err := NewComparator(failingCounter{}, nil).Compare(context.Background(), entity.Counts{entity.VM: 0})
	assert.ErrorContains(t, err, "count vm: connection refused")

	_, err = NewComparator(StaticCounts{}, failingCounter{}).Compare(context.Background(), entity.Counts{entity.Flavor: 0})
	assert.ErrorContains(t, err, "related count flavor")

	_, err = NewComparator(nil, nil).Compare(context.Background(), entity.Counts{})
	assert.Error(t, err)
}

func TestDrift(t *testing.T) {
	assert.True(t, drift(0, 5).IsZero())
	assert.Equal(t, "50", drift(4, 6).String())
	assert.Equal(t, "-33.33", drift(3, 2).String())
	assert.True(t, drift(7, 7).IsZero())
}

func TestReport_Err(t *testing.T) {
	assert.NoError(t, (&Report{Rows: []Row{{Type: entity.VM, Expected: 1, Persisted: 1, Match: true}}}).Err())

	err := (&Report{Rows: []Row{{Type: entity.VM, Expected: 1}}}).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), verr.ErrCodeCountMismatch)
}

type attributedRoot struct {
	StaticCounts
	attrs map[string]*string
	names []string
	err   error
}

func (r *attributedRoot) Attributes(_ context.Context, names []string) (map[string]*string, error) {
	r.names = names
	return r.attrs, r.err
}

func TestCompare_RootAttributes(t *testing.T) {
	version := "3.0"
	store := StaticCounts{Persisted: emptyInventory()}

	t.Run("null attributes pass", func(t *testing.T) {
		root := &attributedRoot{StaticCounts: store, attrs: map[string]*string{"api_version": nil, "uid_ems": nil}}
		report, err := NewComparator(store, root).Compare(context.Background(), emptyInventory())
		require.NoError(t, err)
		assert.Equal(t, []string{"api_version", "uid_ems"}, root.names)
		require.Len(t, report.Attributes, 2)
		assert.True(t, report.Attributes[0].Match)
		assert.True(t, report.Passed())
	})

	t.Run("recorded api version fails", func(t *testing.T) {
		root := &attributedRoot{StaticCounts: store, attrs: map[string]*string{"api_version": &version}}
		report, err := NewComparator(store, root).Compare(context.Background(), emptyInventory())
		require.Error(t, err)

		var mismatch *MismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Empty(t, mismatch.Mismatches)
		require.Len(t, mismatch.Attributes, 1)
		assert.Equal(t, "api_version", mismatch.Attributes[0].Name)
		assert.Contains(t, err.Error(), `1 root attributes disagree: api_version (expected=null actual="3.0")`)
		assert.False(t, report.Passed())
		assert.Empty(t, report.Mismatches())
	})

	t.Run("reader failure aborts", func(t *testing.T) {
		root := &attributedRoot{StaticCounts: store, err: errors.New("connection reset")}
		_, err := NewComparator(store, root).Compare(context.Background(), emptyInventory())
		assert.ErrorContains(t, err, "root attributes: connection reset")
	})

	t.Run("no expectations skips the read", func(t *testing.T) {
		root := &attributedRoot{StaticCounts: store}
		cmp := NewComparator(store, root)
		cmp.Attributes = nil
		report, err := cmp.Compare(context.Background(), emptyInventory())
		require.NoError(t, err)
		assert.Nil(t, root.names)
		assert.Empty(t, report.Attributes)
	})
}

func TestSameValue(t *testing.T) {
	a, b := "x", "x"
	c := "y"
	assert.True(t, sameValue(nil, nil))
	assert.True(t, sameValue(&a, &b))
	assert.False(t, sameValue(&a, &c))
	assert.False(t, sameValue(nil, &a))
	assert.False(t, sameValue(&a, nil))
}
