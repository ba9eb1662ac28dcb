// Package flavor resolves instance types to their ephemeral disk counts.
package flavor

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	verr "inventory-verify/pkg/errors"
)

// Provider-wide catalog constants of the AWS integration.
const (
	// CatalogSize is the number of flavors the provider catalog persists.
	CatalogSize = 76
	// ManagerCount is the number of managers an AWS EMS persists
	// (cloud, network, block storage, object storage).
	ManagerCount = 4
)

// ErrUnknownFlavor is wrapped by lookups of absent instance types.
var ErrUnknownFlavor = errors.New("unknown flavor")

// Lookup resolves an instance type name.
type Lookup interface {
	EphemeralDisks(name string) (int, error)
}

// Table maps instance type names to ephemeral disk counts.
type Table map[string]int

// EphemeralDisks returns the ephemeral disk count of name. An absent name
// fails with an UNRESOLVED_LOOKUP error wrapping ErrUnknownFlavor.
func (t Table) EphemeralDisks(name string) (int, error) {
	n, ok := t[name]
	if !ok {
		return 0, verr.NewUnresolvedLookupError(name, "", ErrUnknownFlavor)
	}
	return n, nil
}

// Names returns the instance types in the table, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new table holding t overlaid with other.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

type tableFile struct {
	Flavors map[string]int `yaml:"flavors"`
}

// LoadFile reads a YAML table of the form:
//
//	flavors:
//	  m3.medium: 1
//	  t2.micro: 0
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flavor table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML flavor table.
func Parse(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse flavor table: %w", err)
	}
	for name, n := range f.Flavors {
		if n < 0 {
			return nil, fmt.Errorf("flavor %s: negative ephemeral disk count %d", name, n)
		}
	}
	if f.Flavors == nil {
		f.Flavors = map[string]int{}
	}
	return Table(f.Flavors), nil
}

// WriteFile stores the table as YAML.
func (t Table) WriteFile(path string) error {
	data, err := yaml.Marshal(tableFile{Flavors: t})
	if err != nil {
		return fmt.Errorf("failed to encode flavor table: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
