package fetch

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"inventory-verify/pkg/document"
)

// Snapshot is the on-disk form of a fetched document set. Keyed kinds
// (see KeyParam) hold one document list per stack or load balancer name.
//
//	instances: [...]
//	stack_resources:
//	  my-stack: [...]
type Snapshot struct {
	Collections map[Kind][]document.Value
	Keyed       map[Kind]map[string][]document.Value
}

// UnmarshalYAML splits keyed kinds from flat collections.
func (s *Snapshot) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Collections = make(map[Kind][]document.Value)
	s.Keyed = make(map[Kind]map[string][]document.Value)

	for name, n := range raw {
		kind := Kind(name)
		if !knownKind(kind) {
			return fmt.Errorf("unknown document kind %q", name)
		}
		if _, keyed := KeyParam(kind); keyed {
			var byKey map[string][]document.Value
			if err := n.Decode(&byKey); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			s.Keyed[kind] = byKey
			continue
		}
		var docs []document.Value
		if err := n.Decode(&docs); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.Collections[kind] = docs
	}
	return nil
}

// MarshalYAML writes the snapshot back in the same layout.
func (s Snapshot) MarshalYAML() (interface{}, error) {
	out := make(map[string]interface{}, len(s.Collections)+len(s.Keyed))
	for k, docs := range s.Collections {
		out[string(k)] = docs
	}
	for k, byKey := range s.Keyed {
		if len(byKey) > 0 {
			out[string(k)] = byKey
		}
	}
	return out, nil
}

// put stores docs under key for a keyed kind.
func (s *Snapshot) put(kind Kind, key string, docs []document.Value) {
	if s.Keyed[kind] == nil {
		s.Keyed[kind] = make(map[string][]document.Value)
	}
	s.Keyed[kind][key] = docs
}

func knownKind(k Kind) bool {
	for _, known := range Kinds() {
		if known == k {
			return true
		}
	}
	return false
}

// Static serves documents from an in-memory snapshot.
type Static struct {
	snapshot Snapshot
}

// NewStatic builds a fetcher over snap. Terminated instances are dropped
// at fetch time.
func NewStatic(snap Snapshot) *Static {
	if snap.Collections == nil {
		snap.Collections = map[Kind][]document.Value{}
	}
	if snap.Keyed == nil {
		snap.Keyed = map[Kind]map[string][]document.Value{}
	}
	return &Static{snapshot: snap}
}

// LoadFile reads a YAML or JSON snapshot file.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON snapshot payload.
func Parse(data []byte) (*Static, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return NewStatic(snap), nil
}

func (s *Static) Fetch(_ context.Context, kind Kind, params Params) ([]document.Value, error) {
	if _, keyed := KeyParam(kind); keyed {
		key, err := RequireKey(kind, params)
		if err != nil {
			return nil, err
		}
		return s.snapshot.Keyed[kind][key], nil
	}
	switch kind {
	case Instances:
		return DropTerminated(s.snapshot.Collections[kind]), nil
	default:
		if !knownKind(kind) {
			return nil, fmt.Errorf("unknown document kind %q", kind)
		}
		return s.snapshot.Collections[kind], nil
	}
}

// Capture fetches every collection from f into a Snapshot, following the
// stack and load balancer lists to collect the keyed kinds.
func Capture(ctx context.Context, f Fetcher) (Snapshot, error) {
	snap := Snapshot{
		Collections: make(map[Kind][]document.Value),
		Keyed:       make(map[Kind]map[string][]document.Value),
	}
	for _, kind := range Kinds() {
		if _, keyed := KeyParam(kind); keyed {
			continue
		}
		docs, err := f.Fetch(ctx, kind, nil)
		if err != nil {
			return Snapshot{}, fmt.Errorf("capture %s: %w", kind, err)
		}
		snap.Collections[kind] = docs
	}

	follow := []struct {
		parent Kind
		field  string
		kinds  []Kind
	}{
		{Stacks, "stack_name", []Kind{StackResources, StackTemplate}},
		{LoadBalancers, "load_balancer_name", []Kind{LoadBalancerHealth}},
	}
	for _, fl := range follow {
		for _, parent := range snap.Collections[fl.parent] {
			name := parent.Get(fl.field).Text()
			if name == "" {
				continue
			}
			for _, kind := range fl.kinds {
				param, _ := KeyParam(kind)
				docs, err := f.Fetch(ctx, kind, Params{param: name})
				if err != nil {
					return Snapshot{}, fmt.Errorf("capture %s for %s: %w", kind, name, err)
				}
				snap.put(kind, name, docs)
			}
		}
	}
	return snap, nil
}

// WriteFile saves a snapshot as YAML.
func (s Snapshot) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
