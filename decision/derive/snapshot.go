package derive

import (
	"context"

	"inventory-verify/decision/fetch"
	"inventory-verify/decision/flavor"
	"inventory-verify/pkg/document"
	verr "inventory-verify/pkg/errors"
)

// Snapshot holds every document one derivation pass reads.
type Snapshot struct {
	Instances         []document.Value
	PrivateImages     []document.Value
	SharedImages      []document.Value
	SecurityGroups    []document.Value
	NetworkInterfaces []document.Value
	Addresses         []document.Value
	Volumes           []document.Value
	VolumeSnapshots   []document.Value
	Stacks            []document.Value
	StackResources    []document.Value // resource summaries of all stacks
	AvailabilityZones []document.Value
	KeyPairs          []document.Value
	Networks          []document.Value
	Subnets           []document.Value

	Flavors flavor.Lookup
}

// Images returns private images followed by shared images.
func (s *Snapshot) Images() []document.Value {
	out := make([]document.Value, 0, len(s.PrivateImages)+len(s.SharedImages))
	out = append(out, s.PrivateImages...)
	return append(out, s.SharedImages...)
}

// ClassicInstances returns instances without network interfaces.
func (s *Snapshot) ClassicInstances() []document.Value {
	var out []document.Value
	for _, inst := range s.Instances {
		if inst.Get("network_interfaces").Blank() {
			out = append(out, inst)
		}
	}
	return out
}

// loadSnapshot reads every collection through f. Stack resources are
// fetched per stack name.
func loadSnapshot(ctx context.Context, f fetch.Fetcher) (*Snapshot, error) {
	s := &Snapshot{}
	targets := []struct {
		kind fetch.Kind
		dst  *[]document.Value
	}{
		{fetch.Instances, &s.Instances},
		{fetch.PrivateImages, &s.PrivateImages},
		{fetch.SharedImages, &s.SharedImages},
		{fetch.SecurityGroups, &s.SecurityGroups},
		{fetch.NetworkInterfaces, &s.NetworkInterfaces},
		{fetch.Addresses, &s.Addresses},
		{fetch.Volumes, &s.Volumes},
		{fetch.VolumeSnapshots, &s.VolumeSnapshots},
		{fetch.Stacks, &s.Stacks},
		{fetch.AvailabilityZones, &s.AvailabilityZones},
		{fetch.KeyPairs, &s.KeyPairs},
		{fetch.Networks, &s.Networks},
		{fetch.Subnets, &s.Subnets},
	}
	for _, t := range targets {
		docs, err := f.Fetch(ctx, t.kind, nil)
		if err != nil {
			return nil, verr.NewFetchError(string(t.kind), err)
		}
		*t.dst = docs
	}

	for _, stack := range s.Stacks {
		name := stack.Get("stack_name").Text()
		if name == "" {
			continue
		}
		docs, err := f.Fetch(ctx, fetch.StackResources, fetch.Params{fetch.ParamStackName: name})
		if err != nil {
			return nil, verr.NewFetchError(string(fetch.StackResources), err)
		}
		s.StackResources = append(s.StackResources, docs...)
	}
	return s, nil
}
