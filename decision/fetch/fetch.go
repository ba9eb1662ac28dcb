// Package fetch defines the document fetcher contract used by the
// derivation engine and a request-scoped cache over it.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"inventory-verify/pkg/document"
)

// Kind names a provider resource collection.
type Kind string

const (
	Instances         Kind = "instances"
	PrivateImages     Kind = "private_images"
	SharedImages      Kind = "shared_images"
	SecurityGroups    Kind = "security_groups"
	NetworkInterfaces Kind = "network_interfaces"
	Addresses         Kind = "addresses"
	Volumes           Kind = "volumes"
	VolumeSnapshots   Kind = "volume_snapshots"
	Stacks            Kind = "stacks"
	StackResources    Kind = "stack_resources" // requires ParamStackName
	AvailabilityZones Kind = "availability_zones"
	KeyPairs          Kind = "key_pairs"
	Networks          Kind = "networks"
	Subnets           Kind = "subnets"
	LoadBalancers     Kind = "load_balancers"

	// Fetched for inspection and snapshots; no entity type counts these.
	StackTemplate      Kind = "stack_template"       // requires ParamStackName
	LoadBalancerHealth Kind = "load_balancer_health" // requires ParamLoadBalancerName
)

const (
	// ParamStackName selects the stack for StackResources and StackTemplate.
	ParamStackName = "stack_name"
	// ParamLoadBalancerName selects the load balancer for LoadBalancerHealth.
	ParamLoadBalancerName = "load_balancer_name"
)

// Kinds returns every collection a fetcher must serve.
func Kinds() []Kind {
	return []Kind{
		Instances, PrivateImages, SharedImages, SecurityGroups, NetworkInterfaces,
		Addresses, Volumes, VolumeSnapshots, Stacks, StackResources,
		AvailabilityZones, KeyPairs, Networks, Subnets, LoadBalancers,
		StackTemplate, LoadBalancerHealth,
	}
}

var keyParams = map[Kind]string{
	StackResources:     ParamStackName,
	StackTemplate:      ParamStackName,
	LoadBalancerHealth: ParamLoadBalancerName,
}

// KeyParam returns the parameter that selects one document set of a keyed
// kind. ok is false for kinds fetched as a single collection.
func KeyParam(kind Kind) (param string, ok bool) {
	param, ok = keyParams[kind]
	return param, ok
}

// RequireKey returns the value of kind's key parameter, failing when it is unset.
func RequireKey(kind Kind, params Params) (string, error) {
	param, ok := KeyParam(kind)
	if !ok {
		return "", fmt.Errorf("%s is not a keyed kind", kind)
	}
	value := params[param]
	if value == "" {
		return "", fmt.Errorf("%s requires the %s parameter", kind, param)
	}
	return value, nil
}

// Params narrows a fetch (e.g. the stack name for stack resources).
type Params map[string]string

// key renders params in a stable order.
func (p Params) key() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, "&")
}

// Fetcher retrieves raw documents for one resource kind.
//
// Implementations must drop terminated instances from Instances and apply
// the image filters (machine images, owned vs shared) themselves.
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind, params Params) ([]document.Value, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind Kind, params Params) ([]document.Value, error)

func (f FetcherFunc) Fetch(ctx context.Context, kind Kind, params Params) ([]document.Value, error) {
	return f(ctx, kind, params)
}

// DropTerminated removes instance documents whose state name is "terminated".
func DropTerminated(instances []document.Value) []document.Value {
	out := make([]document.Value, 0, len(instances))
	for _, inst := range instances {
		if inst.Path("state", "name").Text() == "terminated" {
			continue
		}
		out = append(out, inst)
	}
	return out
}
