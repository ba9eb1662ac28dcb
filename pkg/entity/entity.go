// Package entity defines the normalized inventory taxonomy counted by the verifier.
package entity

import "sort"

// Type is a normalized inventory entity tag.
type Type string

const (
	AuthPrivateKey              Type = "auth_private_key"
	AvailabilityZone            Type = "availability_zone"
	CloudNetwork                Type = "cloud_network"
	CloudSubnet                 Type = "cloud_subnet"
	CloudVolume                 Type = "cloud_volume"
	CloudVolumeBackup           Type = "cloud_volume_backup"
	CloudVolumeSnapshot         Type = "cloud_volume_snapshot"
	CustomAttribute             Type = "custom_attribute"
	Disk                        Type = "disk"
	ExtManagementSystem         Type = "ext_management_system"
	FirewallRule                Type = "firewall_rule"
	Flavor                      Type = "flavor"
	FloatingIP                  Type = "floating_ip"
	GuestDevice                 Type = "guest_device"
	Hardware                    Type = "hardware"
	MiqTemplate                 Type = "miq_template"
	Network                     Type = "network"
	NetworkPort                 Type = "network_port"
	NetworkRouter               Type = "network_router"
	OperatingSystem             Type = "operating_system"
	OrchestrationStack          Type = "orchestration_stack"
	OrchestrationStackOutput    Type = "orchestration_stack_output"
	OrchestrationStackParameter Type = "orchestration_stack_parameter"
	OrchestrationStackResource  Type = "orchestration_stack_resource"
	OrchestrationTemplate       Type = "orchestration_template"
	SecurityGroup               Type = "security_group"
	Snapshot                    Type = "snapshot"
	SystemService               Type = "system_service"
	VM                          Type = "vm"
	VMOrTemplate                Type = "vm_or_template"
)

var all = []Type{
	AuthPrivateKey,
	AvailabilityZone,
	CloudNetwork,
	CloudSubnet,
	CloudVolume,
	CloudVolumeBackup,
	CloudVolumeSnapshot,
	CustomAttribute,
	Disk,
	ExtManagementSystem,
	FirewallRule,
	Flavor,
	FloatingIP,
	GuestDevice,
	Hardware,
	MiqTemplate,
	Network,
	NetworkPort,
	NetworkRouter,
	OperatingSystem,
	OrchestrationStack,
	OrchestrationStackOutput,
	OrchestrationStackParameter,
	OrchestrationStackResource,
	OrchestrationTemplate,
	SecurityGroup,
	Snapshot,
	SystemService,
	VM,
	VMOrTemplate,
}

// Types reachable through the relationship accessors of the EMS root object.
var related = map[Type]bool{
	Flavor:             true,
	AvailabilityZone:   true,
	VMOrTemplate:       true,
	SecurityGroup:      true,
	NetworkPort:        true,
	CloudNetwork:       true,
	FloatingIP:         true,
	NetworkRouter:      true,
	CloudSubnet:        true,
	MiqTemplate:        true,
	OrchestrationStack: true,
}

// All returns every entity type in alphabetical order.
func All() []Type {
	out := make([]Type, len(all))
	copy(out, all)
	return out
}

// Valid reports whether t belongs to the taxonomy.
func (t Type) Valid() bool {
	for _, v := range all {
		if v == t {
			return true
		}
	}
	return false
}

// Related reports whether t is exposed by the EMS root relationships.
func (t Type) Related() bool {
	return related[t]
}

// RelatedTypes returns the types exposed by the EMS root relationships.
func RelatedTypes() []Type {
	out := make([]Type, 0, len(related))
	for _, t := range all {
		if related[t] {
			out = append(out, t)
		}
	}
	return out
}

// Parse converts a tag into a Type.
func Parse(s string) (Type, bool) {
	t := Type(s)
	return t, t.Valid()
}

// Counts maps entity types to a number of records.
type Counts map[Type]int

// NewCounts returns a Counts holding zero for every entity type.
func NewCounts() Counts {
	c := make(Counts, len(all))
	for _, t := range all {
		c[t] = 0
	}
	return c
}

// Missing returns the taxonomy types absent from c.
func (c Counts) Missing() []Type {
	var missing []Type
	for _, t := range all {
		if _, ok := c[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// Complete reports whether c holds a value for every entity type.
func (c Counts) Complete() bool {
	return len(c.Missing()) == 0
}

// Types returns the keys of c sorted by tag.
func (c Counts) Types() []Type {
	out := make([]Type, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether both mappings hold the same keys and values.
func (c Counts) Equal(other Counts) bool {
	if len(c) != len(other) {
		return false
	}
	for t, n := range c {
		if m, ok := other[t]; !ok || m != n {
			return false
		}
	}
	return true
}
