package derive

import (
	"fmt"

	"inventory-verify/decision/flavor"
	"inventory-verify/pkg/document"
	"inventory-verify/pkg/entity"
)

// Rule derives the expected count of one entity type from a snapshot.
type Rule interface {
	// EntityType returns the entity type this rule counts
	EntityType() entity.Type

	// Derive computes the expected count
	Derive(s *Snapshot) (int, error)
}

type funcRule struct {
	typ entity.Type
	fn  func(s *Snapshot) (int, error)
}

func (r funcRule) EntityType() entity.Type { return r.typ }
func (r funcRule) Derive(s *Snapshot) (int, error) { return r.fn(s) }

// RuleFunc adapts a function to Rule.
func RuleFunc(typ entity.Type, fn func(s *Snapshot) (int, error)) Rule {
	return funcRule{typ: typ, fn: fn}
}

// CountRule counts documents.
func CountRule(typ entity.Type, docs func(s *Snapshot) []document.Value) Rule {
	return RuleFunc(typ, func(s *Snapshot) (int, error) {
		return len(docs(s)), nil
	})
}

// ConstantRule always yields n.
func ConstantRule(typ entity.Type, n int) Rule {
	return RuleFunc(typ, func(*Snapshot) (int, error) { return n, nil })
}

// Constants are the provider-wide values that do not come from documents.
type Constants struct {
	ExtManagementSystems int
	Flavors              int
}

// DefaultConstants returns the AWS catalog values.
func DefaultConstants() Constants {
	return Constants{
		ExtManagementSystems: flavor.ManagerCount,
		Flavors:              flavor.CatalogSize,
	}
}

// DefaultRules returns one rule per entity type.
func DefaultRules(c Constants) []Rule {
	return []Rule{
		// Compute
		CountRule(entity.VM, func(s *Snapshot) []document.Value { return s.Instances }),
		CountRule(entity.MiqTemplate, (*Snapshot).Images),
		RuleFunc(entity.VMOrTemplate, vmsAndTemplates),
		RuleFunc(entity.Hardware, vmsAndTemplates),
		RuleFunc(entity.CustomAttribute, customAttributes),
		RuleFunc(entity.Network, networks),
		RuleFunc(entity.Disk, disks),
		CountRule(entity.AuthPrivateKey, func(s *Snapshot) []document.Value { return s.KeyPairs }),
		CountRule(entity.AvailabilityZone, func(s *Snapshot) []document.Value { return s.AvailabilityZones }),

		// Networking
		CountRule(entity.SecurityGroup, func(s *Snapshot) []document.Value { return s.SecurityGroups }),
		RuleFunc(entity.FirewallRule, firewallRules),
		RuleFunc(entity.NetworkPort, networkPorts),
		RuleFunc(entity.FloatingIP, func(s *Snapshot) (int, error) { return FloatingIPRefs(s).Len(), nil }),
		CountRule(entity.CloudNetwork, func(s *Snapshot) []document.Value { return s.Networks }),
		CountRule(entity.CloudSubnet, func(s *Snapshot) []document.Value { return s.Subnets }),

		// Storage
		CountRule(entity.CloudVolume, func(s *Snapshot) []document.Value { return s.Volumes }),
		CountRule(entity.CloudVolumeSnapshot, func(s *Snapshot) []document.Value { return s.VolumeSnapshots }),

		// Orchestration
		CountRule(entity.OrchestrationStack, func(s *Snapshot) []document.Value { return s.Stacks }),
		CountRule(entity.OrchestrationTemplate, func(s *Snapshot) []document.Value { return s.Stacks }),
		RuleFunc(entity.OrchestrationStackParameter, flattenedCount(func(s *Snapshot) []document.Value { return s.Stacks }, "parameters")),
		RuleFunc(entity.OrchestrationStackOutput, flattenedCount(func(s *Snapshot) []document.Value { return s.Stacks }, "outputs")),
		RuleFunc(entity.OrchestrationStackResource, stackResources),

		// Catalog constants
		ConstantRule(entity.ExtManagementSystem, c.ExtManagementSystems),
		ConstantRule(entity.Flavor, c.Flavors),

		// No AWS equivalent
		ConstantRule(entity.CloudVolumeBackup, 0),
		ConstantRule(entity.GuestDevice, 0),
		ConstantRule(entity.NetworkRouter, 0),
		ConstantRule(entity.OperatingSystem, 0),
		ConstantRule(entity.Snapshot, 0),
		ConstantRule(entity.SystemService, 0),
	}
}

func vmsAndTemplates(s *Snapshot) (int, error) {
	return len(s.Instances) + len(s.PrivateImages) + len(s.SharedImages), nil
}

// flattenedCount counts the non-null entries of field across docs,
// flattening one level.
func flattenedCount(docs func(s *Snapshot) []document.Value, field string) func(s *Snapshot) (int, error) {
	return func(s *Snapshot) (int, error) {
		return len(document.Flatten(document.Pluck(docs(s), field))), nil
	}
}

// customAttributes counts tag entries of instances and images.
func customAttributes(s *Snapshot) (int, error) {
	docs := append(append([]document.Value{}, s.Instances...), s.Images()...)
	return len(document.Flatten(document.Pluck(docs, "tags"))), nil
}

// networks counts the public and private addresses present on instances.
func networks(s *Snapshot) (int, error) {
	n := 0
	for _, inst := range s.Instances {
		for _, field := range []string{"public_ip_address", "private_ip_address"} {
			if !inst.Get(field).IsNull() {
				n++
			}
		}
	}
	return n, nil
}

// disks adds the flavor-implied ephemeral disks to the attached volumes.
func disks(s *Snapshot) (int, error) {
	lookup := s.Flavors
	if lookup == nil {
		lookup = flavor.Table{}
	}
	ephemeral := 0
	for _, inst := range s.Instances {
		instanceType := inst.Get("instance_type").Text()
		n, err := lookup.EphemeralDisks(instanceType)
		if err != nil {
			return 0, fmt.Errorf("instance %s: %w", inst.Get("instance_id").Text(), err)
		}
		ephemeral += n
	}
	attached := len(document.Flatten(document.Pluck(s.Instances, "block_device_mappings")))
	return ephemeral + attached, nil
}

// firewallRules counts group pairs and IP ranges of every ingress and
// egress permission.
func firewallRules(s *Snapshot) (int, error) {
	n := 0
	for _, sg := range s.SecurityGroups {
		for _, direction := range []string{"ip_permissions", "ip_permissions_egress"} {
			perms := sg.Get(direction).Items()
			n += len(document.Flatten(document.Pluck(perms, "user_id_group_pairs")))
			n += len(document.Flatten(document.Pluck(perms, "ip_ranges")))
		}
	}
	return n, nil
}

// networkPorts counts interfaces plus one implicit port per classic instance.
func networkPorts(s *Snapshot) (int, error) {
	return len(s.NetworkInterfaces) + len(s.ClassicInstances()), nil
}

// stackResources counts resource summaries that reference a physical resource.
func stackResources(s *Snapshot) (int, error) {
	n := 0
	for _, res := range s.StackResources {
		if !res.Get("physical_resource_id").IsNull() {
			n++
		}
	}
	return n, nil
}
