package derive

import "inventory-verify/pkg/document"

// RefSet is an insertion-ordered set of identifiers. Union returns a new
// set and leaves the receiver untouched.
type RefSet struct {
	order []string
	index map[string]struct{}
}

// NewRefSet builds a set from ids.
func NewRefSet(ids ...string) RefSet {
	return RefSet{}.Union(ids)
}

// Union returns a set holding the members of s followed by the new ids.
// Empty ids are skipped.
func (s RefSet) Union(ids []string) RefSet {
	out := RefSet{
		order: make([]string, len(s.order), len(s.order)+len(ids)),
		index: make(map[string]struct{}, len(s.order)+len(ids)),
	}
	copy(out.order, s.order)
	for _, id := range s.order {
		out.index[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" || out.Contains(id) {
			continue
		}
		out.index[id] = struct{}{}
		out.order = append(out.order, id)
	}
	return out
}

// Len returns the number of members.
func (s RefSet) Len() int { return len(s.order) }

// Contains reports membership.
func (s RefSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Members returns the identifiers in insertion order.
func (s RefSet) Members() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// floatingIPRef picks the identifier of a floating IP: the allocation id
// when present, otherwise the public IP. Every contribution site uses it
// so that one address yields one member.
func floatingIPRef(allocationID, publicIP document.Value) (string, bool) {
	if id := allocationID.Text(); id != "" {
		return id, true
	}
	if ip := publicIP.Text(); ip != "" {
		return ip, true
	}
	return "", false
}

// interfaceFloatingIPs reads private_ip_addresses[].association of every
// network interface.
func interfaceFloatingIPs(interfaces []document.Value) []string {
	var ids []string
	for _, ni := range interfaces {
		for _, private := range ni.Get("private_ip_addresses").Items() {
			assoc := private.Get("association")
			if id, ok := floatingIPRef(assoc.Get("allocation_id"), assoc.Get("public_ip")); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// addressFloatingIPs reads standalone address documents.
func addressFloatingIPs(addresses []document.Value) []string {
	var ids []string
	for _, addr := range addresses {
		if id, ok := floatingIPRef(addr.Get("allocation_id"), addr.Get("public_ip")); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// classicFloatingIPs reads the public IP of instances without interfaces.
func classicFloatingIPs(classic []document.Value) []string {
	var ids []string
	for _, inst := range classic {
		if ip := inst.Get("public_ip_address").Text(); ip != "" {
			ids = append(ids, ip)
		}
	}
	return ids
}

// FloatingIPRefs assembles the deduplicated floating IP reference set of a snapshot.
func FloatingIPRefs(s *Snapshot) RefSet {
	return NewRefSet().
		Union(interfaceFloatingIPs(s.NetworkInterfaces)).
		Union(addressFloatingIPs(s.Addresses)).
		Union(classicFloatingIPs(s.ClassicInstances()))
}
