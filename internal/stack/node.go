package stack

import "fmt"

// Kind identifies a provisionable resource kind.
type Kind string

const (
	KindService        Kind = "service"
	KindAddress        Kind = "address"
	KindServiceAccount Kind = "serviceaccount"
	KindInstance       Kind = "instance"
	KindFirewall       Kind = "firewall"
	KindGrant          Kind = "grant"
)

// Outputs are the provider-assigned fields a node reports once it reaches a
// terminal non-failed state. They become inputs to dependent nodes.
type Outputs map[string]string

// Output keys.
const (
	OutAddress    = "address"
	OutEmail      = "email"
	OutNetwork    = "network"
	OutSubnetwork = "subnetwork"
	OutNatIP      = "nat_ip"
	OutID         = "id"
)

// Node is one provisionable unit: identity, desired payload, declared
// prerequisites, and an optional hook to patch the payload from prerequisite
// outputs before the provider call.
type Node struct {
	ID        string
	Kind      Kind
	Name      string
	DependsOn []string

	// Desired is the kind-specific gcp payload (*gcp.InstanceSpec,
	// *gcp.FirewallSpec, ...).
	Desired any

	// Resolve patches Desired from the outputs of completed prerequisites.
	// Nil when the payload is complete at build time. Dry-run planning feeds
	// it outputs recorded in the state store instead of live ones.
	Resolve func(deps map[string]Outputs) error
}

func nodeID(kind Kind, name string) string {
	return fmt.Sprintf("%s/%s", kind, name)
}

func ServiceID(name string) string        { return nodeID(KindService, name) }
func AddressID(name string) string        { return nodeID(KindAddress, name) }
func ServiceAccountID(name string) string { return nodeID(KindServiceAccount, name) }
func InstanceID(name string) string       { return nodeID(KindInstance, name) }
func FirewallID(name string) string       { return nodeID(KindFirewall, name) }

// GrantID identifies one grant node by member and grant role shorthand.
func GrantID(member, shorthand string) string {
	return fmt.Sprintf("%s/%s/%s", KindGrant, member, shorthand)
}

// RoleGrantID identifies the project-scope grant binding the instance
// service account to one role. Keyed by role alone so the node keeps its
// identity whether the account is created or supplied.
func RoleGrantID(role string) string {
	return fmt.Sprintf("%s/instance-sa/%s", KindGrant, role)
}
