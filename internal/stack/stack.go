package stack

import (
	"fmt"

	"github.com/r4rohan/gcevm/internal/config"
	"github.com/r4rohan/gcevm/internal/derive"
	"github.com/r4rohan/gcevm/internal/graph"
	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/util/naming"
)

// Project API services the stack calls. Enablement nodes for these are
// always active and precede every node using the corresponding API.
const (
	ServiceCompute = "compute.googleapis.com"
	ServiceIAM     = "iam.googleapis.com"
	ServiceIAP     = "iap.googleapis.com"
	ServiceOSLogin = "oslogin.googleapis.com"
)

// PlaceholderMetadataKey is carried on every instance and excluded from
// change detection. The guest environment rewrites it out-of-band; diffing
// it would produce a spurious update on every run.
const PlaceholderMetadataKey = "gce-placeholder"

// CloudPlatformScope is the OAuth scope attached to the instance service
// account; access is narrowed through IAM roles, not scopes.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Stack is the concrete node list of one reconciliation run.
type Stack struct {
	Nodes []*Node

	index map[string]*Node
}

// Get returns the node with the given ID, or nil.
func (s *Stack) Get(id string) *Node {
	return s.index[id]
}

// Graph assembles the dependency DAG over the stack's nodes from their
// declared prerequisites.
func (s *Stack) Graph() (*graph.DAG[string], error) {
	d := graph.New[string]()
	for _, n := range s.Nodes {
		if err := d.AddVertex(n.ID); err != nil {
			return nil, fmt.Errorf("failed to add node %s: %w", n.ID, err)
		}
	}
	for _, n := range s.Nodes {
		for _, dep := range n.DependsOn {
			if err := d.AddDependency(n.ID, dep); err != nil {
				return nil, fmt.Errorf("failed to add dependency %s -> %s: %w", n.ID, dep, err)
			}
		}
	}
	return d, nil
}

// Build evaluates every activation predicate once and returns the concrete
// node list with declared prerequisites and resolve hooks.
func Build(cfg *config.Stack, d derive.Derived, session *config.Session) *Stack {
	var nodes []*Node

	for _, svc := range []string{ServiceCompute, ServiceIAM, ServiceIAP, ServiceOSLogin} {
		nodes = append(nodes, &Node{
			ID:      ServiceID(svc),
			Kind:    KindService,
			Name:    svc,
			Desired: &gcp.ServiceState{Name: svc, Enabled: true},
		})
	}

	ipMode := derive.ResolveExternalIP(cfg)
	if ipMode == derive.IPCreated {
		nodes = append(nodes, &Node{
			ID:        AddressID(d.ExternalIPName),
			Kind:      KindAddress,
			Name:      d.ExternalIPName,
			DependsOn: []string{ServiceID(ServiceCompute)},
			Desired: &gcp.Address{
				Name:   d.ExternalIPName,
				Region: session.Region,
				Labels: cfg.Labels,
			},
		})
	}

	if d.CreateServiceAccount {
		nodes = append(nodes, &Node{
			ID:        ServiceAccountID(d.InstanceName),
			Kind:      KindServiceAccount,
			Name:      d.InstanceName,
			DependsOn: []string{ServiceID(ServiceIAM)},
			Desired: &gcp.ServiceAccountSpec{
				AccountID:   d.ServiceAccountID,
				DisplayName: fmt.Sprintf("Service account for %s", d.InstanceName),
			},
		})
	}

	nodes = append(nodes, buildInstance(cfg, d, ipMode))

	instanceDep := InstanceID(d.InstanceName)
	nodes = append(nodes, buildFirewalls(cfg, d, instanceDep)...)
	nodes = append(nodes, buildRoleGrants(d, session)...)
	nodes = append(nodes, buildGrants(cfg, d, session, instanceDep)...)

	s := &Stack{Nodes: nodes, index: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		s.index[n.ID] = n
	}
	return s
}

func buildInstance(cfg *config.Stack, d derive.Derived, ipMode derive.ExternalIPMode) *Node {
	metadata := map[string]string{
		PlaceholderMetadataKey: "",
	}
	if cfg.AllowLogin {
		metadata["enable-oslogin"] = "TRUE"
	}

	spec := &gcp.InstanceSpec{
		Name:        d.InstanceName,
		Zone:        d.Zone,
		MachineType: cfg.MachineType,
		BootDisk: gcp.BootDisk{
			Image:  cfg.Disk.Image,
			SizeGB: cfg.Disk.SizeGB,
			Type:   cfg.Disk.Type,
		},
		NetworkInterface: gcp.NetworkInterface{
			Subnetwork: cfg.Subnetwork,
		},
		Tags:                d.Tags,
		Metadata:            metadata,
		Labels:              cfg.Labels,
		ServiceAccountEmail: d.ServiceAccountEmail,
		Scopes:              []string{CloudPlatformScope},
	}

	deps := []string{ServiceID(ServiceCompute)}
	if cfg.AllowLogin {
		deps = append(deps, ServiceID(ServiceOSLogin))
	}

	// The access config is present only when the instance gets an external
	// IP at all; with neither source it stays nil so the provider sees no
	// block, not an empty one.
	switch ipMode {
	case derive.IPCreated:
		spec.NetworkInterface.AccessConfig = &gcp.AccessConfig{}
		deps = append(deps, AddressID(d.ExternalIPName))
	case derive.IPLiteral:
		spec.NetworkInterface.AccessConfig = &gcp.AccessConfig{NatIP: cfg.SourceExternalIP}
	}

	if d.CreateServiceAccount {
		deps = append(deps, ServiceAccountID(d.InstanceName))
	}

	n := &Node{
		ID:        InstanceID(d.InstanceName),
		Kind:      KindInstance,
		Name:      d.InstanceName,
		DependsOn: deps,
		Desired:   spec,
	}

	addressNode := AddressID(d.ExternalIPName)
	saNode := ServiceAccountID(d.InstanceName)
	needsIP := ipMode == derive.IPCreated
	needsSA := d.CreateServiceAccount
	if needsIP || needsSA {
		n.Resolve = func(deps map[string]Outputs) error {
			if needsIP {
				out, ok := deps[addressNode]
				if !ok || out[OutAddress] == "" {
					return fmt.Errorf("external IP not available for instance %s", spec.Name)
				}
				spec.NetworkInterface.AccessConfig.NatIP = out[OutAddress]
			}
			if needsSA {
				out, ok := deps[saNode]
				if !ok || out[OutEmail] == "" {
					return fmt.Errorf("service account email not available for instance %s", spec.Name)
				}
				spec.ServiceAccountEmail = out[OutEmail]
			}
			return nil
		}
	}

	return n
}

func buildFirewalls(cfg *config.Stack, d derive.Derived, instanceDep string) []*Node {
	var nodes []*Node

	add := func(name string, spec *gcp.FirewallSpec, extraDeps ...string) {
		deps := append([]string{ServiceID(ServiceCompute), instanceDep}, extraDeps...)
		n := &Node{
			ID:        FirewallID(name),
			Kind:      KindFirewall,
			Name:      name,
			DependsOn: deps,
			Desired:   spec,
		}
		// The rule targets the network the instance actually landed in,
		// which is only readable after the instance exists.
		n.Resolve = func(deps map[string]Outputs) error {
			out, ok := deps[instanceDep]
			if !ok || out[OutNetwork] == "" {
				return fmt.Errorf("instance network not available for firewall %s", name)
			}
			spec.Network = out[OutNetwork]
			return nil
		}
		nodes = append(nodes, n)
	}

	if cfg.AllowLogin {
		name := naming.LoginFirewall(d.InstanceName)
		add(name, loginFirewallSpec(name, d.Tags), ServiceID(ServiceIAP))
	}

	name := naming.EgressFirewall(d.InstanceName)
	add(name, egressFirewallSpec(name, d.Tags))

	return nodes
}

func buildGrants(cfg *config.Stack, d derive.Derived, session *config.Session, instanceDep string) []*Node {
	groups, serviceAccounts := derive.Principals(cfg)
	if len(groups)+len(serviceAccounts) == 0 {
		return nil
	}

	baseDeps := []string{ServiceID(ServiceIAM), instanceDep}
	if d.CreateServiceAccount {
		baseDeps = append(baseDeps, ServiceAccountID(d.InstanceName))
	}

	var nodes []*Node
	emit := func(memberType, email string) {
		b := grantBundle{
			member:   fmt.Sprintf("%s:%s", memberType, email),
			instance: d.InstanceName,
			zone:     d.Zone,
			project:  session.Project,
			saEmail:  d.ServiceAccountEmail,
		}
		nodes = append(nodes, b.expand(baseDeps, d.CreateServiceAccount)...)
	}

	for _, g := range groups {
		emit(MemberGroup, g)
	}
	for _, sa := range serviceAccounts {
		emit(MemberServiceAccount, sa)
	}
	return nodes
}
