package gcp

import "context"

// Client is the contract with the Google Cloud APIs. Get methods return
// (nil, nil) when the resource does not exist; any other error is a real
// provider failure. All calls are blocking and respect context cancellation;
// long-running operations return only once the provider reports them done.
type Client interface {
	// Project service enablement.
	GetService(ctx context.Context, name string) (*ServiceState, error)
	EnableService(ctx context.Context, name string) (*ServiceState, error)

	// Regional external addresses.
	GetAddress(ctx context.Context, name string) (*AddressObserved, error)
	CreateAddress(ctx context.Context, spec Address) (*AddressObserved, error)
	DeleteAddress(ctx context.Context, name string) error

	// IAM service accounts.
	GetServiceAccount(ctx context.Context, email string) (*ServiceAccountObserved, error)
	CreateServiceAccount(ctx context.Context, spec ServiceAccountSpec) (*ServiceAccountObserved, error)
	DeleteServiceAccount(ctx context.Context, email string) error

	// Compute instances. UpdateInstance applies the mutable field set (tags,
	// metadata, labels); machine type changes go through SetMachineType,
	// which requires the instance to be stopped.
	GetInstance(ctx context.Context, zone, name string) (*InstanceObserved, error)
	CreateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error)
	UpdateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error)
	SetMachineType(ctx context.Context, zone, name, machineType string) error
	StopInstance(ctx context.Context, zone, name string) error
	StartInstance(ctx context.Context, zone, name string) error
	DeleteInstance(ctx context.Context, zone, name string) error

	// VPC firewall rules.
	GetFirewall(ctx context.Context, name string) (*FirewallObserved, error)
	CreateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error)
	UpdateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error)
	DeleteFirewall(ctx context.Context, name string) error

	// IAM bindings.
	HasGrant(ctx context.Context, grant Grant) (bool, error)
	AddGrant(ctx context.Context, grant Grant) error
	RemoveGrant(ctx context.Context, grant Grant) error
}
