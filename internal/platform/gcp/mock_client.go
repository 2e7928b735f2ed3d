package gcp

import "context"

// MockClient is a mock implementation of Client. Behavior is injected per
// method through the corresponding Func field; unset fields fall back to
// benign defaults (resources absent, operations succeed).
type MockClient struct {
	GetServiceFunc    func(ctx context.Context, name string) (*ServiceState, error)
	EnableServiceFunc func(ctx context.Context, name string) (*ServiceState, error)

	GetAddressFunc    func(ctx context.Context, name string) (*AddressObserved, error)
	CreateAddressFunc func(ctx context.Context, spec Address) (*AddressObserved, error)
	DeleteAddressFunc func(ctx context.Context, name string) error

	GetServiceAccountFunc    func(ctx context.Context, email string) (*ServiceAccountObserved, error)
	CreateServiceAccountFunc func(ctx context.Context, spec ServiceAccountSpec) (*ServiceAccountObserved, error)
	DeleteServiceAccountFunc func(ctx context.Context, email string) error

	GetInstanceFunc    func(ctx context.Context, zone, name string) (*InstanceObserved, error)
	CreateInstanceFunc func(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error)
	UpdateInstanceFunc func(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error)
	SetMachineTypeFunc func(ctx context.Context, zone, name, machineType string) error
	StopInstanceFunc   func(ctx context.Context, zone, name string) error
	StartInstanceFunc  func(ctx context.Context, zone, name string) error
	DeleteInstanceFunc func(ctx context.Context, zone, name string) error

	GetFirewallFunc    func(ctx context.Context, name string) (*FirewallObserved, error)
	CreateFirewallFunc func(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error)
	UpdateFirewallFunc func(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error)
	DeleteFirewallFunc func(ctx context.Context, name string) error

	HasGrantFunc    func(ctx context.Context, grant Grant) (bool, error)
	AddGrantFunc    func(ctx context.Context, grant Grant) error
	RemoveGrantFunc func(ctx context.Context, grant Grant) error
}

// Ensure interface compliance.
var _ Client = (*MockClient)(nil)

func (m *MockClient) GetService(ctx context.Context, name string) (*ServiceState, error) {
	if m.GetServiceFunc != nil {
		return m.GetServiceFunc(ctx, name)
	}
	return &ServiceState{Name: name, Enabled: false}, nil
}

func (m *MockClient) EnableService(ctx context.Context, name string) (*ServiceState, error) {
	if m.EnableServiceFunc != nil {
		return m.EnableServiceFunc(ctx, name)
	}
	return &ServiceState{Name: name, Enabled: true}, nil
}

func (m *MockClient) GetAddress(ctx context.Context, name string) (*AddressObserved, error) {
	if m.GetAddressFunc != nil {
		return m.GetAddressFunc(ctx, name)
	}
	return nil, nil
}

func (m *MockClient) CreateAddress(ctx context.Context, spec Address) (*AddressObserved, error) {
	if m.CreateAddressFunc != nil {
		return m.CreateAddressFunc(ctx, spec)
	}
	return &AddressObserved{Name: spec.Name, Address: "203.0.113.1"}, nil
}

func (m *MockClient) DeleteAddress(ctx context.Context, name string) error {
	if m.DeleteAddressFunc != nil {
		return m.DeleteAddressFunc(ctx, name)
	}
	return nil
}

func (m *MockClient) GetServiceAccount(ctx context.Context, email string) (*ServiceAccountObserved, error) {
	if m.GetServiceAccountFunc != nil {
		return m.GetServiceAccountFunc(ctx, email)
	}
	return nil, nil
}

func (m *MockClient) CreateServiceAccount(ctx context.Context, spec ServiceAccountSpec) (*ServiceAccountObserved, error) {
	if m.CreateServiceAccountFunc != nil {
		return m.CreateServiceAccountFunc(ctx, spec)
	}
	return &ServiceAccountObserved{Email: spec.AccountID + "@mock.iam.gserviceaccount.com"}, nil
}

func (m *MockClient) DeleteServiceAccount(ctx context.Context, email string) error {
	if m.DeleteServiceAccountFunc != nil {
		return m.DeleteServiceAccountFunc(ctx, email)
	}
	return nil
}

func (m *MockClient) GetInstance(ctx context.Context, zone, name string) (*InstanceObserved, error) {
	if m.GetInstanceFunc != nil {
		return m.GetInstanceFunc(ctx, zone, name)
	}
	return nil, nil
}

func (m *MockClient) CreateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error) {
	if m.CreateInstanceFunc != nil {
		return m.CreateInstanceFunc(ctx, spec)
	}
	return &InstanceObserved{Name: spec.Name, Zone: spec.Zone, MachineType: spec.MachineType, Status: "RUNNING"}, nil
}

func (m *MockClient) UpdateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error) {
	if m.UpdateInstanceFunc != nil {
		return m.UpdateInstanceFunc(ctx, spec)
	}
	return &InstanceObserved{Name: spec.Name, Zone: spec.Zone, MachineType: spec.MachineType, Status: "RUNNING"}, nil
}

func (m *MockClient) SetMachineType(ctx context.Context, zone, name, machineType string) error {
	if m.SetMachineTypeFunc != nil {
		return m.SetMachineTypeFunc(ctx, zone, name, machineType)
	}
	return nil
}

func (m *MockClient) StopInstance(ctx context.Context, zone, name string) error {
	if m.StopInstanceFunc != nil {
		return m.StopInstanceFunc(ctx, zone, name)
	}
	return nil
}

func (m *MockClient) StartInstance(ctx context.Context, zone, name string) error {
	if m.StartInstanceFunc != nil {
		return m.StartInstanceFunc(ctx, zone, name)
	}
	return nil
}

func (m *MockClient) DeleteInstance(ctx context.Context, zone, name string) error {
	if m.DeleteInstanceFunc != nil {
		return m.DeleteInstanceFunc(ctx, zone, name)
	}
	return nil
}

func (m *MockClient) GetFirewall(ctx context.Context, name string) (*FirewallObserved, error) {
	if m.GetFirewallFunc != nil {
		return m.GetFirewallFunc(ctx, name)
	}
	return nil, nil
}

func (m *MockClient) CreateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error) {
	if m.CreateFirewallFunc != nil {
		return m.CreateFirewallFunc(ctx, spec)
	}
	return &FirewallObserved{Name: spec.Name, Network: spec.Network, Direction: spec.Direction}, nil
}

func (m *MockClient) UpdateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error) {
	if m.UpdateFirewallFunc != nil {
		return m.UpdateFirewallFunc(ctx, spec)
	}
	return &FirewallObserved{Name: spec.Name, Network: spec.Network, Direction: spec.Direction}, nil
}

func (m *MockClient) DeleteFirewall(ctx context.Context, name string) error {
	if m.DeleteFirewallFunc != nil {
		return m.DeleteFirewallFunc(ctx, name)
	}
	return nil
}

func (m *MockClient) HasGrant(ctx context.Context, grant Grant) (bool, error) {
	if m.HasGrantFunc != nil {
		return m.HasGrantFunc(ctx, grant)
	}
	return false, nil
}

func (m *MockClient) AddGrant(ctx context.Context, grant Grant) error {
	if m.AddGrantFunc != nil {
		return m.AddGrantFunc(ctx, grant)
	}
	return nil
}

func (m *MockClient) RemoveGrant(ctx context.Context, grant Grant) error {
	if m.RemoveGrantFunc != nil {
		return m.RemoveGrantFunc(ctx, grant)
	}
	return nil
}
