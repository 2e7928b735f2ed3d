package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r4rohan/gcevm/internal/config"
	"github.com/r4rohan/gcevm/internal/derive"
	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
	"github.com/r4rohan/gcevm/internal/util/retry"
)

// fakeCloud is a stateful in-memory provider. Every mutation is recorded in
// the call log so tests can assert ordering.
type fakeCloud struct {
	mu    sync.Mutex
	calls []string

	services  map[string]bool
	addresses map[string]*gcp.AddressObserved
	accounts  map[string]*gcp.ServiceAccountObserved
	instances map[string]*gcp.InstanceObserved
	firewalls map[string]*gcp.FirewallObserved
	grants    map[string]bool

	createInstanceErr error
	createFirewallErr func(name string) error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		services:  make(map[string]bool),
		addresses: make(map[string]*gcp.AddressObserved),
		accounts:  make(map[string]*gcp.ServiceAccountObserved),
		instances: make(map[string]*gcp.InstanceObserved),
		firewalls: make(map[string]*gcp.FirewallObserved),
		grants:    make(map[string]bool),
	}
}

func (f *fakeCloud) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// callIndex returns the position of the first call with the given prefix,
// or -1.
func (f *fakeCloud) callIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (f *fakeCloud) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		for _, p := range []string{"create", "update", "delete", "add-grant", "remove-grant", "enable", "stop", "start", "set-machine-type"} {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (f *fakeCloud) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func grantKey(g gcp.Grant) string {
	return fmt.Sprintf("%s|%s|%s|%s", g.Role, g.Member, g.Scope, g.Resource)
}

func (f *fakeCloud) client() *gcp.MockClient {
	return &gcp.MockClient{
		GetServiceFunc: func(_ context.Context, name string) (*gcp.ServiceState, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return &gcp.ServiceState{Name: name, Enabled: f.services[name]}, nil
		},
		EnableServiceFunc: func(_ context.Context, name string) (*gcp.ServiceState, error) {
			f.record("enable-service %s", name)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.services[name] = true
			return &gcp.ServiceState{Name: name, Enabled: true}, nil
		},

		GetAddressFunc: func(_ context.Context, name string) (*gcp.AddressObserved, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.addresses[name], nil
		},
		CreateAddressFunc: func(_ context.Context, spec gcp.Address) (*gcp.AddressObserved, error) {
			f.record("create-address %s", spec.Name)
			obs := &gcp.AddressObserved{Name: spec.Name, Address: "203.0.113.9", SelfLink: "link/" + spec.Name}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.addresses[spec.Name] = obs
			return obs, nil
		},
		DeleteAddressFunc: func(_ context.Context, name string) error {
			f.record("delete-address %s", name)
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.addresses, name)
			return nil
		},

		GetServiceAccountFunc: func(_ context.Context, email string) (*gcp.ServiceAccountObserved, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.accounts[email], nil
		},
		CreateServiceAccountFunc: func(_ context.Context, spec gcp.ServiceAccountSpec) (*gcp.ServiceAccountObserved, error) {
			f.record("create-service-account %s", spec.AccountID)
			email := spec.AccountID + "@my-proj.iam.gserviceaccount.com"
			obs := &gcp.ServiceAccountObserved{Email: email, UniqueID: "uid-" + spec.AccountID}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.accounts[email] = obs
			return obs, nil
		},
		DeleteServiceAccountFunc: func(_ context.Context, email string) error {
			f.record("delete-service-account %s", email)
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.accounts, email)
			return nil
		},

		GetInstanceFunc: func(_ context.Context, zone, name string) (*gcp.InstanceObserved, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.instances[zone+"/"+name], nil
		},
		CreateInstanceFunc: func(_ context.Context, spec gcp.InstanceSpec) (*gcp.InstanceObserved, error) {
			if f.createInstanceErr != nil {
				return nil, f.createInstanceErr
			}
			f.record("create-instance %s", spec.Name)
			obs := &gcp.InstanceObserved{
				ID:                  "id-" + spec.Name,
				Name:                spec.Name,
				Zone:                spec.Zone,
				MachineType:         spec.MachineType,
				Status:              "RUNNING",
				Tags:                spec.Tags,
				Metadata:            spec.Metadata,
				ServiceAccountEmail: spec.ServiceAccountEmail,
				Network:             "link/networks/default",
				Subnetwork:          spec.NetworkInterface.Subnetwork,
			}
			if spec.NetworkInterface.AccessConfig != nil {
				obs.NatIP = spec.NetworkInterface.AccessConfig.NatIP
			}
			f.mu.Lock()
			f.instances[spec.Zone+"/"+spec.Name] = obs
			f.mu.Unlock()
			// Creation returns before the network attachment is readable, the
			// way the live API behaves; the follow-up read sees it settled.
			unsettled := *obs
			unsettled.Network = ""
			unsettled.Subnetwork = ""
			return &unsettled, nil
		},
		UpdateInstanceFunc: func(_ context.Context, spec gcp.InstanceSpec) (*gcp.InstanceObserved, error) {
			f.record("update-instance %s", spec.Name)
			f.mu.Lock()
			defer f.mu.Unlock()
			obs := f.instances[spec.Zone+"/"+spec.Name]
			obs.Tags = spec.Tags
			obs.Metadata = spec.Metadata
			obs.Labels = spec.Labels
			return obs, nil
		},
		SetMachineTypeFunc: func(_ context.Context, zone, name, machineType string) error {
			f.record("set-machine-type %s %s", name, machineType)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.instances[zone+"/"+name].MachineType = machineType
			return nil
		},
		StopInstanceFunc: func(_ context.Context, _, name string) error {
			f.record("stop-instance %s", name)
			return nil
		},
		StartInstanceFunc: func(_ context.Context, _, name string) error {
			f.record("start-instance %s", name)
			return nil
		},
		DeleteInstanceFunc: func(_ context.Context, zone, name string) error {
			f.record("delete-instance %s", name)
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.instances, zone+"/"+name)
			return nil
		},

		GetFirewallFunc: func(_ context.Context, name string) (*gcp.FirewallObserved, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.firewalls[name], nil
		},
		CreateFirewallFunc: func(_ context.Context, spec gcp.FirewallSpec) (*gcp.FirewallObserved, error) {
			if f.createFirewallErr != nil {
				if err := f.createFirewallErr(spec.Name); err != nil {
					return nil, err
				}
			}
			f.record("create-firewall %s", spec.Name)
			obs := &gcp.FirewallObserved{ID: "id-" + spec.Name, Name: spec.Name, Network: spec.Network, Direction: spec.Direction}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.firewalls[spec.Name] = obs
			return obs, nil
		},
		UpdateFirewallFunc: func(_ context.Context, spec gcp.FirewallSpec) (*gcp.FirewallObserved, error) {
			f.record("update-firewall %s", spec.Name)
			obs := &gcp.FirewallObserved{ID: "id-" + spec.Name, Name: spec.Name, Network: spec.Network, Direction: spec.Direction}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.firewalls[spec.Name] = obs
			return obs, nil
		},
		DeleteFirewallFunc: func(_ context.Context, name string) error {
			f.record("delete-firewall %s", name)
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.firewalls, name)
			return nil
		},

		HasGrantFunc: func(_ context.Context, g gcp.Grant) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.grants[grantKey(g)], nil
		},
		AddGrantFunc: func(_ context.Context, g gcp.Grant) error {
			f.record("add-grant %s %s", g.Role, g.Member)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.grants[grantKey(g)] = true
			return nil
		},
		RemoveGrantFunc: func(_ context.Context, g gcp.Grant) error {
			f.record("remove-grant %s %s", g.Role, g.Member)
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.grants, grantKey(g))
			return nil
		},
	}
}

// memStore keeps state in memory across engine runs.
type memStore struct {
	state *statestore.State
	saves int
}

func (m *memStore) Load(context.Context) (*statestore.State, error) {
	if m.state == nil {
		return statestore.NewState(), nil
	}
	return m.state, nil
}

func (m *memStore) Save(_ context.Context, s *statestore.State) error {
	m.state = s
	m.saves++
	return nil
}

func testSession() *config.Session {
	return &config.Session{Project: "my-proj", Region: "us-central1"}
}

func fullConfig() *config.Stack {
	return &config.Stack{
		Name:                 "web",
		NameSuffix:           "prod",
		MachineType:          "e2-medium",
		ZoneSuffix:           "a",
		Subnetwork:           "projects/my-proj/regions/us-central1/subnetworks/default",
		Disk:                 config.Disk{Image: "debian-cloud/debian-12", SizeGB: 20, Type: "pd-balanced"},
		CreateExternalIP:     true,
		AllowLogin:           true,
		LoginUserGroups:      []string{"ops@example.com"},
		LoginServiceAccounts: []string{"ci@my-proj.iam.gserviceaccount.com"},
	}
}

func buildStack(cfg *config.Stack) *stack.Stack {
	return stack.Build(cfg, derive.Compute(cfg, testSession()), testSession())
}

func newTestEngine(client gcp.Client, store statestore.Store, allowStop bool) *Engine {
	return New(client, store, logr.Discard(), nil, Options{
		Project:                "my-proj",
		AllowStoppingForUpdate: allowStop,
		Retry: []retry.Option{
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(time.Millisecond),
		},
	})
}

func outcomesByKind(rep *Report, outcome Outcome) map[stack.Kind]int {
	counts := make(map[stack.Kind]int)
	for _, res := range rep.Results {
		if res.Outcome == outcome {
			counts[res.Kind]++
		}
	}
	return counts
}

func TestApply_CreatesFullStack(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)
	st := buildStack(fullConfig())

	rep, err := eng.Apply(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())

	created := outcomesByKind(rep, OutcomeCreated)
	assert.Equal(t, 4, created[stack.KindService])
	assert.Equal(t, 1, created[stack.KindAddress])
	assert.Equal(t, 1, created[stack.KindServiceAccount])
	assert.Equal(t, 1, created[stack.KindInstance])
	assert.Equal(t, 2, created[stack.KindFirewall])
	assert.Equal(t, 11, created[stack.KindGrant])

	// The instance got the allocated address and the created account.
	inst := cloud.instances["us-central1-a/web-vm-prod"]
	require.NotNil(t, inst)
	assert.Equal(t, "203.0.113.9", inst.NatIP)
	assert.Equal(t, "web-vm-prod@my-proj.iam.gserviceaccount.com", inst.ServiceAccountEmail)

	// Firewalls landed on the network the instance attached to.
	for _, name := range []string{"web-vm-prod-allow-login", "web-vm-prod-allow-egress"} {
		fw := cloud.firewalls[name]
		require.NotNil(t, fw, name)
		assert.Equal(t, "link/networks/default", fw.Network)
	}

	// The account-user grant targets the created account.
	assert.True(t, cloud.grants[grantKey(gcp.Grant{
		Role:     stack.RoleServiceAccountUser,
		Member:   "group:ops@example.com",
		Scope:    gcp.ScopeServiceAccount,
		Resource: "web-vm-prod@my-proj.iam.gserviceaccount.com",
	})])

	// Every converged node is recorded with a distinct sequence.
	require.Equal(t, 1, store.saves)
	assert.Len(t, store.state.Records, len(st.Nodes))
	seen := make(map[int]string)
	for id, rec := range store.state.Records {
		prev, dup := seen[rec.Sequence]
		assert.False(t, dup, "sequence %d shared by %s and %s", rec.Sequence, prev, id)
		seen[rec.Sequence] = id
	}
}

func TestApply_GrantsRolesToInstanceServiceAccount(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	cfg := fullConfig()
	cfg.Roles = []string{"roles/storage.objectViewer"}

	rep, err := eng.Apply(context.Background(), buildStack(cfg))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, rep.Status())

	member := "serviceAccount:web-vm-prod@my-proj.iam.gserviceaccount.com"
	wantRoles := append([]string{"roles/storage.objectViewer"}, derive.BaselineRoles...)
	for _, role := range wantRoles {
		assert.True(t, cloud.grants[grantKey(gcp.Grant{
			Role:     role,
			Member:   member,
			Scope:    gcp.ScopeProject,
			Resource: "my-proj",
		})], "account must hold %s after a successful run", role)
	}

	// Dropping the extra role orphans exactly that grant; the baseline
	// survives untouched.
	cloud.resetCalls()
	rep, err = eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())
	assert.Equal(t, []string{"remove-grant roles/storage.objectViewer " + member}, cloud.mutations())
	assert.Nil(t, store.state.Get(stack.RoleGrantID("roles/storage.objectViewer")))
	for _, role := range derive.BaselineRoles {
		assert.NotNil(t, store.state.Get(stack.RoleGrantID(role)), role)
	}
}

func TestApply_SecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	_, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	cloud.resetCalls()

	rep, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, rep.Status())
	for _, res := range rep.Results {
		assert.Equal(t, OutcomeUnchanged, res.Outcome, res.NodeID)
	}
	assert.Empty(t, cloud.mutations(), "converged stack must not touch the provider")
}

func TestApply_RespectsDependencyOrder(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	eng := newTestEngine(cloud.client(), &memStore{}, false)

	rep, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, rep.Status())

	instance := cloud.callIndex("create-instance")
	require.GreaterOrEqual(t, instance, 0)
	assert.Less(t, cloud.callIndex("create-address"), instance)
	assert.Less(t, cloud.callIndex("create-service-account"), instance)
	assert.Less(t, cloud.callIndex("enable-service compute.googleapis.com"), instance)
	assert.Greater(t, cloud.callIndex("create-firewall web-vm-prod-allow-login"), instance)
	assert.Greater(t, cloud.callIndex("create-firewall web-vm-prod-allow-egress"), instance)
	assert.Greater(t, cloud.callIndex("add-grant"), instance)
}

func TestApply_FirewallFailureIsIsolated(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	cloud.createFirewallErr = func(name string) error {
		if strings.HasSuffix(name, "-allow-egress") {
			return errors.New("compute.firewalls.insert permission denied")
		}
		return nil
	}
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	rep, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, rep.Status())

	egress := rep.Result(stack.FirewallID("web-vm-prod-allow-egress"))
	require.NotNil(t, egress)
	assert.Equal(t, OutcomeFailed, egress.Outcome)
	var provErr *ProviderError
	require.ErrorAs(t, egress.Err, &provErr)

	// Siblings and dependents of healthy nodes are untouched by the failure.
	login := rep.Result(stack.FirewallID("web-vm-prod-allow-login"))
	require.NotNil(t, login)
	assert.Equal(t, OutcomeCreated, login.Outcome)
	assert.Equal(t, 11, outcomesByKind(rep, OutcomeCreated)[stack.KindGrant])

	// The failed node has no record; everything converged does.
	assert.Nil(t, store.state.Get(stack.FirewallID("web-vm-prod-allow-egress")))
	assert.NotNil(t, store.state.Get(stack.FirewallID("web-vm-prod-allow-login")))

	// A later run with the permission fixed converges just the gap.
	cloud.createFirewallErr = nil
	cloud.resetCalls()
	rep, err = eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())
	assert.Equal(t, []string{"create-firewall web-vm-prod-allow-egress"}, cloud.mutations())
}

func TestApply_InstanceFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	cloud.createInstanceErr = errors.New("zone exhausted")
	eng := newTestEngine(cloud.client(), &memStore{}, false)

	rep, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, rep.Status())

	inst := rep.Result(stack.InstanceID("web-vm-prod"))
	require.NotNil(t, inst)
	assert.Equal(t, OutcomeFailed, inst.Outcome)

	skipped := outcomesByKind(rep, OutcomeSkipped)
	assert.Equal(t, 2, skipped[stack.KindFirewall])
	assert.Equal(t, 8, skipped[stack.KindGrant])

	// Role grants bind to the account, not the instance, so they converge.
	assert.Equal(t, 3, outcomesByKind(rep, OutcomeCreated)[stack.KindGrant])

	for _, res := range rep.Results {
		if res.Outcome != OutcomeSkipped {
			continue
		}
		var depErr *DependencyError
		require.ErrorAs(t, res.Err, &depErr, res.NodeID)
		assert.Contains(t, depErr.Unmet, stack.InstanceID("web-vm-prod"))
	}

	// The upstream branches still converged.
	created := outcomesByKind(rep, OutcomeCreated)
	assert.Equal(t, 4, created[stack.KindService])
	assert.Equal(t, 1, created[stack.KindAddress])
	assert.Equal(t, 1, created[stack.KindServiceAccount])
}

func TestApply_MachineTypeChangeNeedsStopPermission(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}

	_, err := newTestEngine(cloud.client(), store, false).Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)

	resized := fullConfig()
	resized.MachineType = "e2-standard-4"

	// Without permission the change is refused and nothing is touched.
	cloud.resetCalls()
	rep, err := newTestEngine(cloud.client(), store, false).Apply(context.Background(), buildStack(resized))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, rep.Status())

	inst := rep.Result(stack.InstanceID("web-vm-prod"))
	require.NotNil(t, inst)
	assert.Equal(t, OutcomeFailed, inst.Outcome)
	var conflict *ConflictError
	require.ErrorAs(t, inst.Err, &conflict)
	assert.Empty(t, cloud.mutations())
	assert.Equal(t, "e2-medium", cloud.instances["us-central1-a/web-vm-prod"].MachineType)

	// With permission the instance is stopped, resized, and restarted.
	cloud.resetCalls()
	rep, err = newTestEngine(cloud.client(), store, true).Apply(context.Background(), buildStack(resized))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())

	inst = rep.Result(stack.InstanceID("web-vm-prod"))
	require.NotNil(t, inst)
	assert.Equal(t, OutcomeUpdated, inst.Outcome)

	stop := cloud.callIndex("stop-instance")
	resize := cloud.callIndex("set-machine-type")
	start := cloud.callIndex("start-instance")
	require.GreaterOrEqual(t, stop, 0)
	assert.Less(t, stop, resize)
	assert.Less(t, resize, start)
	assert.Equal(t, "e2-standard-4", cloud.instances["us-central1-a/web-vm-prod"].MachineType)

	// The new shape is now the recorded one.
	cloud.resetCalls()
	rep, err = newTestEngine(cloud.client(), store, true).Apply(context.Background(), buildStack(resized))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())
	assert.Empty(t, cloud.mutations())
}

func TestApply_RemovesOrphanedRecordsFirst(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	_, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)

	// Login is revoked: its firewall and all grants leave the stack.
	trimmed := fullConfig()
	trimmed.AllowLogin = false
	trimmed.LoginUserGroups = nil
	trimmed.LoginServiceAccounts = nil

	cloud.resetCalls()
	rep, err := eng.Apply(context.Background(), buildStack(trimmed))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())

	destroyed := outcomesByKind(rep, OutcomeDestroyed)
	assert.Equal(t, 1, destroyed[stack.KindFirewall])
	assert.Equal(t, 8, destroyed[stack.KindGrant])

	assert.Nil(t, cloud.firewalls["web-vm-prod-allow-login"])
	assert.Nil(t, store.state.Get(stack.FirewallID("web-vm-prod-allow-login")))

	// Only the login bindings went; the account keeps its role grants.
	assert.Len(t, cloud.grants, len(derive.BaselineRoles))
	for _, role := range derive.BaselineRoles {
		assert.True(t, cloud.grants[grantKey(gcp.Grant{
			Role:     role,
			Member:   "serviceAccount:web-vm-prod@my-proj.iam.gserviceaccount.com",
			Scope:    gcp.ScopeProject,
			Resource: "my-proj",
		})], role)
	}

	// Instance update drops the oslogin metadata; remaining nodes converge.
	inst := rep.Result(stack.InstanceID("web-vm-prod"))
	require.NotNil(t, inst)
	assert.Equal(t, OutcomeUpdated, inst.Outcome)
}

func TestDestroy_TearsDownInReverseOrder(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	st := buildStack(fullConfig())
	_, err := eng.Apply(context.Background(), st)
	require.NoError(t, err)

	cloud.resetCalls()
	rep, err := eng.Destroy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())
	assert.Len(t, rep.Results, len(st.Nodes))
	for _, res := range rep.Results {
		assert.Equal(t, OutcomeDestroyed, res.Outcome, res.NodeID)
	}

	// Dependents go before what they depend on.
	instance := cloud.callIndex("delete-instance")
	require.GreaterOrEqual(t, instance, 0)
	assert.Greater(t, instance, cloud.callIndex("delete-firewall web-vm-prod-allow-login"))
	assert.Greater(t, instance, cloud.callIndex("delete-firewall web-vm-prod-allow-egress"))
	assert.Greater(t, instance, cloud.callIndex("remove-grant"))
	assert.Less(t, instance, cloud.callIndex("delete-address"))
	assert.Less(t, instance, cloud.callIndex("delete-service-account"))

	// Project services stay enabled, but their records are gone with the rest.
	assert.True(t, cloud.services["compute.googleapis.com"])
	assert.Empty(t, store.state.Records)
	assert.Empty(t, cloud.instances)
	assert.Empty(t, cloud.addresses)
	assert.Empty(t, cloud.firewalls)
	assert.Empty(t, cloud.grants)
}

func TestDestroy_FailedDeletionKeepsRecord(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	store := &memStore{}
	eng := newTestEngine(cloud.client(), store, false)

	_, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)

	mock := cloud.client()
	mock.DeleteInstanceFunc = func(context.Context, string, string) error {
		return errors.New("instance is in use")
	}
	eng = newTestEngine(mock, store, false)

	rep, err := eng.Destroy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, rep.Status())

	inst := rep.Result(stack.InstanceID("web-vm-prod"))
	require.NotNil(t, inst)
	assert.Equal(t, OutcomeFailed, inst.Outcome)

	// The failed record survives for a later retry; the rest are gone.
	assert.NotNil(t, store.state.Get(stack.InstanceID("web-vm-prod")))
	assert.Nil(t, store.state.Get(stack.FirewallID("web-vm-prod-allow-egress")))
}

func TestApply_RetriesRateLimitedCalls(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	var attempts int32
	mock := cloud.client()
	inner := mock.CreateInstanceFunc
	var mu sync.Mutex
	mock.CreateInstanceFunc = func(ctx context.Context, spec gcp.InstanceSpec) (*gcp.InstanceObserved, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("rateLimitExceeded: try again")
		}
		return inner(ctx, spec)
	}

	eng := newTestEngine(mock, &memStore{}, false)
	rep, err := eng.Apply(context.Background(), buildStack(fullConfig()))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status())
	assert.EqualValues(t, 2, attempts)
}
