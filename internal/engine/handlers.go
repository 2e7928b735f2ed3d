package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
	"github.com/r4rohan/gcevm/internal/util/naming"
	"github.com/r4rohan/gcevm/internal/util/retry"
)

// handlers converge and tear down individual nodes against the provider.
// One instance is shared by all workers of a run; it holds no per-node state.
type handlers struct {
	client    gcp.Client
	log       logr.Logger
	project   string
	allowStop bool

	// retryOpts tune the provider retry policy; tests shrink the delays.
	retryOpts []retry.Option
}

// call runs one provider operation with retry. Rate-limit and propagation
// errors are retried; anything else fails the node immediately.
func (h *handlers) call(ctx context.Context, nodeID, op string, fn func() error) error {
	opts := append([]retry.Option{retry.WithRetryIf(gcp.IsRetryable)}, h.retryOpts...)
	if err := retry.Do(ctx, fn, opts...); err != nil {
		return &ProviderError{NodeID: nodeID, Op: op, Err: err}
	}
	return nil
}

// ensure converges one node and reports how it got there. The returned diff
// is what drove an update, empty for create and unchanged.
func (h *handlers) ensure(ctx context.Context, n *stack.Node, rec *statestore.Record) (stack.Outputs, Outcome, []Change, error) {
	switch n.Kind {
	case stack.KindService:
		out, outcome, err := h.ensureService(ctx, n)
		return out, outcome, nil, err
	case stack.KindAddress:
		return h.ensureAddress(ctx, n, rec)
	case stack.KindServiceAccount:
		out, outcome, err := h.ensureServiceAccount(ctx, n)
		return out, outcome, nil, err
	case stack.KindInstance:
		return h.ensureInstance(ctx, n, rec)
	case stack.KindFirewall:
		return h.ensureFirewall(ctx, n, rec)
	case stack.KindGrant:
		return h.ensureGrant(ctx, n, rec)
	}
	return nil, OutcomeFailed, nil, fmt.Errorf("unknown resource kind %q", n.Kind)
}

func (h *handlers) ensureService(ctx context.Context, n *stack.Node) (stack.Outputs, Outcome, error) {
	var state *gcp.ServiceState
	err := h.call(ctx, n.ID, "get service", func() error {
		var err error
		state, err = h.client.GetService(ctx, n.Name)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if state != nil && state.Enabled {
		return nil, OutcomeUnchanged, nil
	}

	h.log.V(1).Info("enabling service", "service", n.Name)
	err = h.call(ctx, n.ID, "enable service", func() error {
		_, err := h.client.EnableService(ctx, n.Name)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	return nil, OutcomeCreated, nil
}

func (h *handlers) ensureAddress(ctx context.Context, n *stack.Node, rec *statestore.Record) (stack.Outputs, Outcome, []Change, error) {
	spec, ok := n.Desired.(*gcp.Address)
	if !ok {
		return nil, OutcomeFailed, nil, fmt.Errorf("node %s: unexpected payload %T", n.ID, n.Desired)
	}

	var obs *gcp.AddressObserved
	err := h.call(ctx, n.ID, "get address", func() error {
		var err error
		obs, err = h.client.GetAddress(ctx, spec.Name)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}

	create := func() (stack.Outputs, error) {
		err := h.call(ctx, n.ID, "create address", func() error {
			var err error
			obs, err = h.client.CreateAddress(ctx, *spec)
			return err
		})
		if err != nil {
			return nil, err
		}
		return addressOutputs(obs), nil
	}

	if obs == nil {
		out, err := create()
		if err != nil {
			return nil, OutcomeFailed, nil, err
		}
		return out, OutcomeCreated, nil, nil
	}

	if rec == nil {
		return addressOutputs(obs), OutcomeUnchanged, nil, nil
	}
	changes, err := diffDesired(n.Kind, rec.Desired, spec)
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}
	if len(changes) == 0 {
		return addressOutputs(obs), OutcomeUnchanged, nil, nil
	}

	// Addresses cannot be mutated; a changed spec means recreate, which
	// also means the assigned IP is not preserved.
	h.log.Info("recreating address", "address", spec.Name, "changes", len(changes))
	err = h.call(ctx, n.ID, "delete address", func() error {
		return h.client.DeleteAddress(ctx, spec.Name)
	})
	if err != nil {
		return nil, OutcomeFailed, changes, err
	}
	out, err := create()
	if err != nil {
		return nil, OutcomeFailed, changes, err
	}
	return out, OutcomeUpdated, changes, nil
}

func addressOutputs(obs *gcp.AddressObserved) stack.Outputs {
	return stack.Outputs{
		stack.OutAddress: obs.Address,
		stack.OutID:      obs.SelfLink,
	}
}

func (h *handlers) ensureServiceAccount(ctx context.Context, n *stack.Node) (stack.Outputs, Outcome, error) {
	spec, ok := n.Desired.(*gcp.ServiceAccountSpec)
	if !ok {
		return nil, OutcomeFailed, fmt.Errorf("node %s: unexpected payload %T", n.ID, n.Desired)
	}
	email := naming.ServiceAccountEmail(spec.AccountID, h.project)

	var obs *gcp.ServiceAccountObserved
	err := h.call(ctx, n.ID, "get service account", func() error {
		var err error
		obs, err = h.client.GetServiceAccount(ctx, email)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if obs != nil {
		return serviceAccountOutputs(obs), OutcomeUnchanged, nil
	}

	err = h.call(ctx, n.ID, "create service account", func() error {
		var err error
		obs, err = h.client.CreateServiceAccount(ctx, *spec)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	return serviceAccountOutputs(obs), OutcomeCreated, nil
}

func serviceAccountOutputs(obs *gcp.ServiceAccountObserved) stack.Outputs {
	return stack.Outputs{
		stack.OutEmail: obs.Email,
		stack.OutID:    obs.UniqueID,
	}
}

func (h *handlers) ensureInstance(ctx context.Context, n *stack.Node, rec *statestore.Record) (stack.Outputs, Outcome, []Change, error) {
	spec, ok := n.Desired.(*gcp.InstanceSpec)
	if !ok {
		return nil, OutcomeFailed, nil, fmt.Errorf("node %s: unexpected payload %T", n.ID, n.Desired)
	}

	var obs *gcp.InstanceObserved
	err := h.call(ctx, n.ID, "get instance", func() error {
		var err error
		obs, err = h.client.GetInstance(ctx, spec.Zone, spec.Name)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}

	if obs == nil {
		out, err := h.createInstance(ctx, n, spec)
		if err != nil {
			return nil, OutcomeFailed, nil, err
		}
		return out, OutcomeCreated, nil, nil
	}

	if rec == nil {
		// An instance with this name exists but was not created by us.
		// Adopt it as-is; the next run diffs against what we record now.
		h.log.Info("adopting existing instance", "instance", spec.Name)
		return instanceOutputs(obs), OutcomeUnchanged, nil, nil
	}

	changes, err := diffDesired(n.Kind, rec.Desired, spec)
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}
	if len(changes) == 0 {
		return instanceOutputs(obs), OutcomeUnchanged, nil, nil
	}

	if requiresReplace(n.Kind, changes) {
		h.log.Info("replacing instance", "instance", spec.Name, "changes", len(changes))
		err = h.call(ctx, n.ID, "delete instance", func() error {
			return h.client.DeleteInstance(ctx, obs.Zone, obs.Name)
		})
		if err != nil {
			return nil, OutcomeFailed, changes, err
		}
		out, err := h.createInstance(ctx, n, spec)
		if err != nil {
			return nil, OutcomeFailed, changes, err
		}
		return out, OutcomeUpdated, changes, nil
	}

	if requiresStop(n.Kind, changes) {
		if !h.allowStop {
			return nil, OutcomeFailed, changes, &ConflictError{
				NodeID: n.ID,
				Reason: fmt.Sprintf("machine type change %s -> %s requires stopping the instance; set allow_stopping_for_update to permit it", obs.MachineType, spec.MachineType),
			}
		}
		h.log.Info("resizing instance", "instance", spec.Name, "machineType", spec.MachineType)
		steps := []struct {
			op string
			fn func() error
		}{
			{"stop instance", func() error { return h.client.StopInstance(ctx, spec.Zone, spec.Name) }},
			{"set machine type", func() error { return h.client.SetMachineType(ctx, spec.Zone, spec.Name, spec.MachineType) }},
			{"start instance", func() error { return h.client.StartInstance(ctx, spec.Zone, spec.Name) }},
		}
		for _, s := range steps {
			if err := h.call(ctx, n.ID, s.op, s.fn); err != nil {
				return nil, OutcomeFailed, changes, err
			}
		}
	}

	// Mutable fields (tags, metadata, labels) converge in place.
	err = h.call(ctx, n.ID, "update instance", func() error {
		var err error
		obs, err = h.client.UpdateInstance(ctx, *spec)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, changes, err
	}
	return instanceOutputs(obs), OutcomeUpdated, changes, nil
}

// createInstance creates the instance and waits for the provider to report
// the network attachment. The network and subnetwork self links are empty
// for a short window after creation and dependents cannot proceed without
// them.
func (h *handlers) createInstance(ctx context.Context, n *stack.Node, spec *gcp.InstanceSpec) (stack.Outputs, error) {
	var obs *gcp.InstanceObserved
	err := h.call(ctx, n.ID, "create instance", func() error {
		var err error
		obs, err = h.client.CreateInstance(ctx, *spec)
		return err
	})
	if err != nil {
		return nil, err
	}

	if obs == nil || obs.Network == "" || obs.Subnetwork == "" {
		err = h.call(ctx, n.ID, "read instance after create", func() error {
			var err error
			obs, err = h.client.GetInstance(ctx, spec.Zone, spec.Name)
			if err != nil {
				return err
			}
			if obs == nil || obs.Network == "" || obs.Subnetwork == "" {
				return fmt.Errorf("instance %s network attachment is not ready", spec.Name)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return instanceOutputs(obs), nil
}

func instanceOutputs(obs *gcp.InstanceObserved) stack.Outputs {
	return stack.Outputs{
		stack.OutID:         obs.ID,
		stack.OutNetwork:    obs.Network,
		stack.OutSubnetwork: obs.Subnetwork,
		stack.OutNatIP:      obs.NatIP,
	}
}

func (h *handlers) ensureFirewall(ctx context.Context, n *stack.Node, rec *statestore.Record) (stack.Outputs, Outcome, []Change, error) {
	spec, ok := n.Desired.(*gcp.FirewallSpec)
	if !ok {
		return nil, OutcomeFailed, nil, fmt.Errorf("node %s: unexpected payload %T", n.ID, n.Desired)
	}

	var obs *gcp.FirewallObserved
	err := h.call(ctx, n.ID, "get firewall", func() error {
		var err error
		obs, err = h.client.GetFirewall(ctx, spec.Name)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}

	create := func() (stack.Outputs, error) {
		err := h.call(ctx, n.ID, "create firewall", func() error {
			var err error
			obs, err = h.client.CreateFirewall(ctx, *spec)
			return err
		})
		if err != nil {
			return nil, err
		}
		return stack.Outputs{stack.OutID: obs.ID}, nil
	}

	if obs == nil {
		out, err := create()
		if err != nil {
			return nil, OutcomeFailed, nil, err
		}
		return out, OutcomeCreated, nil, nil
	}

	if rec == nil {
		return stack.Outputs{stack.OutID: obs.ID}, OutcomeUnchanged, nil, nil
	}
	changes, err := diffDesired(n.Kind, rec.Desired, spec)
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}
	if len(changes) == 0 {
		return stack.Outputs{stack.OutID: obs.ID}, OutcomeUnchanged, nil, nil
	}

	if requiresReplace(n.Kind, changes) {
		h.log.Info("recreating firewall", "firewall", spec.Name, "changes", len(changes))
		err = h.call(ctx, n.ID, "delete firewall", func() error {
			return h.client.DeleteFirewall(ctx, spec.Name)
		})
		if err != nil {
			return nil, OutcomeFailed, changes, err
		}
		out, err := create()
		if err != nil {
			return nil, OutcomeFailed, changes, err
		}
		return out, OutcomeUpdated, changes, nil
	}

	err = h.call(ctx, n.ID, "update firewall", func() error {
		var err error
		obs, err = h.client.UpdateFirewall(ctx, *spec)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, changes, err
	}
	return stack.Outputs{stack.OutID: obs.ID}, OutcomeUpdated, changes, nil
}

func (h *handlers) ensureGrant(ctx context.Context, n *stack.Node, rec *statestore.Record) (stack.Outputs, Outcome, []Change, error) {
	grant, ok := n.Desired.(*gcp.Grant)
	if !ok {
		return nil, OutcomeFailed, nil, fmt.Errorf("node %s: unexpected payload %T", n.ID, n.Desired)
	}

	// A grant recorded with a different role, member, or resource is a
	// different binding; the old one is revoked before the new one is added.
	if rec != nil {
		changes, err := diffDesired(n.Kind, rec.Desired, grant)
		if err != nil {
			return nil, OutcomeFailed, nil, err
		}
		if len(changes) > 0 {
			var old gcp.Grant
			if err := json.Unmarshal(rec.Desired, &old); err != nil {
				return nil, OutcomeFailed, changes, fmt.Errorf("node %s: failed to parse recorded grant: %w", n.ID, err)
			}
			err = h.call(ctx, n.ID, "remove grant", func() error {
				return h.client.RemoveGrant(ctx, old)
			})
			if err != nil {
				return nil, OutcomeFailed, changes, err
			}
			err = h.call(ctx, n.ID, "add grant", func() error {
				return h.client.AddGrant(ctx, *grant)
			})
			if err != nil {
				return nil, OutcomeFailed, changes, err
			}
			return nil, OutcomeUpdated, changes, nil
		}
	}

	var present bool
	err := h.call(ctx, n.ID, "check grant", func() error {
		var err error
		present, err = h.client.HasGrant(ctx, *grant)
		return err
	})
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}
	if present {
		return nil, OutcomeUnchanged, nil, nil
	}

	err = h.call(ctx, n.ID, "add grant", func() error {
		return h.client.AddGrant(ctx, *grant)
	})
	if err != nil {
		return nil, OutcomeFailed, nil, err
	}
	return nil, OutcomeCreated, nil, nil
}

// destroy removes the resource a record describes. Absent resources are
// treated as already destroyed.
func (h *handlers) destroy(ctx context.Context, rec *statestore.Record) error {
	switch stack.Kind(rec.Kind) {
	case stack.KindService:
		// Project services are left enabled: other workloads in the project
		// may depend on them, and disabling is disruptive out of proportion
		// to the cleanup value.
		h.log.V(1).Info("leaving service enabled", "node", rec.NodeID)
		return nil

	case stack.KindAddress:
		var spec gcp.Address
		if err := json.Unmarshal(rec.Desired, &spec); err != nil {
			return fmt.Errorf("node %s: failed to parse recorded address: %w", rec.NodeID, err)
		}
		var obs *gcp.AddressObserved
		err := h.call(ctx, rec.NodeID, "get address", func() error {
			var err error
			obs, err = h.client.GetAddress(ctx, spec.Name)
			return err
		})
		if err != nil {
			return err
		}
		if obs == nil {
			return nil
		}
		return h.call(ctx, rec.NodeID, "delete address", func() error {
			return h.client.DeleteAddress(ctx, spec.Name)
		})

	case stack.KindServiceAccount:
		var spec gcp.ServiceAccountSpec
		if err := json.Unmarshal(rec.Desired, &spec); err != nil {
			return fmt.Errorf("node %s: failed to parse recorded service account: %w", rec.NodeID, err)
		}
		email := naming.ServiceAccountEmail(spec.AccountID, h.project)
		var obs *gcp.ServiceAccountObserved
		err := h.call(ctx, rec.NodeID, "get service account", func() error {
			var err error
			obs, err = h.client.GetServiceAccount(ctx, email)
			return err
		})
		if err != nil {
			return err
		}
		if obs == nil {
			return nil
		}
		return h.call(ctx, rec.NodeID, "delete service account", func() error {
			return h.client.DeleteServiceAccount(ctx, email)
		})

	case stack.KindInstance:
		var spec gcp.InstanceSpec
		if err := json.Unmarshal(rec.Desired, &spec); err != nil {
			return fmt.Errorf("node %s: failed to parse recorded instance: %w", rec.NodeID, err)
		}
		var obs *gcp.InstanceObserved
		err := h.call(ctx, rec.NodeID, "get instance", func() error {
			var err error
			obs, err = h.client.GetInstance(ctx, spec.Zone, spec.Name)
			return err
		})
		if err != nil {
			return err
		}
		if obs == nil {
			return nil
		}
		return h.call(ctx, rec.NodeID, "delete instance", func() error {
			return h.client.DeleteInstance(ctx, spec.Zone, spec.Name)
		})

	case stack.KindFirewall:
		var spec gcp.FirewallSpec
		if err := json.Unmarshal(rec.Desired, &spec); err != nil {
			return fmt.Errorf("node %s: failed to parse recorded firewall: %w", rec.NodeID, err)
		}
		var obs *gcp.FirewallObserved
		err := h.call(ctx, rec.NodeID, "get firewall", func() error {
			var err error
			obs, err = h.client.GetFirewall(ctx, spec.Name)
			return err
		})
		if err != nil {
			return err
		}
		if obs == nil {
			return nil
		}
		return h.call(ctx, rec.NodeID, "delete firewall", func() error {
			return h.client.DeleteFirewall(ctx, spec.Name)
		})

	case stack.KindGrant:
		var grant gcp.Grant
		if err := json.Unmarshal(rec.Desired, &grant); err != nil {
			return fmt.Errorf("node %s: failed to parse recorded grant: %w", rec.NodeID, err)
		}
		var present bool
		err := h.call(ctx, rec.NodeID, "check grant", func() error {
			var err error
			present, err = h.client.HasGrant(ctx, grant)
			return err
		})
		if err != nil {
			return err
		}
		if !present {
			return nil
		}
		return h.call(ctx, rec.NodeID, "remove grant", func() error {
			return h.client.RemoveGrant(ctx, grant)
		})
	}
	return fmt.Errorf("node %s: unknown recorded kind %q", rec.NodeID, rec.Kind)
}
