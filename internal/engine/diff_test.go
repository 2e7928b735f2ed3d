package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/stack"
)

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func baseInstanceSpec() *gcp.InstanceSpec {
	return &gcp.InstanceSpec{
		Name:        "web-vm-prod",
		Zone:        "us-central1-a",
		MachineType: "e2-medium",
		BootDisk:    gcp.BootDisk{Image: "debian-cloud/debian-12", SizeGB: 20, Type: "pd-balanced"},
		NetworkInterface: gcp.NetworkInterface{
			Subnetwork: "subnets/default",
		},
		Tags:     []string{"prod"},
		Metadata: map[string]string{stack.PlaceholderMetadataKey: ""},
	}
}

func TestDiffDesired_EqualSpecsProduceNoChanges(t *testing.T) {
	t.Parallel()

	recorded := marshal(t, baseInstanceSpec())
	changes, err := diffDesired(stack.KindInstance, recorded, baseInstanceSpec())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffDesired_ReportsNestedFieldPaths(t *testing.T) {
	t.Parallel()

	recorded := marshal(t, baseInstanceSpec())
	desired := baseInstanceSpec()
	desired.BootDisk.SizeGB = 50
	desired.Tags = []string{"prod", "web"}

	changes, err := diffDesired(stack.KindInstance, recorded, desired)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Field: "boot_disk.size_gb", Old: "20", New: "50"}, changes[0])
	assert.Equal(t, Change{Field: "tags.1", Old: "(absent)", New: "web"}, changes[1])
}

func TestDiffDesired_PlaceholderMetadataIsIgnored(t *testing.T) {
	t.Parallel()

	recorded := baseInstanceSpec()
	recorded.Metadata[stack.PlaceholderMetadataKey] = "guest-rewrote-this"

	changes, err := diffDesired(stack.KindInstance, marshal(t, recorded), baseInstanceSpec())
	require.NoError(t, err)
	assert.Empty(t, changes)

	// The same key on a non-instance kind is not special.
	changes, err = diffDesired(stack.KindFirewall, marshal(t, recorded), baseInstanceSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
}

func TestDiffDesired_AccessConfigPresenceIsAChange(t *testing.T) {
	t.Parallel()

	withIP := baseInstanceSpec()
	withIP.NetworkInterface.AccessConfig = &gcp.AccessConfig{NatIP: "203.0.113.9"}

	changes, err := diffDesired(stack.KindInstance, marshal(t, baseInstanceSpec()), withIP)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "network_interface.access_config.nat_ip", changes[0].Field)
	assert.Equal(t, "(absent)", changes[0].Old)
}

func TestRequiresReplace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    stack.Kind
		changes []Change
		want    bool
	}{
		{"instance zone", stack.KindInstance, []Change{{Field: "zone"}}, true},
		{"instance boot disk field", stack.KindInstance, []Change{{Field: "boot_disk.image"}}, true},
		{"instance subnetwork", stack.KindInstance, []Change{{Field: "network_interface.subnetwork"}}, true},
		{"instance tags", stack.KindInstance, []Change{{Field: "tags.0"}}, false},
		{"instance machine type", stack.KindInstance, []Change{{Field: "machine_type"}}, false},
		{"firewall direction", stack.KindFirewall, []Change{{Field: "direction"}}, true},
		{"firewall ports", stack.KindFirewall, []Change{{Field: "allow.0.ports.0"}}, false},
		{"grant role", stack.KindGrant, []Change{{Field: "role"}}, true},
		{"address region", stack.KindAddress, []Change{{Field: "region"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, requiresReplace(tt.kind, tt.changes))
		})
	}
}

func TestRequiresStop(t *testing.T) {
	t.Parallel()

	assert.True(t, requiresStop(stack.KindInstance, []Change{{Field: "machine_type"}}))
	assert.False(t, requiresStop(stack.KindInstance, []Change{{Field: "tags.0"}}))
	assert.False(t, requiresStop(stack.KindFirewall, []Change{{Field: "machine_type"}}))
}
