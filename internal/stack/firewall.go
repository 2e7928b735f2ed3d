package stack

import "github.com/r4rohan/gcevm/internal/platform/gcp"

// IAPRange is the fixed CIDR Google's Identity-Aware Proxy tunnels originate
// from. Login traffic is only ever admitted from this range.
const IAPRange = "35.235.240.0/20"

// Login ports: SSH and RDP.
var loginPorts = []string{"22", "3389"}

// loginFirewallSpec admits IAP-tunneled SSH/RDP to instances carrying the
// stack's tags. The network self link is resolved from the instance after it
// exists.
func loginFirewallSpec(name string, targetTags []string) *gcp.FirewallSpec {
	return &gcp.FirewallSpec{
		Name:         name,
		Direction:    gcp.DirectionIngress,
		SourceRanges: []string{IAPRange},
		TargetTags:   targetTags,
		Allow: []gcp.FirewallRule{
			{Protocol: "tcp", Ports: loginPorts},
		},
	}
}

// egressFirewallSpec permits all outbound ICMP, TCP, and UDP from the
// stack's instances.
func egressFirewallSpec(name string, targetTags []string) *gcp.FirewallSpec {
	return &gcp.FirewallSpec{
		Name:              name,
		Direction:         gcp.DirectionEgress,
		DestinationRanges: []string{"0.0.0.0/0"},
		TargetTags:        targetTags,
		Allow: []gcp.FirewallRule{
			{Protocol: "icmp"},
			{Protocol: "tcp"},
			{Protocol: "udp"},
		},
	}
}
