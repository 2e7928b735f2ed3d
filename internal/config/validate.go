package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError reports a structurally invalid input combination. It is
// always detected before any provider call; a reconciliation that fails
// validation never starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidZoneSuffixes are the zone letters Google Cloud uses across regions.
var ValidZoneSuffixes = map[string]bool{
	"a": true,
	"b": true,
	"c": true,
	"d": true,
	"f": true,
}

// Validate checks the configuration for structural errors.
func (c *Stack) Validate() error {
	if c.Name == "" {
		return invalid("name", "is required")
	}
	if c.NameSuffix == "" {
		return invalid("name_suffix", "is required")
	}
	if c.Subnetwork == "" {
		return invalid("subnetwork", "is required")
	}
	if !ValidZoneSuffixes[c.ZoneSuffix] {
		return invalid("zone_suffix", "%q is not a valid zone letter", c.ZoneSuffix)
	}
	if c.Disk.SizeGB < 10 {
		return invalid("disk.size_gb", "must be at least 10, got %d", c.Disk.SizeGB)
	}

	// Requesting a new address and supplying a literal one at the same time
	// is ambiguous; the caller must pick one.
	if c.CreateExternalIP && c.SourceExternalIP != "" {
		return invalid("source_external_ip", "cannot be combined with create_external_ip")
	}
	if c.SourceExternalIP != "" && net.ParseIP(c.SourceExternalIP) == nil {
		return invalid("source_external_ip", "%q is not a valid IP address", c.SourceExternalIP)
	}

	if c.ServiceAccountEmail != "" && !strings.Contains(c.ServiceAccountEmail, "@") {
		return invalid("service_account_email", "%q is not an email address", c.ServiceAccountEmail)
	}

	for _, g := range c.LoginUserGroups {
		if !strings.Contains(g, "@") {
			return invalid("login_user_groups", "%q is not an email address", g)
		}
	}
	for _, sa := range c.LoginServiceAccounts {
		if !strings.Contains(sa, "@") {
			return invalid("login_service_accounts", "%q is not an email address", sa)
		}
	}

	for _, role := range c.Roles {
		if !strings.HasPrefix(role, "roles/") && !strings.HasPrefix(role, "projects/") &&
			!strings.HasPrefix(role, "organizations/") {
			return invalid("roles", "%q is not a role name", role)
		}
	}

	return nil
}
