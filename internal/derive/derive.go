// Package derive computes the fully-resolved configuration of a stack from
// the raw user input and the ambient session. All functions are pure: no
// I/O, no dependence on provider state, total over validated input.
package derive

import (
	"slices"

	"github.com/r4rohan/gcevm/internal/config"
	"github.com/r4rohan/gcevm/internal/util/naming"
)

// BaselineRoles are always granted to the instance service account so the
// instance can emit logs, metrics, and resource metadata. Not negotiable.
var BaselineRoles = []string{
	"roles/logging.logWriter",
	"roles/monitoring.metricWriter",
	"roles/stackdriver.resourceMetadata.writer",
}

// Derived is the resolved configuration for one reconciliation run. It is
// recomputed from the input on every run and carries no persisted identity.
type Derived struct {
	InstanceName   string
	Zone           string
	ExternalIPName string

	// Tags is the sorted, deduplicated union of the configured network tags
	// and the name suffix. Sorted so set equality is plain slice equality.
	Tags []string

	// Roles is the sorted, deduplicated union of BaselineRoles and the
	// user-supplied roles.
	Roles []string

	// CreateServiceAccount is true iff no existing email was supplied. When
	// true, ServiceAccountID is the account id the created SA will use and
	// the concrete email is known only after the creation node runs.
	CreateServiceAccount bool
	ServiceAccountID     string
	ServiceAccountEmail  string // empty when CreateServiceAccount
}

// Compute derives the resolved configuration.
func Compute(cfg *config.Stack, session *config.Session) Derived {
	instance := naming.Instance(cfg.Name, cfg.NameSuffix)

	d := Derived{
		InstanceName:   instance,
		Zone:           naming.Zone(session.Region, cfg.ZoneSuffix),
		ExternalIPName: naming.ExternalIP(cfg.ExternalIPName, cfg.Name, cfg.NameSuffix),
		Tags:           dedupe(append(slices.Clone(cfg.NetworkTags), cfg.NameSuffix)),
		Roles:          dedupe(append(slices.Clone(BaselineRoles), cfg.Roles...)),
	}

	if cfg.ServiceAccountEmail == "" {
		d.CreateServiceAccount = true
		d.ServiceAccountID = instance
	} else {
		d.ServiceAccountEmail = cfg.ServiceAccountEmail
	}

	return d
}

// ExternalIPMode is the three-way resolution of the instance external IP.
type ExternalIPMode int

const (
	// IPNone: no access config at all. The block is omitted from the
	// instance payload entirely; omission and a null address mean different
	// things to the provider.
	IPNone ExternalIPMode = iota
	// IPCreated: address comes from the external-IP node's result.
	IPCreated
	// IPLiteral: the supplied literal address is used verbatim.
	IPLiteral
)

// ResolveExternalIP returns how the instance external IP is sourced.
// Creation takes precedence; the literal is only consulted when creation is
// disabled.
func ResolveExternalIP(cfg *config.Stack) ExternalIPMode {
	switch {
	case cfg.CreateExternalIP:
		return IPCreated
	case cfg.SourceExternalIP != "":
		return IPLiteral
	default:
		return IPNone
	}
}

// Principals returns the deduplicated, sorted login principal sets.
func Principals(cfg *config.Stack) (groups, serviceAccounts []string) {
	return dedupe(cfg.LoginUserGroups), dedupe(cfg.LoginServiceAccounts)
}

func dedupe(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
