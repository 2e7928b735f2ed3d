package stack

import (
	"fmt"
	"slices"

	"github.com/r4rohan/gcevm/internal/config"
	"github.com/r4rohan/gcevm/internal/derive"
	"github.com/r4rohan/gcevm/internal/platform/gcp"
)

// Roles granted to each login principal. All four are required for an
// end-to-end working login: OS Login on the instance, project visibility,
// IAP tunnel access, and impersonation of the instance service account.
const (
	RoleOSLogin            = "roles/compute.osLogin"
	RoleViewer             = "roles/viewer"
	RoleIAPTunnelAccessor  = "roles/iap.tunnelResourceAccessor"
	RoleServiceAccountUser = "roles/iam.serviceAccountUser"
)

// Member prefixes per principal type.
const (
	MemberGroup          = "group"
	MemberServiceAccount = "serviceAccount"
)

// buildRoleGrants binds the resolved role set to the instance service
// account at project scope, one node per role. A role added or removed from
// the set therefore surfaces as an individual grant creation or orphan
// deletion, never as a silent rewrite of the whole binding list.
func buildRoleGrants(d derive.Derived, session *config.Session) []*Node {
	deps := []string{ServiceID(ServiceIAM)}
	if d.CreateServiceAccount {
		deps = append(deps, ServiceAccountID(d.InstanceName))
	}

	nodes := make([]*Node, 0, len(d.Roles))
	for _, role := range d.Roles {
		grant := &gcp.Grant{
			Role:     role,
			Member:   fmt.Sprintf("%s:%s", MemberServiceAccount, d.ServiceAccountEmail),
			Scope:    gcp.ScopeProject,
			Resource: session.Project,
		}
		n := &Node{
			ID:        RoleGrantID(role),
			Kind:      KindGrant,
			Name:      fmt.Sprintf("%s instance service account", role),
			DependsOn: slices.Clone(deps),
			Desired:   grant,
		}
		if d.CreateServiceAccount {
			saNode := ServiceAccountID(d.InstanceName)
			n.Resolve = func(deps map[string]Outputs) error {
				out, ok := deps[saNode]
				if !ok || out[OutEmail] == "" {
					return fmt.Errorf("service account email not available for role grant %s", grant.Role)
				}
				grant.Member = fmt.Sprintf("%s:%s", MemberServiceAccount, out[OutEmail])
				return nil
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// grantBundle is the fixed set of grants one principal needs. saEmail may be
// empty when the service account is created by this run; the sa-user grant's
// resource is then resolved from the creation node's outputs.
type grantBundle struct {
	member   string
	instance string
	zone     string
	project  string
	saEmail  string
}

// expand emits exactly four grant nodes for the principal. The nodes are
// siblings of each other; each carries the full prerequisite list so a
// partially applied bundle is visible per grant in the report.
func (b grantBundle) expand(baseDeps []string, saCreated bool) []*Node {
	grants := []struct {
		shorthand string
		extraDeps []string
		grant     gcp.Grant
	}{
		{"oslogin", []string{ServiceID(ServiceOSLogin)}, gcp.Grant{
			Role:     RoleOSLogin,
			Member:   b.member,
			Scope:    gcp.ScopeInstance,
			Resource: b.instance,
			Zone:     b.zone,
		}},
		{"viewer", nil, gcp.Grant{
			Role:     RoleViewer,
			Member:   b.member,
			Scope:    gcp.ScopeProject,
			Resource: b.project,
		}},
		{"tunnel", []string{ServiceID(ServiceIAP)}, gcp.Grant{
			Role:     RoleIAPTunnelAccessor,
			Member:   b.member,
			Scope:    gcp.ScopeProject,
			Resource: b.project,
		}},
		{"sa-user", nil, gcp.Grant{
			Role:     RoleServiceAccountUser,
			Member:   b.member,
			Scope:    gcp.ScopeServiceAccount,
			Resource: b.saEmail,
		}},
	}

	nodes := make([]*Node, 0, len(grants))
	for _, g := range grants {
		desired := g.grant
		deps := make([]string, 0, len(baseDeps)+len(g.extraDeps))
		deps = append(deps, baseDeps...)
		deps = append(deps, g.extraDeps...)
		n := &Node{
			ID:        GrantID(b.member, g.shorthand),
			Kind:      KindGrant,
			Name:      fmt.Sprintf("%s %s", g.grant.Role, b.member),
			DependsOn: deps,
			Desired:   &desired,
		}
		if g.grant.Scope == gcp.ScopeServiceAccount && saCreated {
			grant := n.Desired.(*gcp.Grant)
			saNode := ServiceAccountID(b.instance)
			n.Resolve = func(deps map[string]Outputs) error {
				out, ok := deps[saNode]
				if !ok || out[OutEmail] == "" {
					return fmt.Errorf("service account email not available for grant %s", grant.Role)
				}
				grant.Resource = out[OutEmail]
				return nil
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}
