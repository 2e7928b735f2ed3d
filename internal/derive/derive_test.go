package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r4rohan/gcevm/internal/config"
)

func session() *config.Session {
	return &config.Session{Project: "my-proj", Region: "us-central1"}
}

func stack() *config.Stack {
	return &config.Stack{
		Name:       "web",
		NameSuffix: "prod",
		ZoneSuffix: "a",
		Subnetwork: "sub",
	}
}

func TestCompute_Names(t *testing.T) {
	t.Parallel()

	d := Compute(stack(), session())
	assert.Equal(t, "web-vm-prod", d.InstanceName)
	assert.Equal(t, "us-central1-a", d.Zone)
	assert.Equal(t, "web-prod", d.ExternalIPName)
}

func TestCompute_ExternalIPNameOverride(t *testing.T) {
	t.Parallel()

	s := stack()
	s.ExternalIPName = "shared-frontend-ip"
	d := Compute(s, session())
	assert.Equal(t, "shared-frontend-ip", d.ExternalIPName)
}

func TestCompute_TagsAreDedupedAndOrderIndependent(t *testing.T) {
	t.Parallel()

	a := stack()
	a.NetworkTags = []string{"ssh", "prod", "web"}
	b := stack()
	b.NetworkTags = []string{"web", "ssh", "prod", "ssh"}

	da := Compute(a, session())
	db := Compute(b, session())

	assert.Equal(t, da.Tags, db.Tags)
	assert.Equal(t, []string{"prod", "ssh", "web"}, da.Tags)
}

func TestCompute_BaselineRolesAlwaysPresent(t *testing.T) {
	t.Parallel()

	// Empty user roles.
	d := Compute(stack(), session())
	for _, role := range BaselineRoles {
		assert.Contains(t, d.Roles, role)
	}

	// User roles already containing a baseline role must not duplicate it.
	s := stack()
	s.Roles = []string{"roles/logging.logWriter", "roles/storage.objectViewer"}
	d = Compute(s, session())

	seen := map[string]int{}
	for _, role := range d.Roles {
		seen[role]++
	}
	for role, n := range seen {
		assert.Equal(t, 1, n, "role %s duplicated", role)
	}
	assert.Contains(t, d.Roles, "roles/storage.objectViewer")
}

func TestCompute_ServiceAccount(t *testing.T) {
	t.Parallel()

	d := Compute(stack(), session())
	assert.True(t, d.CreateServiceAccount)
	assert.Equal(t, "web-vm-prod", d.ServiceAccountID)
	assert.Empty(t, d.ServiceAccountEmail)

	s := stack()
	s.ServiceAccountEmail = "existing@my-proj.iam.gserviceaccount.com"
	d = Compute(s, session())
	assert.False(t, d.CreateServiceAccount)
	assert.Equal(t, "existing@my-proj.iam.gserviceaccount.com", d.ServiceAccountEmail)
}

func TestResolveExternalIP_Precedence(t *testing.T) {
	t.Parallel()

	s := stack()
	assert.Equal(t, IPNone, ResolveExternalIP(s))

	s.SourceExternalIP = "203.0.113.7"
	assert.Equal(t, IPLiteral, ResolveExternalIP(s))

	// Creation wins; the literal is never consulted regardless of content.
	s.CreateExternalIP = true
	assert.Equal(t, IPCreated, ResolveExternalIP(s))
}

func TestPrincipals_Deduped(t *testing.T) {
	t.Parallel()

	s := stack()
	s.LoginUserGroups = []string{"ops@example.com", "dev@example.com", "ops@example.com"}
	s.LoginServiceAccounts = []string{"ci@p.iam.gserviceaccount.com", "ci@p.iam.gserviceaccount.com"}

	groups, sas := Principals(s)
	assert.Equal(t, []string{"dev@example.com", "ops@example.com"}, groups)
	assert.Equal(t, []string{"ci@p.iam.gserviceaccount.com"}, sas)
}
