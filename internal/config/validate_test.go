package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStack() *Stack {
	return &Stack{
		Name:        "web",
		NameSuffix:  "prod",
		MachineType: DefaultMachineType,
		ZoneSuffix:  "a",
		Subnetwork:  "sub",
		Disk:        Disk{Image: DefaultDiskImage, SizeGB: 20, Type: DefaultDiskType},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validStack().Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Stack)
		field  string
	}{
		{"missing name", func(s *Stack) { s.Name = "" }, "name"},
		{"missing suffix", func(s *Stack) { s.NameSuffix = "" }, "name_suffix"},
		{"missing subnetwork", func(s *Stack) { s.Subnetwork = "" }, "subnetwork"},
		{"bad zone suffix", func(s *Stack) { s.ZoneSuffix = "x" }, "zone_suffix"},
		{"disk too small", func(s *Stack) { s.Disk.SizeGB = 5 }, "disk.size_gb"},
		{"conflicting IP settings", func(s *Stack) {
			s.CreateExternalIP = true
			s.SourceExternalIP = "203.0.113.7"
		}, "source_external_ip"},
		{"literal IP not an IP", func(s *Stack) { s.SourceExternalIP = "not-an-ip" }, "source_external_ip"},
		{"bad SA email", func(s *Stack) { s.ServiceAccountEmail = "nope" }, "service_account_email"},
		{"bad group", func(s *Stack) { s.LoginUserGroups = []string{"nope"} }, "login_user_groups"},
		{"bad login SA", func(s *Stack) { s.LoginServiceAccounts = []string{"nope"} }, "login_service_accounts"},
		{"bad role", func(s *Stack) { s.Roles = []string{"viewer"} }, "roles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validStack()
			tt.mutate(s)

			err := s.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_LiteralIPWithoutCreateIsAllowed(t *testing.T) {
	t.Parallel()

	s := validStack()
	s.SourceExternalIP = "203.0.113.7"
	assert.NoError(t, s.Validate())
}

func TestSessionFromEnv(t *testing.T) {
	t.Setenv("GCEVM_PROJECT", "my-proj")
	t.Setenv("GCEVM_REGION", "us-central1")

	s, err := SessionFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "my-proj", s.Project)
	assert.Equal(t, "us-central1", s.Region)
	assert.Equal(t, "gcevm-state.json", s.StateFile)
}

func TestSessionFromEnv_MissingProject(t *testing.T) {
	t.Setenv("GCEVM_PROJECT", "")
	t.Setenv("GCEVM_REGION", "us-central1")

	_, err := SessionFromEnv()
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
