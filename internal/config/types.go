package config

// Disk describes the instance boot disk.
type Disk struct {
	Image  string `yaml:"image"`
	SizeGB int64  `yaml:"size_gb"`
	Type   string `yaml:"type"`
}

// Stack is the user-supplied configuration for one VM stack. It is immutable
// for the duration of a reconciliation run.
type Stack struct {
	// Name is the base name; all resource names derive from it.
	Name string `yaml:"name"`
	// NameSuffix distinguishes parallel deployments of the same stack
	// (for example "prod", "staging"). Also added as a network tag.
	NameSuffix string `yaml:"name_suffix"`

	MachineType string `yaml:"machine_type"`
	ZoneSuffix  string `yaml:"zone_suffix"`
	Disk        Disk   `yaml:"disk"`
	Subnetwork  string `yaml:"subnetwork"`

	// CreateExternalIP allocates a new regional address for the instance.
	// Mutually exclusive with SourceExternalIP.
	CreateExternalIP bool `yaml:"create_external_ip"`
	// SourceExternalIP attaches a pre-existing literal address. Only honored
	// when CreateExternalIP is false.
	SourceExternalIP string `yaml:"source_external_ip"`
	// ExternalIPName overrides the name of the created address resource.
	ExternalIPName string `yaml:"external_ip_name"`

	// ServiceAccountEmail attaches an existing service account. When empty,
	// a new service account is created and owned by the stack.
	ServiceAccountEmail string `yaml:"service_account_email"`
	// Roles are granted to the instance service account in addition to the
	// fixed telemetry baseline.
	Roles []string `yaml:"roles"`

	NetworkTags []string          `yaml:"network_tags"`
	Labels      map[string]string `yaml:"labels"`

	// AllowLogin provisions the IAP login firewall rule and OS Login
	// metadata, and expands login principals into IAM grants.
	AllowLogin bool `yaml:"allow_login"`
	// AllowStoppingForUpdate permits updates that require stopping the
	// instance (machine type changes) to proceed automatically.
	AllowStoppingForUpdate bool `yaml:"allow_stopping_for_update"`

	LoginUserGroups      []string `yaml:"login_user_groups"`
	LoginServiceAccounts []string `yaml:"login_service_accounts"`
}
