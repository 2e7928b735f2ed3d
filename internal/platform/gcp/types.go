package gcp

// ServiceState describes a project API service and whether it is enabled.
type ServiceState struct {
	Name    string
	Enabled bool
}

// Address is the desired state of a regional external IP address.
type Address struct {
	Name   string            `json:"name"`
	Region string            `json:"region"`
	Labels map[string]string `json:"labels,omitempty"`
}

// AddressObserved is the provider-reported state of an address.
type AddressObserved struct {
	Name     string
	Address  string // assigned IP, provider-chosen
	SelfLink string
}

// ServiceAccountSpec is the desired state of an IAM service account.
type ServiceAccountSpec struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// ServiceAccountObserved is the provider-reported state of a service account.
type ServiceAccountObserved struct {
	Email    string
	UniqueID string
	Name     string // fully-qualified: projects/{p}/serviceAccounts/{email}
}

// BootDisk describes the instance boot disk. The instance owns it
// exclusively; it is created and destroyed with the instance.
type BootDisk struct {
	Image  string `json:"image"`
	SizeGB int64  `json:"size_gb"`
	Type   string `json:"type"`
}

// AccessConfig attaches an external IP to a network interface. A nil
// AccessConfig on the interface means no external connectivity at all;
// the provider treats an empty NatIP differently from an absent block,
// so omission must be expressed as nil, never as a zero value.
type AccessConfig struct {
	NatIP string `json:"nat_ip,omitempty"`
}

// NetworkInterface is the desired network attachment of an instance.
type NetworkInterface struct {
	Subnetwork   string        `json:"subnetwork"`
	AccessConfig *AccessConfig `json:"access_config,omitempty"`
}

// InstanceSpec is the desired state of a compute instance.
type InstanceSpec struct {
	Name                string            `json:"name"`
	Zone                string            `json:"zone"`
	MachineType         string            `json:"machine_type"`
	BootDisk            BootDisk          `json:"boot_disk"`
	NetworkInterface    NetworkInterface  `json:"network_interface"`
	Tags                []string          `json:"tags,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Labels              map[string]string `json:"labels,omitempty"`
	ServiceAccountEmail string            `json:"service_account_email,omitempty"`
	Scopes              []string          `json:"scopes,omitempty"`
}

// AttachedDisk is a non-boot disk attached to an instance. Attachment is
// managed outside this tool and is reported for information only.
type AttachedDisk struct {
	Source     string
	DeviceName string
}

// InstanceObserved is the provider-reported state of an instance.
type InstanceObserved struct {
	ID                  string
	Name                string
	Zone                string
	MachineType         string
	Status              string
	Tags                []string
	Metadata            map[string]string
	Labels              map[string]string
	ServiceAccountEmail string
	BootDisk            BootDisk
	AttachedDisks       []AttachedDisk
	Network             string // self link, populated after creation settles
	Subnetwork          string // self link, populated after creation settles
	NatIP               string
}

// FirewallRule is one allow entry of a firewall.
type FirewallRule struct {
	Protocol string   `json:"protocol"`
	Ports    []string `json:"ports,omitempty"`
}

// Direction of firewall traffic.
const (
	DirectionIngress = "INGRESS"
	DirectionEgress  = "EGRESS"
)

// FirewallSpec is the desired state of a VPC firewall rule.
type FirewallSpec struct {
	Name              string         `json:"name"`
	Network           string         `json:"network"` // self link, resolved from the instance
	Direction         string         `json:"direction"`
	SourceRanges      []string       `json:"source_ranges,omitempty"`
	DestinationRanges []string       `json:"destination_ranges,omitempty"`
	TargetTags        []string       `json:"target_tags,omitempty"`
	Allow             []FirewallRule `json:"allow"`
}

// FirewallObserved is the provider-reported state of a firewall rule.
type FirewallObserved struct {
	ID                string
	Name              string
	Network           string
	Direction         string
	SourceRanges      []string
	DestinationRanges []string
	TargetTags        []string
	Allow             []FirewallRule
}

// GrantScope identifies the resource level an IAM binding applies to.
type GrantScope string

const (
	ScopeInstance       GrantScope = "instance"
	ScopeProject        GrantScope = "project"
	ScopeServiceAccount GrantScope = "service-account"
)

// Grant is one IAM binding: a member granted a role on a scoped resource.
// Grants are created and removed whole, never mutated.
type Grant struct {
	Role     string     `json:"role"`
	Member   string     `json:"member"` // group:... or serviceAccount:...
	Scope    GrantScope `json:"scope"`
	Resource string     `json:"resource"` // instance name, project id, or SA email
	Zone     string     `json:"zone,omitempty"`
}
