package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	computeBase      = "https://compute.googleapis.com/compute/v1"
	iamBase          = "https://iam.googleapis.com/v1"
	serviceUsageBase = "https://serviceusage.googleapis.com/v1"
	crmBase          = "https://cloudresourcemanager.googleapis.com/v1"

	operationPollInterval = 2 * time.Second
)

// errNotFound marks a 404 from the API; callers translate it to (nil, nil).
var errNotFound = errors.New("resource not found")

// RealClient talks to the Google Cloud REST APIs. Authentication is a plain
// OAuth2 bearer token supplied by the caller; the client does not refresh it.
// Long-running operations are polled until done, so every mutating method
// returns only once the provider reports the change applied.
type RealClient struct {
	httpClient *http.Client
	project    string
	region     string
	token      string

	// API base URLs; tests point these at a local server.
	computeURL      string
	iamURL          string
	serviceUsageURL string
	crmURL          string
}

// NewRealClient creates a client bound to one project and region.
func NewRealClient(project, region, token string) *RealClient {
	return &RealClient{
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		project:         project,
		region:          region,
		token:           token,
		computeURL:      computeBase,
		iamURL:          iamBase,
		serviceUsageURL: serviceUsageBase,
		crmURL:          crmBase,
	}
}

var _ Client = (*RealClient)(nil)

// do performs one JSON request. A 404 response returns errNotFound; other
// non-2xx responses become errors carrying the status code and body so the
// retry classifier can see rate-limit markers.
func (c *RealClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// computeOperation is the subset of a compute operation we poll on.
type computeOperation struct {
	SelfLink string `json:"selfLink"`
	Status   string `json:"status"`
	Error    *struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// waitCompute polls a compute operation until DONE.
func (c *RealClient) waitCompute(ctx context.Context, op *computeOperation) error {
	for {
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				e := op.Error.Errors[0]
				return fmt.Errorf("operation failed: %s: %s", e.Code, e.Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollInterval):
		}
		var next computeOperation
		if err := c.do(ctx, http.MethodGet, op.SelfLink, nil, &next); err != nil {
			return err
		}
		op = &next
	}
}

func (c *RealClient) computeMutate(ctx context.Context, method, url string, body any) error {
	var op computeOperation
	if err := c.do(ctx, method, url, body, &op); err != nil {
		return err
	}
	return c.waitCompute(ctx, &op)
}

func (c *RealClient) projectURL(parts ...string) string {
	return c.computeURL + "/projects/" + c.project + "/" + strings.Join(parts, "/")
}

// --- Services ---

type serviceResource struct {
	State string `json:"state"`
}

func (c *RealClient) GetService(ctx context.Context, name string) (*ServiceState, error) {
	url := fmt.Sprintf("%s/projects/%s/services/%s", c.serviceUsageURL, c.project, name)
	var svc serviceResource
	if err := c.do(ctx, http.MethodGet, url, nil, &svc); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ServiceState{Name: name, Enabled: svc.State == "ENABLED"}, nil
}

func (c *RealClient) EnableService(ctx context.Context, name string) (*ServiceState, error) {
	url := fmt.Sprintf("%s/projects/%s/services/%s:enable", c.serviceUsageURL, c.project, name)
	var op struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
		Err  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, url, struct{}{}, &op); err != nil {
		return nil, err
	}
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(operationPollInterval):
		}
		if err := c.do(ctx, http.MethodGet, c.serviceUsageURL+"/"+op.Name, nil, &op); err != nil {
			return nil, err
		}
	}
	if op.Err != nil {
		return nil, fmt.Errorf("failed to enable %s: %s", name, op.Err.Message)
	}
	return &ServiceState{Name: name, Enabled: true}, nil
}

// --- Addresses ---

type addressResource struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	SelfLink string `json:"selfLink"`
}

func (c *RealClient) GetAddress(ctx context.Context, name string) (*AddressObserved, error) {
	var addr addressResource
	err := c.do(ctx, http.MethodGet, c.projectURL("regions", c.region, "addresses", name), nil, &addr)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &AddressObserved{Name: addr.Name, Address: addr.Address, SelfLink: addr.SelfLink}, nil
}

func (c *RealClient) CreateAddress(ctx context.Context, spec Address) (*AddressObserved, error) {
	body := map[string]any{
		"name":        spec.Name,
		"addressType": "EXTERNAL",
	}
	if err := c.computeMutate(ctx, http.MethodPost, c.projectURL("regions", c.region, "addresses"), body); err != nil {
		return nil, err
	}
	return c.GetAddress(ctx, spec.Name)
}

func (c *RealClient) DeleteAddress(ctx context.Context, name string) error {
	err := c.computeMutate(ctx, http.MethodDelete, c.projectURL("regions", c.region, "addresses", name), nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// --- Service accounts ---

type serviceAccountResource struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	UniqueID string `json:"uniqueId"`
}

func (c *RealClient) serviceAccountURL(email string) string {
	return fmt.Sprintf("%s/projects/%s/serviceAccounts/%s", c.iamURL, c.project, email)
}

func (c *RealClient) GetServiceAccount(ctx context.Context, email string) (*ServiceAccountObserved, error) {
	var sa serviceAccountResource
	if err := c.do(ctx, http.MethodGet, c.serviceAccountURL(email), nil, &sa); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ServiceAccountObserved{Email: sa.Email, UniqueID: sa.UniqueID, Name: sa.Name}, nil
}

func (c *RealClient) CreateServiceAccount(ctx context.Context, spec ServiceAccountSpec) (*ServiceAccountObserved, error) {
	url := fmt.Sprintf("%s/projects/%s/serviceAccounts", c.iamURL, c.project)
	body := map[string]any{
		"accountId": spec.AccountID,
		"serviceAccount": map[string]any{
			"displayName": spec.DisplayName,
		},
	}
	var sa serviceAccountResource
	if err := c.do(ctx, http.MethodPost, url, body, &sa); err != nil {
		return nil, err
	}
	return &ServiceAccountObserved{Email: sa.Email, UniqueID: sa.UniqueID, Name: sa.Name}, nil
}

func (c *RealClient) DeleteServiceAccount(ctx context.Context, email string) error {
	err := c.do(ctx, http.MethodDelete, c.serviceAccountURL(email), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// --- Instances ---

type metadataResource struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	Items       []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"items"`
}

type instanceResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MachineType string `json:"machineType"`
	Status      string `json:"status"`
	Tags        struct {
		Items       []string `json:"items"`
		Fingerprint string   `json:"fingerprint"`
	} `json:"tags"`
	Metadata          metadataResource  `json:"metadata"`
	Labels            map[string]string `json:"labels"`
	LabelFingerprint  string            `json:"labelFingerprint"`
	NetworkInterfaces []struct {
		Network       string `json:"network"`
		Subnetwork    string `json:"subnetwork"`
		AccessConfigs []struct {
			NatIP string `json:"natIP"`
		} `json:"accessConfigs"`
	} `json:"networkInterfaces"`
	Disks []struct {
		Boot       bool   `json:"boot"`
		Source     string `json:"source"`
		DeviceName string `json:"deviceName"`
	} `json:"disks"`
	ServiceAccounts []struct {
		Email string `json:"email"`
	} `json:"serviceAccounts"`
}

func lastSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

func (c *RealClient) GetInstance(ctx context.Context, zone, name string) (*InstanceObserved, error) {
	var inst instanceResource
	err := c.do(ctx, http.MethodGet, c.projectURL("zones", zone, "instances", name), nil, &inst)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	obs := &InstanceObserved{
		ID:          inst.ID,
		Name:        inst.Name,
		Zone:        zone,
		MachineType: lastSegment(inst.MachineType),
		Status:      inst.Status,
		Tags:        inst.Tags.Items,
		Labels:      inst.Labels,
		Metadata:    make(map[string]string, len(inst.Metadata.Items)),
	}
	for _, item := range inst.Metadata.Items {
		obs.Metadata[item.Key] = item.Value
	}
	if len(inst.ServiceAccounts) > 0 {
		obs.ServiceAccountEmail = inst.ServiceAccounts[0].Email
	}
	if len(inst.NetworkInterfaces) > 0 {
		ni := inst.NetworkInterfaces[0]
		obs.Network = ni.Network
		obs.Subnetwork = ni.Subnetwork
		if len(ni.AccessConfigs) > 0 {
			obs.NatIP = ni.AccessConfigs[0].NatIP
		}
	}
	for _, d := range inst.Disks {
		if !d.Boot {
			obs.AttachedDisks = append(obs.AttachedDisks, AttachedDisk{Source: d.Source, DeviceName: d.DeviceName})
		}
	}
	return obs, nil
}

// imageURL expands the short "project/family" image form into a full source
// image URL. Anything already path-qualified passes through.
func imageURL(image string) string {
	if strings.Contains(image, "/global/") || strings.HasPrefix(image, "https://") {
		return image
	}
	parts := strings.SplitN(image, "/", 2)
	if len(parts) != 2 {
		return image
	}
	return fmt.Sprintf("projects/%s/global/images/family/%s", parts[0], parts[1])
}

func metadataItems(md map[string]string) []map[string]string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	items := make([]map[string]string, 0, len(md))
	for _, k := range keys {
		items = append(items, map[string]string{"key": k, "value": md[k]})
	}
	return items
}

func (c *RealClient) CreateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error) {
	iface := map[string]any{
		"subnetwork": spec.NetworkInterface.Subnetwork,
	}
	if ac := spec.NetworkInterface.AccessConfig; ac != nil {
		cfg := map[string]any{"type": "ONE_TO_ONE_NAT"}
		if ac.NatIP != "" {
			cfg["natIP"] = ac.NatIP
		}
		iface["accessConfigs"] = []any{cfg}
	}

	body := map[string]any{
		"name":        spec.Name,
		"machineType": fmt.Sprintf("zones/%s/machineTypes/%s", spec.Zone, spec.MachineType),
		"disks": []any{
			map[string]any{
				"boot":       true,
				"autoDelete": true,
				"initializeParams": map[string]any{
					"sourceImage": imageURL(spec.BootDisk.Image),
					"diskSizeGb":  spec.BootDisk.SizeGB,
					"diskType":    fmt.Sprintf("zones/%s/diskTypes/%s", spec.Zone, spec.BootDisk.Type),
				},
			},
		},
		"networkInterfaces": []any{iface},
		"tags":              map[string]any{"items": spec.Tags},
		"metadata":          map[string]any{"items": metadataItems(spec.Metadata)},
	}
	if len(spec.Labels) > 0 {
		body["labels"] = spec.Labels
	}
	if spec.ServiceAccountEmail != "" {
		body["serviceAccounts"] = []any{
			map[string]any{"email": spec.ServiceAccountEmail, "scopes": spec.Scopes},
		}
	}

	if err := c.computeMutate(ctx, http.MethodPost, c.projectURL("zones", spec.Zone, "instances"), body); err != nil {
		return nil, err
	}
	return c.GetInstance(ctx, spec.Zone, spec.Name)
}

// UpdateInstance converges the mutable field set: tags, metadata, labels.
// Each has its own sub-resource endpoint guarded by a fingerprint read just
// before the write.
func (c *RealClient) UpdateInstance(ctx context.Context, spec InstanceSpec) (*InstanceObserved, error) {
	var inst instanceResource
	if err := c.do(ctx, http.MethodGet, c.projectURL("zones", spec.Zone, "instances", spec.Name), nil, &inst); err != nil {
		return nil, err
	}

	base := c.projectURL("zones", spec.Zone, "instances", spec.Name)
	steps := []struct {
		url  string
		body map[string]any
	}{
		{base + "/setTags", map[string]any{"items": spec.Tags, "fingerprint": inst.Tags.Fingerprint}},
		{base + "/setMetadata", map[string]any{"items": metadataItems(spec.Metadata), "fingerprint": inst.Metadata.Fingerprint}},
		{base + "/setLabels", map[string]any{"labels": spec.Labels, "labelFingerprint": inst.LabelFingerprint}},
	}
	for _, s := range steps {
		if err := c.computeMutate(ctx, http.MethodPost, s.url, s.body); err != nil {
			return nil, err
		}
	}
	return c.GetInstance(ctx, spec.Zone, spec.Name)
}

func (c *RealClient) SetMachineType(ctx context.Context, zone, name, machineType string) error {
	url := c.projectURL("zones", zone, "instances", name) + "/setMachineType"
	body := map[string]any{
		"machineType": fmt.Sprintf("zones/%s/machineTypes/%s", zone, machineType),
	}
	return c.computeMutate(ctx, http.MethodPost, url, body)
}

func (c *RealClient) StopInstance(ctx context.Context, zone, name string) error {
	return c.computeMutate(ctx, http.MethodPost, c.projectURL("zones", zone, "instances", name)+"/stop", struct{}{})
}

func (c *RealClient) StartInstance(ctx context.Context, zone, name string) error {
	return c.computeMutate(ctx, http.MethodPost, c.projectURL("zones", zone, "instances", name)+"/start", struct{}{})
}

func (c *RealClient) DeleteInstance(ctx context.Context, zone, name string) error {
	err := c.computeMutate(ctx, http.MethodDelete, c.projectURL("zones", zone, "instances", name), nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// --- Firewalls ---

type firewallResource struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Network           string   `json:"network"`
	Direction         string   `json:"direction"`
	SourceRanges      []string `json:"sourceRanges"`
	DestinationRanges []string `json:"destinationRanges"`
	TargetTags        []string `json:"targetTags"`
	Allowed           []struct {
		IPProtocol string   `json:"IPProtocol"`
		Ports      []string `json:"ports"`
	} `json:"allowed"`
}

func (c *RealClient) GetFirewall(ctx context.Context, name string) (*FirewallObserved, error) {
	var fw firewallResource
	err := c.do(ctx, http.MethodGet, c.projectURL("global", "firewalls", name), nil, &fw)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	obs := &FirewallObserved{
		ID:                fw.ID,
		Name:              fw.Name,
		Network:           fw.Network,
		Direction:         fw.Direction,
		SourceRanges:      fw.SourceRanges,
		DestinationRanges: fw.DestinationRanges,
		TargetTags:        fw.TargetTags,
	}
	for _, a := range fw.Allowed {
		obs.Allow = append(obs.Allow, FirewallRule{Protocol: a.IPProtocol, Ports: a.Ports})
	}
	return obs, nil
}

func firewallBody(spec FirewallSpec) map[string]any {
	allowed := make([]any, 0, len(spec.Allow))
	for _, rule := range spec.Allow {
		entry := map[string]any{"IPProtocol": rule.Protocol}
		if len(rule.Ports) > 0 {
			entry["ports"] = rule.Ports
		}
		allowed = append(allowed, entry)
	}
	body := map[string]any{
		"name":      spec.Name,
		"network":   spec.Network,
		"direction": spec.Direction,
		"allowed":   allowed,
	}
	if len(spec.SourceRanges) > 0 {
		body["sourceRanges"] = spec.SourceRanges
	}
	if len(spec.DestinationRanges) > 0 {
		body["destinationRanges"] = spec.DestinationRanges
	}
	if len(spec.TargetTags) > 0 {
		body["targetTags"] = spec.TargetTags
	}
	return body
}

func (c *RealClient) CreateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error) {
	if err := c.computeMutate(ctx, http.MethodPost, c.projectURL("global", "firewalls"), firewallBody(spec)); err != nil {
		return nil, err
	}
	return c.GetFirewall(ctx, spec.Name)
}

func (c *RealClient) UpdateFirewall(ctx context.Context, spec FirewallSpec) (*FirewallObserved, error) {
	url := c.projectURL("global", "firewalls", spec.Name)
	if err := c.computeMutate(ctx, http.MethodPatch, url, firewallBody(spec)); err != nil {
		return nil, err
	}
	return c.GetFirewall(ctx, spec.Name)
}

func (c *RealClient) DeleteFirewall(ctx context.Context, name string) error {
	err := c.computeMutate(ctx, http.MethodDelete, c.projectURL("global", "firewalls", name), nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// --- IAM grants ---

type iamPolicy struct {
	Bindings []*iamBinding `json:"bindings"`
	Etag     string        `json:"etag,omitempty"`
}

type iamBinding struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

// policyEndpoints returns the get/set IAM policy URLs for a grant's scope.
func (c *RealClient) policyEndpoints(grant Grant) (getURL, setURL string, err error) {
	switch grant.Scope {
	case ScopeInstance:
		base := c.projectURL("zones", grant.Zone, "instances", grant.Resource)
		return base + "/getIamPolicy", base + "/setIamPolicy", nil
	case ScopeProject:
		base := fmt.Sprintf("%s/projects/%s", c.crmURL, grant.Resource)
		return base + ":getIamPolicy", base + ":setIamPolicy", nil
	case ScopeServiceAccount:
		base := c.serviceAccountURL(grant.Resource)
		return base + ":getIamPolicy", base + ":setIamPolicy", nil
	}
	return "", "", fmt.Errorf("unknown grant scope %q", grant.Scope)
}

func (c *RealClient) getPolicy(ctx context.Context, grant Grant) (*iamPolicy, error) {
	getURL, _, err := c.policyEndpoints(grant)
	if err != nil {
		return nil, err
	}
	var policy iamPolicy
	if err := c.do(ctx, http.MethodPost, getURL, struct{}{}, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (c *RealClient) setPolicy(ctx context.Context, grant Grant, policy *iamPolicy) error {
	_, setURL, err := c.policyEndpoints(grant)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, setURL, map[string]any{"policy": policy}, nil)
}

func (c *RealClient) HasGrant(ctx context.Context, grant Grant) (bool, error) {
	policy, err := c.getPolicy(ctx, grant)
	if err != nil {
		return false, err
	}
	for _, b := range policy.Bindings {
		if b.Role == grant.Role && slices.Contains(b.Members, grant.Member) {
			return true, nil
		}
	}
	return false, nil
}

func (c *RealClient) AddGrant(ctx context.Context, grant Grant) error {
	policy, err := c.getPolicy(ctx, grant)
	if err != nil {
		return err
	}
	for _, b := range policy.Bindings {
		if b.Role != grant.Role {
			continue
		}
		if slices.Contains(b.Members, grant.Member) {
			return nil
		}
		b.Members = append(b.Members, grant.Member)
		return c.setPolicy(ctx, grant, policy)
	}
	policy.Bindings = append(policy.Bindings, &iamBinding{Role: grant.Role, Members: []string{grant.Member}})
	return c.setPolicy(ctx, grant, policy)
}

func (c *RealClient) RemoveGrant(ctx context.Context, grant Grant) error {
	policy, err := c.getPolicy(ctx, grant)
	if err != nil {
		return err
	}
	changed := false
	kept := policy.Bindings[:0]
	for _, b := range policy.Bindings {
		if b.Role == grant.Role && slices.Contains(b.Members, grant.Member) {
			b.Members = slices.DeleteFunc(slices.Clone(b.Members), func(m string) bool { return m == grant.Member })
			changed = true
		}
		if len(b.Members) > 0 {
			kept = append(kept, b)
		}
	}
	if !changed {
		return nil
	}
	policy.Bindings = kept
	return c.setPolicy(ctx, grant, policy)
}
