package naming

import "fmt"

func Instance(name, suffix string) string {
	return fmt.Sprintf("%s-vm-%s", name, suffix)
}

func Zone(region, zoneSuffix string) string {
	return fmt.Sprintf("%s-%s", region, zoneSuffix)
}

// ExternalIP returns the address resource name. An explicit override wins;
// otherwise the name falls back to the base stack name with the suffix
// appended.
func ExternalIP(override, name, suffix string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf("%s-%s", name, suffix)
}

func LoginFirewall(instance string) string {
	return fmt.Sprintf("%s-allow-login", instance)
}

func EgressFirewall(instance string) string {
	return fmt.Sprintf("%s-allow-egress", instance)
}

// ServiceAccountEmail builds the email a created service account will have.
func ServiceAccountEmail(accountID, project string) string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, project)
}
