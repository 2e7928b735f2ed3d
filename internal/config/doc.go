// Package config defines the user-facing stack configuration, its YAML
// loading and validation, and the ambient session (project, region, state
// location) read from the environment.
package config
