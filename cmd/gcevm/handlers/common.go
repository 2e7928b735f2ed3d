// Package handlers implements the business logic for CLI commands.
//
// Handler functions are called by the command definitions in the commands
// package. They are framework-agnostic; collaborators are held in factory
// variables so tests can inject fakes.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r4rohan/gcevm/internal/config"
	"github.com/r4rohan/gcevm/internal/derive"
	"github.com/r4rohan/gcevm/internal/engine"
	"github.com/r4rohan/gcevm/internal/logging"
	"github.com/r4rohan/gcevm/internal/metrics"
	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
	"github.com/r4rohan/gcevm/internal/ui"
)

// DefaultConfigFile is used when no --config flag is given.
const DefaultConfigFile = "gcevm.yaml"

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadStackFile loads the stack configuration from a YAML file.
	loadStackFile = config.LoadFile

	// sessionFromEnv reads the ambient cloud session from the environment.
	sessionFromEnv = config.SessionFromEnv

	// newProviderClient creates the provider client. The OAuth token comes
	// from the environment, the way gcloud-adjacent tooling expects it.
	newProviderClient = func(s *config.Session) gcp.Client {
		return gcp.NewRealClient(s.Project, s.Region, os.Getenv("GOOGLE_OAUTH_ACCESS_TOKEN"))
	}

	// newStateStore selects remote or local state from the session.
	newStateStore = func(ctx context.Context, s *config.Session) (statestore.Store, error) {
		if s.StateBucket != "" {
			return statestore.NewS3Store(ctx, statestore.S3Options{
				Bucket:    s.StateBucket,
				Key:       s.StateKey,
				Endpoint:  s.StateEndpoint,
				Region:    s.StateRegion,
				AccessKey: s.StateAccess,
				SecretKey: s.StateSecret,
			})
		}
		return statestore.NewFileStore(s.StateFile), nil
	}

	// newEngine builds the reconciliation engine.
	newEngine = engine.New

	// newLogger builds the process logger.
	newLogger = logging.New

	// confirmStop asks whether a stop-requiring update may proceed.
	confirmStop = ui.ConfirmStop

	// confirmDestroy asks before tearing a stack down.
	confirmDestroy = ui.ConfirmDestroy

	// output receives rendered plans and reports.
	output io.Writer = os.Stdout
)

var (
	metricsOnce sync.Once
	runMetrics  *metrics.Metrics
)

// processMetrics registers the run collectors once per process.
func processMetrics() *metrics.Metrics {
	metricsOnce.Do(func() {
		runMetrics = metrics.New(prometheus.DefaultRegisterer)
	})
	return runMetrics
}

// runtime bundles everything a command execution needs.
type runtime struct {
	cfg     *config.Stack
	session *config.Session
	derived derive.Derived
	stack   *stack.Stack
	store   statestore.Store
	client  gcp.Client
}

// setup loads configuration, derives the stack, and wires the provider and
// state store. configPath may be empty, in which case the default file is
// used.
func setup(ctx context.Context, configPath string) (*runtime, error) {
	if configPath == "" {
		configPath = DefaultConfigFile
	}

	cfg, err := loadStackFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	session, err := sessionFromEnv()
	if err != nil {
		return nil, err
	}

	store, err := newStateStore(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	d := derive.Compute(cfg, session)
	return &runtime{
		cfg:     cfg,
		session: session,
		derived: d,
		stack:   stack.Build(cfg, d, session),
		store:   store,
		client:  newProviderClient(session),
	}, nil
}

// engineFor builds an engine over the runtime with the resolved stop
// permission.
func (rt *runtime) engineFor(verbosity int, allowStop bool) *engine.Engine {
	return newEngine(rt.client, rt.store, newLogger(verbosity), processMetrics(), engine.Options{
		Project:                rt.session.Project,
		AllowStoppingForUpdate: allowStop,
	})
}
