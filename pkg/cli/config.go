package cli

import (
	"context"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/assemble"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/cony/pkg/usecase/pending"
	"github.com/m-mizutani/cony/pkg/usecase/resolve"
	"github.com/m-mizutani/cony/pkg/usecase/route"
	"github.com/m-mizutani/cony/pkg/usecase/session"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/cony/pkg/workflow"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Adapters
	geminiProject  string
	geminiLocation string
	projectConfig  string
	bucket         string
	storageDir     string
	policyDir      string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (empty uses in-memory storage)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini (empty disables NLU extraction)",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "project-system",
			Usage:       "Path to external project system YAML config (empty for local-only mode)",
			Sources:     cli.EnvVars("CONY_PROJECT_SYSTEM"),
			Destination: &cfg.projectConfig,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for archived payloads",
			Sources:     cli.EnvVars("CONY_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "storage-dir",
			Usage:       "Local directory for archived payloads (used when no bucket is set)",
			Sources:     cli.EnvVars("CONY_STORAGE_DIR"),
			Destination: &cfg.storageDir,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory of Rego policy files",
			Sources:     cli.EnvVars("CONY_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// newRepository creates a repository: Firestore when a project is
// configured, in-memory otherwise.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		logging.From(ctx).Debug("no project configured, using in-memory repository")
		return repository.NewMemory(), nil
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newExtractor creates the NLU extractor, or nil when not configured.
func (cfg *config) newExtractor(ctx context.Context) (adapter.Extractor, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}
	return adapter.NewGeminiExtractor(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newProjectSystem connects to the external project system, or returns
// nil for local-only mode.
func (cfg *config) newProjectSystem(ctx context.Context) (adapter.ProjectSystem, error) {
	mcpCfg, err := adapter.LoadProjectSystemConfig(cfg.projectConfig)
	if err != nil {
		return nil, err
	}
	if mcpCfg == nil {
		return nil, nil
	}
	return adapter.NewMCPProjectSystem(ctx, mcpCfg)
}

// newStorage creates payload storage: bucket first, local directory as
// fallback, nil when neither is configured.
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket != "" {
		return adapter.NewStorage(ctx, cfg.bucket)
	}
	if cfg.storageDir != "" {
		return adapter.NewDirStorage(cfg.storageDir)
	}
	return nil, nil
}

// newOrchestrator wires the full query pipeline from configuration.
func (cfg *config) newOrchestrator(ctx context.Context) (*assemble.Orchestrator, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	extractor, err := cfg.newExtractor(ctx)
	if err != nil {
		return nil, err
	}

	projects, err := cfg.newProjectSystem(ctx)
	if err != nil {
		return nil, err
	}

	store, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}

	policy, err := workflow.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, err
	}

	graphs := graph.NewBuilder(repo)
	sessions := session.NewStore(repo)
	pendings := pending.NewManager(repo)
	resolver := resolve.New(graphs)

	routeOpts := []route.RouterOption{}
	if projects != nil {
		routeOpts = append(routeOpts, route.WithProjectSystem(projects))
	}
	if store != nil {
		routeOpts = append(routeOpts, route.WithStorage(store))
	}
	if policy != nil {
		routeOpts = append(routeOpts, route.WithPolicy(policy))
	}
	router := route.New(repo, graphs, routeOpts...)

	assembleOpts := []assemble.Option{}
	if extractor != nil {
		assembleOpts = append(assembleOpts, assemble.WithExtractor(extractor))
	}
	if policy != nil {
		assembleOpts = append(assembleOpts, assemble.WithPolicy(policy))
	}

	return assemble.New(repo, sessions, pendings, resolver, router, assembleOpts...), nil
}
