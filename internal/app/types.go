package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

const defaultExportWorkers = 4

// Config carries the orchestrator's own settings. Service clients get
// their configuration at construction; nothing here is ambient.
type Config struct {
	// ExportRoot is the filesystem root the exporter endpoints
	// materialize under.
	ExportRoot string
	// OperatorUser owns exported trees while metadata work runs.
	OperatorUser string
	// ServiceUser is the artifact repository service's system identity;
	// every exported tree is handed back to it.
	ServiceUser string
	// Workers bounds concurrently in-flight exports, reconciliation
	// pairs, and hardening paths.
	Workers int
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return defaultExportWorkers
	}
	return c.Workers
}

// Service drives the export, reconciliation, verification, and signing
// pipeline. All collaborators are injected capability objects.
type Service struct {
	Store     ports.StorePort
	Artifacts ports.ArtifactRepoPort
	Signer    ports.SignServicePort
	Metadata  ports.RepoMetadataPort
	Inspector ports.PackageInspectorPort
	Ownership ports.OwnershipPort
	ErrorLog  ports.ErrorLogPort
	// Subkeys maps authorized owner key ids to delegated subkey ids.
	Subkeys map[string][]string
	// SnippetCleaner overrides the default partial-metadata cleanup;
	// nil selects the filesystem implementation.
	SnippetCleaner func(repoPath string) error
	Config         Config
}

// ExportRequest selects what to export. Exactly one of PlatformNames,
// RepositoryIDs, or ReleaseID must be set. Arches optionally narrows
// which repositories are exported; reconciliation still spans all
// architectures of the selection.
type ExportRequest struct {
	PlatformNames []string
	RepositoryIDs []int64
	Arches        []string
	ReleaseID     int64
	// Noarch selects the reconciliation mode; empty skips
	// reconciliation entirely.
	Noarch types.ReconcileMode
}

// CheckNoarchRequest runs the standalone noarch consistency check over a
// distribution's repositories.
type CheckNoarchRequest struct {
	Distribution string
	Mode         types.ReconcileMode
}

// platformScope is one resolved (platform, repositories) export batch.
// ExportRepos is the arch-filtered subset to materialize; AllRepos keeps
// every architecture for reconciliation pairing.
type platformScope struct {
	Platform    types.Platform
	ExportRepos []types.Repository
	AllRepos    []types.Repository
}

// provisionedExport ties a repository to its filesystem exporter.
type provisionedExport struct {
	Repo types.Repository
	Desc types.ExportDescriptor
}

// reportCollector accumulates per-unit outcomes under a mutex so
// concurrent pipeline units never race on the aggregate report.
type reportCollector struct {
	mu     sync.Mutex
	report types.ExportReport
}

func (c *reportCollector) addPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.ExportedPaths = append(c.report.ExportedPaths, path)
}

func (c *reportCollector) fail(unit string, operation string, err error) {
	log.Error().
		Str("unit", unit).
		Str("operation", operation).
		Err(err).
		Msg("pipeline unit failed")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Failures = append(c.report.Failures, types.UnitFailure{
		Unit:      unit,
		Operation: operation,
		Err:       err,
	})
}

func (c *reportCollector) addViolations(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Violations += count
}

func (c *reportCollector) result() types.ExportReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}
