package app

import (
	"context"
	"path/filepath"
	"sync"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pkg-exporter/internal/core"
	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

// Export runs the full pipeline over the requested scope. Per-repository
// and per-path failures are collected into the returned report; only
// resolution and provisioning-cleanup errors abort the run, and those
// happen before any repository is touched.
func (s *Service) Export(ctx context.Context, req ExportRequest) (types.ExportReport, error) {
	assert.NotEmpty(ctx, s.Config.ExportRoot, "export root must be configured")
	assert.NotEmpty(ctx, s.Config.OperatorUser, "operator user must be configured")
	assert.NotEmpty(ctx, s.Config.ServiceUser, "service user must be configured")

	if err := validateScope(req); err != nil {
		return types.ExportReport{}, err
	}
	scopes, err := s.resolveScope(ctx, req)
	if err != nil {
		return types.ExportReport{}, err
	}
	if err := s.cleanupExporters(ctx); err != nil {
		return types.ExportReport{}, err
	}

	collector := &reportCollector{}
	for _, scope := range scopes {
		s.exportPlatform(ctx, scope, req.Noarch, collector)
	}
	return collector.result(), nil
}

// validateScope enforces that exactly one selection mode is active.
func validateScope(req ExportRequest) error {
	active := 0
	if len(req.PlatformNames) > 0 {
		active++
	}
	if len(req.RepositoryIDs) > 0 {
		active++
	}
	if req.ReleaseID != 0 {
		active++
	}
	if active != 1 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("exactly one of platform names, repository ids, or release id must be given")
	}
	return nil
}

func (s *Service) resolveScope(ctx context.Context, req ExportRequest) ([]platformScope, error) {
	if req.ReleaseID != 0 {
		return s.resolveReleaseScope(ctx, req)
	}
	return s.resolvePlatformScope(ctx, req)
}

func (s *Service) resolvePlatformScope(ctx context.Context, req ExportRequest) ([]platformScope, error) {
	if len(req.PlatformNames) > 0 {
		log.Ctx(ctx).Info().
			Strs("platforms", req.PlatformNames).
			Msg("start exporting packages for platforms")
	} else {
		log.Ctx(ctx).Info().
			Ints64("repositories", req.RepositoryIDs).
			Msg("start exporting packages for repositories")
	}
	platforms, err := s.Store.Platforms(ctx, req.PlatformNames)
	if err != nil {
		return nil, err
	}
	idSet := map[int64]struct{}{}
	for _, id := range req.RepositoryIDs {
		idSet[id] = struct{}{}
	}
	var scopes []platformScope
	for _, platform := range platforms {
		scope := platformScope{Platform: platform}
		for _, repo := range platform.Repositories {
			if !repo.Production {
				continue
			}
			if len(idSet) > 0 {
				if _, ok := idSet[repo.ID]; !ok {
					continue
				}
			}
			scope.AllRepos = append(scope.AllRepos, repo)
			if archSelected(req.Arches, repo.Arch) {
				scope.ExportRepos = append(scope.ExportRepos, repo)
			}
		}
		if len(scope.AllRepos) > 0 {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("selection matched no exportable repositories")
	}
	return scopes, nil
}

func (s *Service) resolveReleaseScope(ctx context.Context, req ExportRequest) ([]platformScope, error) {
	log.Ctx(ctx).Info().
		Int64("release_id", req.ReleaseID).
		Msg("start exporting packages from release")
	release, err := s.Store.Release(ctx, req.ReleaseID)
	if err != nil {
		return nil, err
	}
	repoIDs := release.Plan.RepositoryIDs()
	if len(repoIDs) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("release plan references no repositories")
	}
	repos, err := s.Store.Repositories(ctx, repoIDs)
	if err != nil {
		return nil, err
	}
	keys, err := s.Store.SignKeys(ctx)
	if err != nil {
		return nil, err
	}
	scope := platformScope{
		Platform: types.Platform{ID: release.PlatformID},
	}
	for _, key := range keys {
		if key.PlatformID == release.PlatformID {
			scope.Platform.SignKeys = append(scope.Platform.SignKeys, key)
		}
	}
	for _, repo := range repos {
		if !repo.Production {
			continue
		}
		scope.AllRepos = append(scope.AllRepos, repo)
		if archSelected(req.Arches, repo.Arch) {
			scope.ExportRepos = append(scope.ExportRepos, repo)
		}
	}
	if len(scope.AllRepos) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("release touches no exportable repositories")
	}
	return []platformScope{scope}, nil
}

func archSelected(arches []string, arch types.Arch) bool {
	if len(arches) == 0 {
		return true
	}
	for _, candidate := range arches {
		if types.Arch(candidate) == arch {
			return true
		}
	}
	return false
}

// cleanupExporters deletes every filesystem exporter registered with the
// service. Stale endpoints from a prior failed run must not accumulate;
// the deletion is idempotent with respect to repeated runs.
func (s *Service) cleanupExporters(ctx context.Context) error {
	exporters, err := s.Artifacts.ListFilesystemExporters(ctx)
	if err != nil {
		return err
	}
	var deleted []string
	for _, exporter := range exporters {
		if err := s.Artifacts.DeleteFilesystemExporter(ctx, exporter.Href); err != nil {
			return err
		}
		deleted = append(deleted, exporter.Name)
	}
	if len(deleted) > 0 {
		log.Ctx(ctx).Info().
			Strs("exporters", deleted).
			Msg("stale filesystem exporters deleted")
	}
	return nil
}

func (s *Service) exportPlatform(ctx context.Context, scope platformScope, noarch types.ReconcileMode, collector *reportCollector) {
	provisioned := s.provisionExporters(ctx, scope, collector)
	exported := s.exportSnapshots(ctx, provisioned, collector)
	s.reconcileNoarch(ctx, scope, noarch, collector)
	s.hardenAndSign(ctx, scope, exported, collector)
}

// provisionExporters registers a filesystem exporter per repository and
// resolves the content version it will materialize.
func (s *Service) provisionExporters(ctx context.Context, scope platformScope, collector *reportCollector) []provisionedExport {
	var provisioned []provisionedExport
	for _, repo := range scope.ExportRepos {
		exportPath := filepath.Join(s.Config.ExportRoot, repo.ExportPath, "Packages")
		exporterHref, err := s.Artifacts.CreateFilesystemExporter(ctx, repo.ExporterName(), exportPath)
		if err != nil {
			collector.fail(repo.FullName(), "create-exporter", err)
			continue
		}
		versionHref, err := s.Artifacts.GetLatestVersion(ctx, repo.Href)
		if err != nil {
			collector.fail(repo.FullName(), "latest-version", err)
			continue
		}
		desc := types.ExportDescriptor{
			RepositoryID: repo.ID,
			VersionHref:  versionHref,
			ExportPath:   exportPath,
			ExporterName: repo.ExporterName(),
			ExporterHref: exporterHref,
		}
		if publications, err := s.Artifacts.ListPublications(ctx, versionHref); err == nil && len(publications) > 0 {
			desc.PublicationHref = publications[0]
		}
		log.Ctx(ctx).Info().
			Str("exporter", desc.ExporterName).
			Str("path", desc.ExportPath).
			Str("version", desc.VersionHref).
			Msg("exporting repository")
		provisioned = append(provisioned, provisionedExport{Repo: repo, Desc: desc})
	}
	return provisioned
}

// exportSnapshots triggers the filesystem export per descriptor with
// bounded concurrency. Failures are recorded per unit and the unit is
// dropped from the returned set, so later stages never regenerate or
// sign a tree that was not materialized in this run. The group never
// cancels siblings.
func (s *Service) exportSnapshots(ctx context.Context, provisioned []provisionedExport, collector *reportCollector) []provisionedExport {
	var mu sync.Mutex
	var exported []provisionedExport
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.Config.workers())
	for _, unit := range provisioned {
		group.Go(func() error {
			err := s.Artifacts.ExportToFilesystem(groupCtx, unit.Desc.ExporterHref, unit.Desc.VersionHref)
			if err != nil {
				collector.fail(unit.Repo.FullName(), "export-to-filesystem", err)
				return nil
			}
			collector.addPath(unit.Desc.ExportPath)
			mu.Lock()
			exported = append(exported, unit)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return exported
}

// reconcileNoarch fans the platform's reconciliation pairs out
// concurrently. The source listing is fetched once per source repository
// and shared across its pairs.
func (s *Service) reconcileNoarch(ctx context.Context, scope platformScope, mode types.ReconcileMode, collector *reportCollector) {
	if mode == "" {
		log.Ctx(ctx).Info().Msg("skip copying noarch packages")
		return
	}
	pairs := core.NoarchPairs(scope.AllRepos)
	if len(pairs) == 0 {
		return
	}
	sourcePackages := map[int64][]types.PackageRecord{}
	for _, pair := range pairs {
		if _, ok := sourcePackages[pair.Source.ID]; ok {
			continue
		}
		packages, err := s.listNoarchPackages(ctx, pair.Source)
		if err != nil {
			collector.fail(pair.Source.FullName(), "list-source-packages", err)
			continue
		}
		sourcePackages[pair.Source.ID] = packages
	}

	log.Ctx(ctx).Info().Msg("start checking and copying noarch packages in repos")
	reconciler := core.NewReconciler(s.Artifacts, mode)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.Config.workers())
	for _, pair := range pairs {
		packages, ok := sourcePackages[pair.Source.ID]
		if !ok {
			continue
		}
		group.Go(func() error {
			if _, err := reconciler.Reconcile(groupCtx, pair, packages); err != nil {
				collector.fail(pair.Destination.FullName(), "reconcile-noarch", err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (s *Service) listNoarchPackages(ctx context.Context, repo types.Repository) ([]types.PackageRecord, error) {
	versionHref, err := s.Artifacts.GetLatestVersion(ctx, repo.Href)
	if err != nil {
		return nil, err
	}
	return s.Artifacts.ListPackages(ctx, ports.PackageFilter{
		Arch:        types.ArchNoarch,
		VersionHref: versionHref,
		Fields:      []string{"name", "version", "release", "sha256", "pulp_href"},
	})
}
