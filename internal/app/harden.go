package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pkg-exporter/internal/adapters"
	"pkg-exporter/internal/core"
	"pkg-exporter/internal/types"
)

// hardenAndSign runs post-export hardening and metadata signing over
// every exported path. Independent paths run concurrently; the steps
// within one path are strictly sequential because ownership of the path
// is a shared filesystem resource. ppc64le paths read their x86_64
// sibling's repodata during the errata merge, so they run in a second
// wave once every other path has been regenerated and released.
func (s *Service) hardenAndSign(ctx context.Context, scope platformScope, exported []provisionedExport, collector *reportCollector) {
	var first, second []provisionedExport
	for _, unit := range exported {
		if unit.Repo.Arch == types.ArchPpc64le {
			second = append(second, unit)
			continue
		}
		first = append(first, unit)
	}
	s.hardenWave(ctx, scope, first, collector)
	s.hardenWave(ctx, scope, second, collector)
}

func (s *Service) hardenWave(ctx context.Context, scope platformScope, units []provisionedExport, collector *reportCollector) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.Config.workers())
	for _, unit := range units {
		group.Go(func() error {
			s.hardenPath(groupCtx, scope, unit, collector)
			return nil
		})
	}
	_ = group.Wait()
}

func (s *Service) hardenPath(ctx context.Context, scope platformScope, unit provisionedExport, collector *reportCollector) {
	repoName := unit.Repo.FullName()
	repoPath := filepath.Dir(unit.Desc.ExportPath)
	if _, err := os.Stat(repoPath); err != nil {
		collector.fail(repoName, "stat-export-path", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("exported path does not exist").
			WithCause(err))
		return
	}

	release, err := s.acquireOwnership(ctx, repoPath)
	if err != nil {
		collector.fail(repoName, "acquire-ownership", err)
		return
	}
	defer release()

	if err := s.removeSnippets(repoPath); err != nil {
		collector.fail(repoName, "remove-snippets", err)
		return
	}
	s.verifySignatures(ctx, scope, unit, collector)
	if err := s.Metadata.Regenerate(ctx, repoPath, true); err != nil {
		collector.fail(repoName, "regenerate-metadata", err)
		return
	}
	if unit.Repo.Arch == types.ArchPpc64le {
		if err := s.mergeSiblingErrata(ctx, repoPath); err != nil {
			collector.fail(repoName, "merge-errata", err)
			return
		}
	}
	if err := s.signRepoMetadata(ctx, scope.Platform, repoPath); err != nil {
		collector.fail(repoName, "sign-metadata", err)
	}
}

// acquireOwnership hands the path to the operator identity and returns
// the release step. The release runs on every exit path of the caller so
// the repository is never left owned by the operator.
func (s *Service) acquireOwnership(ctx context.Context, path string) (func(), error) {
	if err := s.Ownership.Chown(ctx, path, s.Config.OperatorUser, true); err != nil {
		return nil, err
	}
	return func() {
		if err := s.Ownership.Chown(ctx, path, s.Config.ServiceUser, true); err != nil {
			log.Ctx(ctx).Error().
				Str("path", path).
				Err(err).
				Msg("failed to return ownership to the service user")
		}
	}, nil
}

func (s *Service) removeSnippets(repoPath string) error {
	cleaner := s.SnippetCleaner
	if cleaner == nil {
		cleaner = adapters.RemoveMetadataSnippets
	}
	if err := cleaner(repoPath); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to remove partial metadata snippets").
			WithCause(err)
	}
	return nil
}

func (s *Service) verifySignatures(ctx context.Context, scope platformScope, unit provisionedExport, collector *reportCollector) {
	verifier := core.NewSignatureVerifier(s.Inspector, s.Subkeys)
	report, err := verifier.Verify(ctx, unit.Desc.ExportPath, scope.Platform.SignKeys)
	if err != nil {
		collector.fail(unit.Repo.FullName(), "verify-signatures", err)
		return
	}
	if report.Empty() {
		return
	}
	collector.addViolations(len(report.Errored) + len(report.Unsigned) + len(report.WrongKey))
	if err := s.ErrorLog.Append(report.Lines()); err != nil {
		collector.fail(unit.Repo.FullName(), "append-error-log", err)
	}
}

// mergeSiblingErrata injects the x86_64 sibling's updateinfo metadata
// into this repository. Errata are produced once for the primary
// architecture and propagated, never regenerated per architecture.
func (s *Service) mergeSiblingErrata(ctx context.Context, repoPath string) error {
	repodata := filepath.Join(repoPath, "repodata")
	siblingRepodata := strings.ReplaceAll(repodata, string(types.ArchPpc64le), string(types.ArchX8664))
	if siblingRepodata == repodata {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(siblingRepodata, "*updateinfo.xml*"))
	if err != nil {
		log.Ctx(ctx).Warn().
			Str("path", siblingRepodata).
			Err(err).
			Msg("cannot scan sibling repodata for errata")
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return s.Metadata.Patch(ctx, "updateinfo", matches[0], repodata)
}

// signRepoMetadata signs repomd.xml with the platform's key and writes
// the detached signature alongside it. A platform without a key is
// skipped with a warning, not failed; a signing-service error is
// reported by the caller but leaves the metadata unsigned.
func (s *Service) signRepoMetadata(ctx context.Context, platform types.Platform, repoPath string) error {
	repodata := filepath.Join(repoPath, "repodata")
	keyID := firstSignKey(platform)
	if keyID == "" {
		log.Ctx(ctx).Warn().
			Str("path", repodata).
			Msg("cannot sign repomd.xml, missing sign key")
		return nil
	}
	manifest := filepath.Join(repodata, "repomd.xml")
	content, err := os.ReadFile(manifest)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read metadata manifest").
			WithCause(err)
	}
	signed, err := s.Signer.Sign(ctx, content, keyID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifest+".asc", signed, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write detached signature").
			WithCause(err)
	}
	log.Ctx(ctx).Info().Str("path", repodata).Msg("repomd.xml signed")
	return nil
}

func firstSignKey(platform types.Platform) string {
	for _, key := range platform.SignKeys {
		if key.PlatformID == platform.ID {
			return key.KeyID
		}
	}
	return ""
}
