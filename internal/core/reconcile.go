package core

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

type DecisionAction string

const (
	DecisionAdd         DecisionAction = "add"
	DecisionReplace     DecisionAction = "replace"
	DecisionSkipModular DecisionAction = "skip-modular"
)

// Decision is one logged reconciliation outcome for a source package.
type Decision struct {
	Package types.PackageRecord
	Action  DecisionAction
	// RemovedHref is set for replacements: the destination content that
	// the source package supersedes.
	RemovedHref string
}

// ReconcilePlan is the computed content transition for one destination
// repository. ToAdd and ToRemove are always applied together in a single
// content-modification call.
type ReconcilePlan struct {
	ToAdd     []string
	ToRemove  []string
	Decisions []Decision
}

func (p ReconcilePlan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0
}

// NoarchPair is one (source, destination) reconciliation unit. Sources
// are always x86_64 repositories; destinations are every other non-src
// repository of the same grouping with a matching debug flag.
type NoarchPair struct {
	Source      types.Repository
	Destination types.Repository
}

// NoarchPairs computes the reconciliation pairs for one set of
// repositories. Pairs are independent and safe to run concurrently.
func NoarchPairs(repos []types.Repository) []NoarchPair {
	var pairs []NoarchPair
	for _, source := range repos {
		if source.Arch != types.ArchX8664 {
			continue
		}
		for _, dest := range repos {
			if dest.Arch == types.ArchX8664 || dest.Arch == types.ArchSrc {
				continue
			}
			if dest.Debug != source.Debug {
				continue
			}
			pairs = append(pairs, NoarchPair{Source: source, Destination: dest})
		}
	}
	return pairs
}

// Reconciler makes the destination repository's noarch content consistent
// with its x86_64 source.
type Reconciler struct {
	Artifacts ports.ArtifactRepoPort
	Mode      types.ReconcileMode
}

func NewReconciler(artifacts ports.ArtifactRepoPort, mode types.ReconcileMode) Reconciler {
	return Reconciler{Artifacts: artifacts, Mode: mode}
}

// Plan computes the add/remove transition without touching the service.
//
// A source noarch package missing from the destination is added, unless
// it is modular (cross-module duplication is unsafe) or the engine runs
// in differ mode. A destination package with the same NVR but a
// different checksum is replaced: its content handle is removed and the
// source's added, never one without the other.
func (r Reconciler) Plan(source []types.PackageRecord, destination []types.PackageRecord) ReconcilePlan {
	plan := ReconcilePlan{}
	for _, pkg := range source {
		match, found := findByNVR(destination, pkg)
		if !found {
			if pkg.IsModular() {
				plan.Decisions = append(plan.Decisions, Decision{Package: pkg, Action: DecisionSkipModular})
				continue
			}
			if r.Mode == types.ReconcileModeDiffer {
				continue
			}
			plan.ToAdd = append(plan.ToAdd, pkg.Href)
			plan.Decisions = append(plan.Decisions, Decision{Package: pkg, Action: DecisionAdd})
			continue
		}
		if pkg.Checksum != match.Checksum {
			plan.ToRemove = append(plan.ToRemove, match.Href)
			plan.ToAdd = append(plan.ToAdd, pkg.Href)
			plan.Decisions = append(plan.Decisions, Decision{
				Package:     pkg,
				Action:      DecisionReplace,
				RemovedHref: match.Href,
			})
		}
	}
	return plan
}

// Reconcile fetches the destination's current noarch listing, plans the
// transition against the already-fetched source listing, logs every
// decision, and in copy mode applies the plan as one atomic content
// modification followed by a fresh publication.
func (r Reconciler) Reconcile(ctx context.Context, pair NoarchPair, sourcePackages []types.PackageRecord) (ReconcilePlan, error) {
	versionHref, err := r.Artifacts.GetLatestVersion(ctx, pair.Destination.Href)
	if err != nil {
		return ReconcilePlan{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to resolve destination repository version").
			WithCause(err)
	}
	destPackages, err := r.Artifacts.ListPackages(ctx, ports.PackageFilter{
		Arch:        types.ArchNoarch,
		VersionHref: versionHref,
		Fields:      []string{"name", "version", "release", "sha256", "pulp_href"},
	})
	if err != nil {
		return ReconcilePlan{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to list destination packages").
			WithCause(err)
	}

	plan := r.Plan(sourcePackages, destPackages)
	r.logDecisions(ctx, pair, plan)

	if r.Mode != types.ReconcileModeCopy || len(plan.ToAdd) == 0 {
		return plan, nil
	}
	if err := r.Artifacts.ModifyContent(ctx, pair.Destination.Href, plan.ToAdd, plan.ToRemove); err != nil {
		return plan, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to modify destination repository content").
			WithCause(err)
	}
	if err := r.Artifacts.CreatePublication(ctx, pair.Destination.Href); err != nil {
		return plan, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to publish destination repository").
			WithCause(err)
	}
	return plan, nil
}

func (r Reconciler) logDecisions(ctx context.Context, pair NoarchPair, plan ReconcilePlan) {
	addMsg := `%s added from "%s" repo into "%s" repo`
	replaceMsg := `%s replaced in "%s" repo from "%s" repo`
	if r.Mode != types.ReconcileModeCopy {
		addMsg = `%s can be added from "%s" repo into "%s" repo`
		replaceMsg = `%s can be replaced in "%s" repo from "%s" repo`
	}
	logger := log.Ctx(ctx)
	for _, decision := range plan.Decisions {
		switch decision.Action {
		case DecisionAdd:
			logger.Info().Msgf(addMsg, decision.Package.Filename(),
				pair.Source.FullName(), pair.Destination.FullName())
		case DecisionReplace:
			logger.Info().Msgf(replaceMsg, decision.Package.Filename(),
				pair.Destination.FullName(), pair.Source.FullName())
		case DecisionSkipModular:
			logger.Debug().
				Str("package", decision.Package.Filename()).
				Str("destination", pair.Destination.FullName()).
				Msg("modular noarch package skipped")
		}
	}
}

func findByNVR(records []types.PackageRecord, target types.PackageRecord) (types.PackageRecord, bool) {
	for _, record := range records {
		if record.SameNVR(target) {
			return record, true
		}
	}
	return types.PackageRecord{}, false
}
