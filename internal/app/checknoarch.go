package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pkg-exporter/internal/core"
	"pkg-exporter/internal/types"
)

// CheckNoarch runs the noarch consistency check (or copy) over a
// distribution's repositories without exporting anything.
func (s *Service) CheckNoarch(ctx context.Context, req CheckNoarchRequest) (types.ExportReport, error) {
	name := strings.TrimSpace(req.Distribution)
	if name == "" {
		return types.ExportReport{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("distribution name is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ReconcileModeCheck
	}
	distribution, err := s.Store.Distribution(ctx, name)
	if err != nil {
		return types.ExportReport{}, err
	}
	pairs := core.NoarchPairs(distribution.Repositories)
	if len(pairs) == 0 {
		log.Ctx(ctx).Info().
			Str("distribution", name).
			Msg("distribution has no noarch reconciliation pairs")
		return types.ExportReport{}, nil
	}

	collector := &reportCollector{}
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
	return collector.result(), nil
}
