package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pkg-exporter/internal/app"
	"pkg-exporter/internal/types"
)

type checkNoarchOptions struct {
	Distribution string
	Copy         bool
	ShowDiffer   bool
}

func newCheckNoarchCommand() *cobra.Command {
	opts := checkNoarchOptions{}
	cmd := &cobra.Command{
		Use:   "check-noarch",
		Short: "Check noarch package consistency across a distribution's repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckNoarch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Distribution, "distribution", "", "Distribution name to check")
	cmd.Flags().BoolVar(&opts.Copy, "copy-noarch-packages", false, "Copy noarch packages instead of only reporting")
	cmd.Flags().BoolVar(&opts.ShowDiffer, "show-differ-packages", false, "Show only packages that have different checksums")
	_ = cmd.MarkFlagRequired("distribution")
	return cmd
}

func runCheckNoarch(cmd *cobra.Command, opts checkNoarchOptions) error {
	ctx := log.Logger.WithContext(cmd.Context())
	service, closeService, err := newExportService(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	mode := types.ReconcileModeCheck
	if opts.ShowDiffer {
		mode = types.ReconcileModeDiffer
	} else if opts.Copy {
		mode = types.ReconcileModeCopy
	}
	report, err := service.CheckNoarch(ctx, app.CheckNoarchRequest{
		Distribution: opts.Distribution,
		Mode:         mode,
	})
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		fmt.Printf("noarch check completed with %d failed pairs\n", len(report.Failures))
		return nil
	}
	fmt.Println("noarch check completed")
	return nil
}
