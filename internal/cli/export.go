package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkg-exporter/internal/app"
	"pkg-exporter/internal/types"
)

type exportOptions struct {
	PlatformNames []string
	RepoIDs       []int64
	Arches        []string
	ReleaseID     int64
	CopyNoarch    bool
	CheckNoarch   bool
	ShowDiffer    bool
	ExportRoot    string
	Workers       int
}

func newExportCommand() *cobra.Command {
	opts := exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export repositories to the filesystem, reconcile noarch content, verify and sign",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.PlatformNames, "platform-names", nil, "Platform names to export")
	cmd.Flags().Int64SliceVar(&opts.RepoIDs, "repo-ids", nil, "Repository ids to export")
	cmd.Flags().StringSliceVar(&opts.Arches, "arches", nil, "Architectures to export")
	cmd.Flags().Int64Var(&opts.ReleaseID, "release-id", 0, "Export repositories referenced by this release")
	cmd.Flags().BoolVar(&opts.CopyNoarch, "copy-noarch-packages", false, "Copy noarch packages from x86_64 repos into others")
	cmd.Flags().BoolVar(&opts.CheckNoarch, "only-check-noarch", false, "Only check noarch packages without copying")
	cmd.Flags().BoolVar(&opts.ShowDiffer, "show-differ-packages", false, "Show only packages that have different checksums")
	cmd.Flags().StringVar(&opts.ExportRoot, "export-root", "", "Filesystem root for exported repositories")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "Concurrent export workers")
	_ = viper.BindPFlag("export_root", cmd.Flags().Lookup("export-root"))
	_ = viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func runExport(cmd *cobra.Command, opts exportOptions) error {
	ctx := log.Logger.WithContext(cmd.Context())
	service, closeService, err := newExportService(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	report, err := service.Export(ctx, app.ExportRequest{
		PlatformNames: opts.PlatformNames,
		RepositoryIDs: opts.RepoIDs,
		Arches:        opts.Arches,
		ReleaseID:     opts.ReleaseID,
		Noarch:        noarchMode(opts),
	})
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func noarchMode(opts exportOptions) types.ReconcileMode {
	switch {
	case opts.ShowDiffer:
		return types.ReconcileModeDiffer
	case opts.CheckNoarch:
		return types.ReconcileModeCheck
	case opts.CopyNoarch:
		return types.ReconcileModeCopy
	default:
		return ""
	}
}

func printReport(report types.ExportReport) {
	for _, path := range report.ExportedPaths {
		fmt.Printf("exported: %s\n", path)
	}
	if report.Clean() {
		fmt.Println("export completed without failures")
		return
	}
	fmt.Printf("export completed with %d failed units and %d signature violations\n",
		len(report.Failures), report.Violations)
}
