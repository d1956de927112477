package ports

import (
	"context"

	"pkg-exporter/internal/types"
)

// FilesystemExporter is one exporter registration known to the artifact
// repository service.
type FilesystemExporter struct {
	Name string
	Href string
}

// PackageFilter narrows a package listing. VersionHref scopes the listing
// to one repository version; Arch filters by package architecture.
type PackageFilter struct {
	Arch        types.Arch
	VersionHref string
	Fields      []string
}

// ArtifactRepoPort is the typed capability surface of the artifact
// repository service. Implementations must follow listing pagination to
// exhaustion before returning.
type ArtifactRepoPort interface {
	CreateFilesystemExporter(ctx context.Context, name string, path string) (string, error)
	DeleteFilesystemExporter(ctx context.Context, href string) error
	ListFilesystemExporters(ctx context.Context) ([]FilesystemExporter, error)
	GetLatestVersion(ctx context.Context, repoHref string) (string, error)
	ExportToFilesystem(ctx context.Context, exporterHref string, versionHref string) error
	ListPackages(ctx context.Context, filter PackageFilter) ([]types.PackageRecord, error)
	ListPublications(ctx context.Context, versionHref string) ([]string, error)
	// ModifyContent applies the add and remove sets as one atomic
	// version transition on the repository.
	ModifyContent(ctx context.Context, repoHref string, add []string, remove []string) error
	CreatePublication(ctx context.Context, repoHref string) error
}
