package ports

import "context"

// InspectResult is the raw outcome of one package-inspector invocation.
// A non-zero exit code means the file could not be inspected.
type InspectResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RepoMetadataPort drives the external repository metadata tools.
type RepoMetadataPort interface {
	// Regenerate rebuilds the repodata index in place.
	Regenerate(ctx context.Context, repoPath string, preserveCustomMetadata bool) error
	// Patch injects a metadata file of the given type into the target
	// repodata directory.
	Patch(ctx context.Context, metadataType string, inputFile string, targetDir string) error
}

// PackageInspectorPort reads embedded package information, including the
// signature line, via the external inspector tool.
type PackageInspectorPort interface {
	Inspect(ctx context.Context, filePath string) (InspectResult, error)
}

// OwnershipPort transfers filesystem ownership via the privilege
// elevation tool.
type OwnershipPort interface {
	Chown(ctx context.Context, path string, owner string, recursive bool) error
}
