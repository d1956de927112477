package types

import "fmt"

// Repository is one exportable unit of a platform. It is owned and mutated
// by the build/publish side; the exporter only reads it.
type Repository struct {
	ID         int64
	PlatformID int64
	Name       string
	Arch       Arch
	// Debug marks the debug-symbol variant of a repository. Debug
	// repositories reconcile only against other debug repositories.
	Debug bool
	// Production gates exportability; non-production repositories are
	// never selected.
	Production bool
	// ExportPath is the repository's subpath under the export root.
	ExportPath string
	// Href is the opaque handle into the artifact repository service.
	Href string
}

// FullName renders the conventional repository display name, e.g.
// "baseos-x86_64" or "baseos-debuginfo-x86_64".
func (r Repository) FullName() string {
	if r.Debug {
		return fmt.Sprintf("%s-debuginfo-%s", r.Name, r.Arch)
	}
	return fmt.Sprintf("%s-%s", r.Name, r.Arch)
}

// ExporterName derives the deterministic filesystem-exporter name
// registered with the artifact repository service.
func (r Repository) ExporterName() string {
	if r.Debug {
		return fmt.Sprintf("%s-%s-debug", r.Name, r.Arch)
	}
	return fmt.Sprintf("%s-%s", r.Name, r.Arch)
}

type SignKey struct {
	KeyID      string
	PlatformID int64
}

// Platform groups repositories and the keys authorized to sign their
// content. Reference platforms are mirrors of upstream distributions and
// are excluded from export selection.
type Platform struct {
	ID           int64
	Name         string
	IsReference  bool
	Repositories []Repository
	SignKeys     []SignKey
}

// Release carries the structured build plan of one release. Only the
// repository ids referenced by the plan matter to the exporter.
type Release struct {
	ID         int64
	PlatformID int64
	Plan       ReleasePlan
}

type ReleasePlan struct {
	Packages []ReleasePlanPackage `json:"packages"`
}

type ReleasePlanPackage struct {
	Repositories []ReleasePlanRepository `json:"repositories"`
}

type ReleasePlanRepository struct {
	ID int64 `json:"id"`
}

// RepositoryIDs returns the deduplicated set of repository ids the plan
// touches.
func (p ReleasePlan) RepositoryIDs() []int64 {
	seen := map[int64]struct{}{}
	var ids []int64
	for _, pkg := range p.Packages {
		for _, repo := range pkg.Repositories {
			if _, ok := seen[repo.ID]; ok {
				continue
			}
			seen[repo.ID] = struct{}{}
			ids = append(ids, repo.ID)
		}
	}
	return ids
}

// Distribution is a user-defined grouping of repositories, used only for
// the standalone noarch consistency check.
type Distribution struct {
	ID           int64
	Name         string
	Repositories []Repository
}
