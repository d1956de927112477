package types

import (
	"fmt"
	"sort"
	"strings"
)

const modularReleaseMarker = ".module_el"

// PackageRecord is a flattened view of one package as listed by the
// artifact repository service. Reconciliation equality is
// (Name, Version, Release); content identity is the checksum.
type PackageRecord struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Release  string `json:"release"`
	Checksum string `json:"sha256"`
	Href     string `json:"pulp_href"`
}

// SameNVR reports whether two records are the same package build,
// regardless of content.
func (p PackageRecord) SameNVR(other PackageRecord) bool {
	return p.Name == other.Name &&
		p.Version == other.Version &&
		p.Release == other.Release
}

// IsModular reports whether the package was built inside a module
// context. Modular noarch packages are never auto-copied into
// repositories that do not already track that module.
func (p PackageRecord) IsModular() bool {
	return strings.Contains(p.Release, modularReleaseMarker)
}

// Filename renders the conventional noarch package file name.
func (p PackageRecord) Filename() string {
	return fmt.Sprintf("%s-%s-%s.noarch.rpm", p.Name, p.Version, p.Release)
}

// ExportDescriptor is the working unit threaded through the export
// pipeline per repository.
type ExportDescriptor struct {
	RepositoryID    int64
	VersionHref     string
	ExportPath      string
	ExporterName    string
	ExporterHref    string
	PublicationHref string
}

// ViolationReport accumulates the signature findings of one exported
// directory. A scanned file belongs to at most one of the three sets.
type ViolationReport struct {
	// Errored lists files the inspector could not read.
	Errored []string
	// Unsigned lists files carrying no signature at all.
	Unsigned []string
	// WrongKey maps a file to the unauthorized key id it is signed with.
	WrongKey map[string]string
	// AuthorizedKeys records the lowercased key set the scan was run
	// against.
	AuthorizedKeys []string
}

func (r ViolationReport) Empty() bool {
	return len(r.Errored) == 0 && len(r.Unsigned) == 0 && len(r.WrongKey) == 0
}

// Lines renders the report in the accumulating error-log format.
func (r ViolationReport) Lines() []string {
	var lines []string
	if len(r.Errored) > 0 {
		lines = append(lines, "Packages that we cannot get information about:")
		lines = append(lines, sortedCopy(r.Errored)...)
	}
	if len(r.Unsigned) > 0 {
		lines = append(lines, "Packages without signature:")
		lines = append(lines, sortedCopy(r.Unsigned)...)
	}
	if len(r.WrongKey) > 0 {
		lines = append(lines, "Packages with wrong signature:")
		var entries []string
		for path, keyID := range r.WrongKey {
			entries = append(entries, fmt.Sprintf("%s %s", path, keyID))
		}
		sort.Strings(entries)
		lines = append(lines, entries...)
	}
	return lines
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

// UnitFailure records one per-repository or per-path failure the
// orchestrator recovered from.
type UnitFailure struct {
	Unit      string
	Operation string
	Err       error
}

// ExportReport is the aggregate outcome of one export run. The run
// succeeds with failures rather than aborting on the first one.
type ExportReport struct {
	ExportedPaths []string
	Failures      []UnitFailure
	Violations    int
}

func (r ExportReport) Clean() bool {
	return len(r.Failures) == 0 && r.Violations == 0
}
