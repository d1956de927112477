package core

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

// fakeArtifacts records reconciliation calls against a canned destination
// listing.
type fakeArtifacts struct {
	destPackages []types.PackageRecord
	modifyCalls  []modifyCall
	publications []string
}

type modifyCall struct {
	repoHref string
	add      []string
	remove   []string
}

func (f *fakeArtifacts) CreateFilesystemExporter(context.Context, string, string) (string, error) {
	return "", nil
}
func (f *fakeArtifacts) DeleteFilesystemExporter(context.Context, string) error { return nil }
func (f *fakeArtifacts) ListFilesystemExporters(context.Context) ([]ports.FilesystemExporter, error) {
	return nil, nil
}
func (f *fakeArtifacts) GetLatestVersion(_ context.Context, repoHref string) (string, error) {
	return repoHref + "versions/1/", nil
}
func (f *fakeArtifacts) ExportToFilesystem(context.Context, string, string) error { return nil }
func (f *fakeArtifacts) ListPackages(context.Context, ports.PackageFilter) ([]types.PackageRecord, error) {
	return f.destPackages, nil
}
func (f *fakeArtifacts) ListPublications(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeArtifacts) ModifyContent(_ context.Context, repoHref string, add []string, remove []string) error {
	f.modifyCalls = append(f.modifyCalls, modifyCall{repoHref: repoHref, add: add, remove: remove})
	return nil
}
func (f *fakeArtifacts) CreatePublication(_ context.Context, repoHref string) error {
	f.publications = append(f.publications, repoHref)
	return nil
}

func record(name, version, release, checksum, href string) types.PackageRecord {
	return types.PackageRecord{
		Name:     name,
		Version:  version,
		Release:  release,
		Checksum: checksum,
		Href:     href,
	}
}

func testPair() NoarchPair {
	return NoarchPair{
		Source: types.Repository{
			ID: 1, Name: "repo", Arch: types.ArchX8664, Href: "/repos/x86/",
		},
		Destination: types.Repository{
			ID: 2, Name: "repo", Arch: types.ArchPpc64le, Href: "/repos/ppc/",
		},
	}
}

func TestPlan_AddsMissingNoarchPackage(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/a1/")}

	plan := reconciler.Plan(source, nil)

	assert.Equal(t, []string{"/content/a1/"}, plan.ToAdd)
	assert.Empty(t, plan.ToRemove)
}

func TestPlan_ReplacesOnChecksumDivergence(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/src/")}
	dest := []types.PackageRecord{record("A", "1.0", "1.el8", "c2", "/content/dst/")}

	plan := reconciler.Plan(source, dest)

	assert.Equal(t, []string{"/content/src/"}, plan.ToAdd)
	assert.Equal(t, []string{"/content/dst/"}, plan.ToRemove)
}

func TestPlan_ConsistentPackageNoAction(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/src/")}
	dest := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/dst/")}

	plan := reconciler.Plan(source, dest)

	assert.True(t, plan.Empty())
}

func TestPlan_ModularPackageNeverAutoAdded(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{
		record("mod-pkg", "1.0", "1.module_el8.6.0+1234+abcd", "c1", "/content/mod/"),
	}

	plan := reconciler.Plan(source, nil)

	assert.Empty(t, plan.ToAdd)
	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, DecisionSkipModular, plan.Decisions[0].Action)
}

func TestPlan_ModularPackageWithDivergentChecksumReplaced(t *testing.T) {
	// A modular package the destination already tracks is still kept
	// consistent; only the auto-add of a missing one is unsafe.
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{
		record("mod-pkg", "1.0", "1.module_el8.6.0+1234+abcd", "c1", "/content/src/"),
	}
	dest := []types.PackageRecord{
		record("mod-pkg", "1.0", "1.module_el8.6.0+1234+abcd", "c2", "/content/dst/"),
	}

	plan := reconciler.Plan(source, dest)

	assert.Equal(t, []string{"/content/src/"}, plan.ToAdd)
	assert.Equal(t, []string{"/content/dst/"}, plan.ToRemove)
}

func TestPlan_DifferModeSkipsMissingPackages(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeDiffer)
	source := []types.PackageRecord{
		record("A", "1.0", "1.el8", "c1", "/content/a/"),
		record("B", "2.0", "3.el8", "c2", "/content/b-src/"),
	}
	dest := []types.PackageRecord{record("B", "2.0", "3.el8", "c9", "/content/b-dst/")}

	plan := reconciler.Plan(source, dest)

	assert.Equal(t, []string{"/content/b-src/"}, plan.ToAdd)
	assert.Equal(t, []string{"/content/b-dst/"}, plan.ToRemove)
}

func TestPlan_Idempotence(t *testing.T) {
	reconciler := NewReconciler(nil, types.ReconcileModeCopy)
	source := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/src/")}

	first := reconciler.Plan(source, nil)
	require.NotEmpty(t, first.ToAdd)

	// After applying the plan the destination holds the same content;
	// a second planning pass yields nothing.
	dest := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/src/")}
	second := reconciler.Plan(source, dest)
	assert.True(t, second.Empty())
}

func TestReconcile_AppliesPlanAtomically(t *testing.T) {
	artifacts := &fakeArtifacts{
		destPackages: []types.PackageRecord{record("A", "1.0", "1.el8", "c2", "/content/dst/")},
	}
	reconciler := NewReconciler(artifacts, types.ReconcileModeCopy)
	source := []types.PackageRecord{
		record("A", "1.0", "1.el8", "c1", "/content/src/"),
		record("B", "2.0", "1.el8", "c3", "/content/new/"),
	}

	_, err := reconciler.Reconcile(context.Background(), testPair(), source)

	require.NoError(t, err)
	// Both the replacement and the addition ride in a single modify
	// call; the remove set is never submitted on its own.
	require.Len(t, artifacts.modifyCalls, 1)
	call := artifacts.modifyCalls[0]
	assert.Equal(t, "/repos/ppc/", call.repoHref)
	assert.ElementsMatch(t, []string{"/content/src/", "/content/new/"}, call.add)
	assert.Equal(t, []string{"/content/dst/"}, call.remove)
	assert.Equal(t, []string{"/repos/ppc/"}, artifacts.publications)
}

func TestReconcile_CheckModeNeverModifies(t *testing.T) {
	artifacts := &fakeArtifacts{}
	reconciler := NewReconciler(artifacts, types.ReconcileModeCheck)
	source := []types.PackageRecord{record("A", "1.0", "1.el8", "c1", "/content/src/")}

	plan, err := reconciler.Reconcile(context.Background(), testPair(), source)

	require.NoError(t, err)
	assert.NotEmpty(t, plan.ToAdd)
	assert.Empty(t, artifacts.modifyCalls)
	assert.Empty(t, artifacts.publications)
}

func TestNoarchPairs(t *testing.T) {
	repos := []types.Repository{
		{ID: 1, Name: "baseos", Arch: types.ArchX8664},
		{ID: 2, Name: "baseos", Arch: types.ArchPpc64le},
		{ID: 3, Name: "baseos", Arch: types.ArchSrc},
		{ID: 4, Name: "baseos", Arch: types.ArchX8664, Debug: true},
		{ID: 5, Name: "baseos", Arch: types.ArchPpc64le, Debug: true},
	}

	pairs := NoarchPairs(repos)

	want := []NoarchPair{
		{Source: repos[0], Destination: repos[1]},
		{Source: repos[3], Destination: repos[4]},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Fatalf("unexpected pairs (-want +got):\n%s", diff)
	}
}
