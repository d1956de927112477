package types

type Arch string

const (
	ArchX8664   Arch = "x86_64"
	ArchPpc64le Arch = "ppc64le"
	ArchSrc     Arch = "src"
	ArchNoarch  Arch = "noarch"
)

// ReconcileMode selects how the noarch reconciliation engine treats the
// computed add/remove plan.
type ReconcileMode string

const (
	// ReconcileModeCopy applies the plan to the destination repository.
	ReconcileModeCopy ReconcileMode = "copy"
	// ReconcileModeCheck only logs what would change, never applies.
	ReconcileModeCheck ReconcileMode = "check"
	// ReconcileModeDiffer reports only checksum divergences, never applies.
	ReconcileModeDiffer ReconcileMode = "differ"
)
