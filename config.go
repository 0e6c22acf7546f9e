package distspmv

// Config carries the engine-wide toggles for a DistCSR, the same
// way the teacher's Configuration struct (model.go in edp1096-sparse) is
// carried as a value on Matrix with a constructor-supplied default.
type Config struct {
	// DeduplicateRemoteColumns collapses repeated remote column references
	// during reconciliation into a single extended-buffer slot, instead of
	// spec.md §4.E's documented default of one remap slot per occurrence.
	// Off by default so observable behaviour matches the spec exactly when
	// a caller never opts in.
	DeduplicateRemoteColumns bool

	// Verbose enables fmt-based diagnostic printing from DistCSR.Debugf,
	// matching the teacher's plain fmt.Printf status dump (output.go)
	// rather than reaching for a logging dependency the corpus never uses.
	Verbose bool
}

// DefaultConfig returns the configuration spec.md's default (non
// deduplicating, quiet) behaviour.
func DefaultConfig() Config {
	return Config{
		DeduplicateRemoteColumns: false,
		Verbose:                  false,
	}
}
