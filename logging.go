package distspmv

import "fmt"

// Debugf prints a rank-tagged diagnostic line when m.Config.Verbose is
// set, the way the teacher's WriteStatus (output.go) unconditionally
// dumps pivot/Markowitz state to stdout. Silent by default; call sites
// pass their own rank since DistCSR itself carries no Comm reference.
func (m *DistCSR) Debugf(rank int, format string, args ...any) {
	if !m.Config.Verbose {
		return
	}
	fmt.Printf("[rank %d] "+format+"\n", append([]any{rank}, args...)...)
}
