//go:build !unix

package run

// raiseFileLimit is a no-op where rlimits do not exist.
func raiseFileLimit(want uint64) error {
	return nil
}
