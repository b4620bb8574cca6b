//go:build unix

package run

import "syscall"

// raiseFileLimit lifts the soft open-file limit toward want, capped at the
// hard limit. Failing to raise it only costs forced re-opens later.
func raiseFileLimit(want uint64) error {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return err
	}
	if lim.Cur >= want {
		return nil
	}
	if want > lim.Max {
		want = lim.Max
	}
	lim.Cur = want
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &lim)
}
