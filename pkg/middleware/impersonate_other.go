//go:build !unix

package middleware

import "errors"

// impersonateOS switches no uid/gid on non-POSIX platforms and always
// returns an error; UNIX_E impersonation is fundamentally a POSIX uid/gid
// feature (spec §9).
func impersonateOS(string) error {
	return errors.New("middleware: UNIX_E impersonation is unsupported on this platform")
}
