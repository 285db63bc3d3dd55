//go:build unix

package middleware

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// impersonateOS performs the §4.6.2 UNIX_E sequence: seteuid(real_uid) to
// restore privilege, setegid(pw.gid), seteuid(pw.uid). golang.org/x/sys is
// already an indirect teacher dependency (pulled in by modernc.org/sqlite);
// this gives it a direct caller the way the spec's §9 design note
// envisions for the impersonation path.
func impersonateOS(username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parse uid %s: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parse gid %s: %w", u.Gid, err)
	}

	if err := unix.Seteuid(unix.Getuid()); err != nil {
		return fmt.Errorf("restore euid: %w", err)
	}
	if err := unix.Setegid(gid); err != nil {
		return fmt.Errorf("setegid %d: %w", gid, err)
	}
	if err := unix.Seteuid(uid); err != nil {
		return fmt.Errorf("seteuid %d: %w", uid, err)
	}
	return nil
}
