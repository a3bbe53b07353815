//go:build linux

package host

import (
	"golang.org/x/sys/unix"
)

func uname() Info {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return Info{}
	}

	return Info{
		KernelRelease: unix.ByteSliceToString(u.Release[:]),
		Machine:       unix.ByteSliceToString(u.Machine[:]),
	}
}
