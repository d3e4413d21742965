//go:build linux || darwin || freebsd || netbsd || openbsd

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import "golang.org/x/sys/unix"

func setReuseAddr(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// reuseAddrEnabled reads the option back, for tests.
func reuseAddrEnabled(fd uintptr) (bool, error) {
	v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	return v != 0, err
}
