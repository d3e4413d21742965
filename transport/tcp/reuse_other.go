//go:build !(linux || darwin || freebsd || netbsd || openbsd)

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

// Windows SO_REUSEADDR semantics differ (port stealing); rely on the
// platform's default bind behaviour there.
func setReuseAddr(uintptr) error { return nil }

func reuseAddrEnabled(uintptr) (bool, error) { return true, nil }
