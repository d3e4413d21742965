// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// Listen binds addr (e.g. ":3000") on TCP with SO_REUSEADDR set before bind.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseControl}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", addr, err)
	}
	return ln, nil
}

// reuseControl runs on the raw socket before bind.
func reuseControl(_, _ string, rc syscall.RawConn) error {
	var sockErr error
	if err := rc.Control(func(fd uintptr) {
		sockErr = setReuseAddr(fd)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
	}
	return nil
}
