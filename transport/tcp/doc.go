// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp opens the listening socket for hioload-serve with address
// reuse enabled, so a restarted server can rebind a port still in TIME_WAIT.
package tcp
