// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration loading, hot-reload hooks and Prometheus telemetry for hioload-serve.
//
// Provides:
//   - Layered configuration: built-in defaults, optional YAML file, HIOLOAD_* environment
//   - Reload hooks fired when the watched config file changes
//   - Process-wide metrics for connections, requests, frames and broadcasts
package control
