package config

import "time"

// DefaultAddr is the default listen address for the debug server.
const DefaultAddr = "0.0.0.0:8080"

// DefaultHeartbeatInterval is the ping interval when heartbeat_ms is unset.
const DefaultHeartbeatInterval = 5000 * time.Millisecond
