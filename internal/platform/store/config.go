package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
}

// PGConfig configures postgres connectivity
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 6
	PingTimeout    time.Duration // default 5s
}
