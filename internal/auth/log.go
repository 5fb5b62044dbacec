package auth

import "github.com/decred/slog"

// log is the package-level subsystem logger. It performs no logging by
// default until UseLogger is called.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}
