// Package types defines the boundary interfaces between sitekit and the
// embedding host application.
package types

import (
	"context"
	"time"
)

// PlatformHandle is the opaque host-provided platform/session object
// supplied at initialization time. sitekit only reads from it and never
// mutates it; ownership stays with the host.
type PlatformHandle interface {
	// SiteURL returns the absolute URL of the primary site the host is
	// bound to. Used for environment detection and platform-native
	// transport selection.
	SiteURL() string

	// AuthToken returns a bearer token for the given target resource
	// identifier. Called per request on the token-authenticated transport
	// path.
	AuthToken(ctx context.Context, resource string) (string, error)
}

// MetricsRecorder receives operation timings. Satisfied by
// performance.Tracker; defined here so leaf packages do not depend on the
// tracker implementation.
type MetricsRecorder interface {
	Record(name string, duration time.Duration, success bool)
}
