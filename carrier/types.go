package carrier

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a resolved carrier stays cached.
const DefaultTTL = 24 * time.Hour

// ErrLookupUnavailable is the internal failure of the reference service.
// Lookup absorbs it; it is only visible to Logger output.
var ErrLookupUnavailable = errors.New("carrier: lookup unavailable")

// Source identifies where a carrier value came from.
type Source string

const (
	SourceFallback Source = "fallback"
	SourceRemote   Source = "remote"
	SourceGeneric  Source = "generic"
)

// Info describes a carrier network.
type Info struct {
	MCCMNC      string `json:"mccmnc"`
	CarrierName string `json:"carrierName"`
	CountryCode string `json:"countryCode"`
	Source      Source `json:"source"`
	Cached      bool   `json:"cached"`
}

// Generic synthesizes the value used when no better data is available.
func Generic(mccmnc string) Info {
	return Info{
		MCCMNC:      mccmnc,
		CarrierName: "Network " + mccmnc,
		CountryCode: CountryForMCC(mccmnc),
		Source:      SourceGeneric,
	}
}

// Store persists carrier entries with a time-to-live.
type Store interface {
	Get(ctx context.Context, mccmnc string) (Info, bool, error)
	Set(ctx context.Context, mccmnc string, info Info, ttl time.Duration) error
	Delete(ctx context.Context, mccmnc string) error
	Clear(ctx context.Context) error
}

// Logger is an interface for optional logging.
type Logger interface {
	Printf(format string, args ...any)
}

// Metrics receives the source that answered each lookup ("cache" for hits).
type Metrics interface {
	CarrierLookup(source string)
}
