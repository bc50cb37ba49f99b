package ports

import (
	"context"

	"github.com/IPrometheusI/solar-daq/internal/domain"
)

// TelemetrySink delivers points to the remote time-series store. Send never
// panics past its boundary; the returned error is for the caller to log,
// local durability must not depend on it.
type TelemetrySink interface {
	Send(ctx context.Context, p domain.TelemetryPoint) error
	Close()
}
