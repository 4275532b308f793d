// Package metrics provides the Prometheus collectors of the data plane.
package metrics

import "time"

// ConsumerName is the name the dataplane collector registers on the
// event bus with.
const ConsumerName = "metrics"

// Label value constants used for metric labels.
const (
	// DirectionProduce labels bytes written into a buffer.
	DirectionProduce = "produce"
	// DirectionConsume labels bytes read out of a buffer.
	DirectionConsume = "consume"

	StatAvg      = "avg"
	StatPeak     = "peak"
	StatCapacity = "capacity"
	StatUsed     = "used"

	// FaultXrun labels copies that found no data or no space.
	FaultXrun = "xrun"
	// FaultError labels every other failed copy.
	FaultError = "error"

	OpInvalidate = "invalidate"
	OpWriteback  = "writeback"
)

// Time constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
	// DefaultSampleInterval is how often sampled gauges are refreshed.
	DefaultSampleInterval = time.Second
)
