package observability

import "github.com/tphakala/dspcore/internal/logger"

// log is the module logger for the endpoint and sampler.
var log = logger.Global().Module(ComponentObservability)
