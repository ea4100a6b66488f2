package livehub

import "sync/atomic"

// connectedGauge tracks live connections hub-wide. It is incremented only
// in registerClient and decremented only in unregisterClient, matching the
// invariant that the gauge moves exactly once per accept and once per
// disconnect regardless of how many channels a client joins
// (spec.md §4.5 "Client connection lifecycle").
var connectedGauge int64

// ConnectedCount returns the current live-connection gauge value.
func ConnectedCount() int64 { return atomic.LoadInt64(&connectedGauge) }
