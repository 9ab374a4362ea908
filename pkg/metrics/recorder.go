package metrics

import "time"

// Metric names recorded by the settlement engine
const (
	FlowsTotal          = "settlement_flows"
	TxSubmissionsTotal  = "chain_tx_submissions"
	ConfirmWait         = "confirm_wait"
	HTTPRequestDuration = "http_request"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
