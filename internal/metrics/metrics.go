// Package metrics is a thin facade over process-wide counters: a Recorder
// interface, a no-op default so the core compiles and runs cleanly without
// any metrics backend wired in, and an optional Prometheus-backed
// implementation for callers that want one. Metric *registration* is kept
// out of pkg/jsonrpc and pkg/protocol themselves: pkg/protocol only sees the
// Recorder interface, and pkg/jsonrpc does not use this package at all.
package metrics

// Recorder is the set of counters for JSON-RPC calls and the protocol
// pipeline. The pipeline reports its packet and ack counters here; the RPC
// counters are not called by pkg/jsonrpc, whose Client reports attempts only
// through its OnAttempt hook. AckResult/packet outcomes are observed
// opaquely by name — the core doesn't interpret them, only counts them.
type Recorder interface {
	// RPCAttempt records one JSON-RPC HTTP attempt, including retries.
	RPCAttempt(method string, retryNumber int, failed bool)
	// RPCRetriesExhausted records a call whose retry policy returned
	// NoRetry after at least one failure.
	RPCRetriesExhausted(method string)

	// AckProcessed is called once per inbound ack, tagged with the
	// AckProcessor outcome kind (e.g. "sender", "relayer_winning",
	// "relayer_losing").
	AckProcessed(outcome string)
	// PacketReplayDetected is called whenever MsgIn's packet processor
	// reports a replayed tag.
	PacketReplayDetected()
	// PacketTicketInvalid is called whenever MsgIn's packet processor
	// rejects a ticket.
	PacketTicketInvalid()
	// BloomSaveFailed is called when the periodic bloom-filter persistence
	// tick fails to save.
	BloomSaveFailed()
}

// Noop is a Recorder that does nothing; it is the default so every
// component in this module works without a metrics backend configured.
type Noop struct{}

func (Noop) RPCAttempt(string, int, bool) {}
func (Noop) RPCRetriesExhausted(string)   {}
func (Noop) AckProcessed(string)          {}
func (Noop) PacketReplayDetected()        {}
func (Noop) PacketTicketInvalid()         {}
func (Noop) BloomSaveFailed()             {}

var _ Recorder = Noop{}
