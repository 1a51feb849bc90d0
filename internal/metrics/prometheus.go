package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus-label constants.
const (
	labelMethod  = "method"
	labelOutcome = "outcome"
)

// Prom is a Recorder backed by Prometheus vectors. It takes an explicit
// prometheus.Registerer so embedding applications control registration
// themselves — this core never touches the default global registry.
type Prom struct {
	rpcAttempts         *prometheus.CounterVec
	rpcRetriesExhausted *prometheus.CounterVec
	ackProcessed        *prometheus.CounterVec
	packetReplay        prometheus.Counter
	packetTicketInvalid prometheus.Counter
	bloomSaveFailed     prometheus.Counter
}

// NewProm builds a Prom recorder and registers its vectors into reg.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	p := &Prom{
		rpcAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixcore_jsonrpc_attempts_total",
			Help: "Number of JSON-RPC HTTP attempts made, including retries.",
		}, []string{labelMethod, labelOutcome}),
		rpcRetriesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixcore_jsonrpc_retries_exhausted_total",
			Help: "Number of JSON-RPC calls that exhausted their retry policy.",
		}, []string{labelMethod}),
		ackProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixcore_protocol_acks_processed_total",
			Help: "Number of acknowledgements processed, by outcome.",
		}, []string{labelOutcome}),
		packetReplay: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixcore_protocol_packet_replays_total",
			Help: "Number of inbound packets rejected as replayed tags.",
		}),
		packetTicketInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixcore_protocol_packet_ticket_invalid_total",
			Help: "Number of inbound packets rejected for ticket validation failure.",
		}),
		bloomSaveFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mixcore_protocol_bloom_save_failed_total",
			Help: "Number of failed periodic bloom-filter persistence attempts.",
		}),
	}
	for _, c := range []prometheus.Collector{
		p.rpcAttempts, p.rpcRetriesExhausted, p.ackProcessed,
		p.packetReplay, p.packetTicketInvalid, p.bloomSaveFailed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prom) RPCAttempt(method string, _ int, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	p.rpcAttempts.WithLabelValues(method, outcome).Inc()
}

func (p *Prom) RPCRetriesExhausted(method string) {
	p.rpcRetriesExhausted.WithLabelValues(method).Inc()
}

func (p *Prom) AckProcessed(outcome string) {
	p.ackProcessed.WithLabelValues(outcome).Inc()
}

func (p *Prom) PacketReplayDetected() { p.packetReplay.Inc() }
func (p *Prom) PacketTicketInvalid()  { p.packetTicketInvalid.Inc() }
func (p *Prom) BloomSaveFailed()      { p.bloomSaveFailed.Inc() }

var _ Recorder = (*Prom)(nil)
