package protocol

// WireAck is the pipeline's ack-stream boundary: Outbound carries acks this
// node has produced, Inbound carries acks arriving from peers.
type WireAck struct {
	Outbound chan<- AckMessage
	Inbound  <-chan AckMessage
}

// WireMsg is the pipeline's packet-stream boundary: Outbound carries frames
// this node is sending or relaying, Inbound carries frames arriving from
// peers.
type WireMsg struct {
	Outbound chan<- PeerFrame
	Inbound  <-chan PeerFrame
}

// DownlinkRequest is one application-originated send: Data addressed via
// Routing, resolved by Finalizer once MsgOut has handed it to the packet
// processor (or failed to).
type DownlinkRequest struct {
	Data      ApplicationData
	Routing   Routing
	Finalizer *Finalizer
}

// API is the pipeline's local-application boundary: Outbound delivers
// payloads received for this node, Inbound carries the application's own
// outgoing requests.
type API struct {
	Outbound chan<- ApplicationData
	Inbound  <-chan DownlinkRequest
}
