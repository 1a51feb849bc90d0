// Package protocol implements the concurrent message/acknowledgement
// pipeline: four joined streams (incoming/outgoing packets, incoming/
// outgoing acks) driven through a packet processor, an ack processor, and a
// replay-detecting tag filter. The packet wire format, the Bloom filter's
// internal representation, and the signer/wallet are all out of scope here
// — this package only defines the collaborator contracts it calls through.
package protocol

// PeerID identifies a peer/relay on the mixnet. Its concrete encoding
// (a public key, a libp2p peer id, …) is a collaborator concern.
type PeerID string

// Acknowledgement is an opaque, already-signed acknowledgement payload.
// Constructing and verifying one is entirely a PacketKeypair/AckProcessor
// concern — the pipeline only moves these bytes between channels.
type Acknowledgement []byte

// ApplicationData is the payload delivered to the local application on a
// terminal Receive, or submitted by the application on the way out.
type ApplicationData []byte

// Routing carries whatever hint the embedder's routing resolver attaches to
// an outbound send; the pipeline never inspects it, only threads it through
// to PacketProcessor.Send.
type Routing struct {
	Hops []PeerID
}

// PacketKeypair is the local node's packet-layer signing identity. It is
// consumed, never implemented, by this core.
type PacketKeypair interface {
	// RandomAcknowledgement produces a validly-signed, content-random
	// acknowledgement. MsgIn uses this to answer a peer even when their
	// packet was malformed or rejected, so every inbound frame gets
	// exactly one ack regardless of outcome.
	RandomAcknowledgement() (Acknowledgement, error)
}

// PacketConfig bundles the local packet keypair and whatever policy
// (ticket pricing, max hop count, …) PacketProcessor implementations need;
// those policy fields are entirely a collaborator concern and are not
// named here.
type PacketConfig struct {
	Keypair PacketKeypair
}

// PeerFrame is a raw wire frame exchanged with a single peer, used for both
// inbound and outbound traffic on the msg channel.
type PeerFrame struct {
	Peer PeerID
	Data []byte
}

// AckMessage is a single acknowledgement addressed to Peer, used for both
// inbound and outbound traffic on the ack channel.
type AckMessage struct {
	Peer PeerID
	Ack  Acknowledgement
}
