package protocol

import "fmt"

// PacketErrorKind classifies why PacketProcessor rejected an inbound frame.
type PacketErrorKind int

const (
	// PacketErrorReplay means the frame's tag was already seen by the
	// TagFilter.
	PacketErrorReplay PacketErrorKind = iota
	// PacketErrorTicketValidation means the frame's payment/relay ticket
	// failed validation.
	PacketErrorTicketValidation
	// PacketErrorOther covers malformed frames, decryption failures, and
	// anything else the processor can't classify more specifically.
	PacketErrorOther
)

func (k PacketErrorKind) String() string {
	switch k {
	case PacketErrorReplay:
		return "replay"
	case PacketErrorTicketValidation:
		return "ticket_validation"
	case PacketErrorOther:
		return "other"
	default:
		return "unknown"
	}
}

// PacketError is returned by PacketProcessor.Recv when a frame is rejected.
// MsgIn still owes the sender exactly one acknowledgement even on rejection,
// so this is a plain classified error, not a fatal one.
type PacketError struct {
	Kind   PacketErrorKind
	Reason string
	Cause  error
}

func (e *PacketError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("protocol: packet rejected (%s)", e.Kind)
	}
	return fmt.Sprintf("protocol: packet rejected (%s): %s", e.Kind, e.Reason)
}

func (e *PacketError) Unwrap() error { return e.Cause }

// NewReplayError reports a tag the TagFilter has already seen.
func NewReplayError() *PacketError {
	return &PacketError{Kind: PacketErrorReplay, Reason: "tag already seen"}
}

// NewTicketValidationError reports a ticket that failed validation.
func NewTicketValidationError(reason string) *PacketError {
	return &PacketError{Kind: PacketErrorTicketValidation, Reason: reason}
}

// NewPacketError wraps an opaque processing failure (malformed frame,
// decryption failure, …) that doesn't fit a more specific kind.
func NewPacketError(reason string, cause error) *PacketError {
	return &PacketError{Kind: PacketErrorOther, Reason: reason, Cause: cause}
}

// AckTarget is the single acknowledgement a PacketProcessor hands back for
// every frame it accepts, win or lose — MsgIn owes the sending peer exactly
// one ack per frame received.
type AckTarget struct {
	Peer PeerID
	Ack  Acknowledgement
}

// RecvOperation is the discriminated result of PacketProcessor.Recv: either
// the frame terminates here (ReceiveOperation) or it must be relayed further
// (ForwardOperation).
type RecvOperation interface {
	isRecvOperation()
}

// ReceiveOperation means this node is the final recipient: Data goes to the
// local application and Ack goes back to the immediate sender.
type ReceiveOperation struct {
	Data ApplicationData
	Ack  AckTarget
}

func (ReceiveOperation) isRecvOperation() {}

// ForwardOperation means the frame must be relayed to another peer: Msg goes
// out on the msg-out stream and Ack goes back to the immediate sender.
type ForwardOperation struct {
	Msg PeerFrame
	Ack AckTarget
}

func (ForwardOperation) isRecvOperation() {}

// PacketProcessor builds outbound frames and decodes/relays inbound ones. It
// owns onion construction, decryption, tag extraction (and consulting the
// TagFilter), and ticket validation — none of which this package implements.
type PacketProcessor interface {
	// Send builds the wire frame for data addressed via routing and
	// reports the immediate next hop to send it to.
	Send(data ApplicationData, routing Routing) (nextHop PeerID, wire []byte, err error)
	// Recv decodes a frame received from peer, returning either a
	// terminal delivery or a further forward, or a *PacketError on
	// rejection.
	Recv(peer PeerID, wire []byte) (RecvOperation, error)
}
