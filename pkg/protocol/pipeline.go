package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaymesh/mixcore/internal/metrics"
)

// ProcessTag names one of the pipeline's supervised goroutines.
type ProcessTag string

const (
	ProcessAckIn        ProcessTag = "ack_in"
	ProcessAckOut       ProcessTag = "ack_out"
	ProcessMsgIn        ProcessTag = "msg_in"
	ProcessMsgOut       ProcessTag = "msg_out"
	ProcessBloomPersist ProcessTag = "bloom_persist"
	// ProcessMixer is the handle for the pipeline's own supervision loop
	// (the one draining errCh and waiting on the other tasks) — nothing
	// in the dataflow names a separate mixing task, so the supervisor
	// itself takes this tag.
	ProcessMixer ProcessTag = "mixer"
)

// ProcessHandles is the tagged set of running pipeline tasks, returned by
// Pipeline.Run. Shutdown cancels every task; Wait blocks until they have
// all exited.
type ProcessHandles struct {
	cancel context.CancelFunc
	done   map[ProcessTag]chan struct{}
	errCh  chan error
	// fanout tracks every per-item goroutine the dispatcher loops spawn
	// (handleInboundAck/handleInboundFrame/handleOutboundAck/handleDownlink),
	// which the top-level done channels alone do not cover.
	fanout *sync.WaitGroup
}

// Shutdown requests every task stop; it does not block.
func (h *ProcessHandles) Shutdown() { h.cancel() }

// Done returns a channel closed when the named task has exited.
func (h *ProcessHandles) Done(tag ProcessTag) <-chan struct{} { return h.done[tag] }

// Wait blocks until every task, including in-flight per-item handler
// goroutines spawned by the dispatcher loops, has exited.
func (h *ProcessHandles) Wait() {
	for _, ch := range h.done {
		<-ch
	}
	h.fanout.Wait()
}

// Errors returns the pipeline's error channel. No task sends on it: every
// task logs its failures and keeps running. It is closed once every task
// has exited.
func (h *ProcessHandles) Errors() <-chan error { return h.errCh }

// Stats is a point-in-time snapshot of pipeline activity counters.
type Stats struct {
	PacketsReceived  uint64
	PacketsForwarded uint64
	PacketsRejected  uint64
	AcksSent         uint64
	AcksReceived     uint64
}

type counters struct {
	received  atomic.Uint64
	forwarded atomic.Uint64
	rejected  atomic.Uint64
	acksSent  atomic.Uint64
	acksRecvd atomic.Uint64
}

// Config wires the pipeline to its channel endpoints and collaborators.
type Config struct {
	WireAck WireAck
	WireMsg WireMsg
	API     API

	PacketProcessor PacketProcessor
	AckProcessor    AckProcessor
	Keypair         PacketKeypair

	// BloomFilter is optional; when nil, BloomPersist is not spawned.
	BloomFilter TagFilter
	// BloomPersistInterval defaults to 90s.
	BloomPersistInterval time.Duration

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

func (c *Config) validate() error {
	if c.WireAck.Outbound == nil || c.WireAck.Inbound == nil {
		return errors.New("protocol: WireAck requires both Outbound and Inbound channels")
	}
	if c.WireMsg.Outbound == nil || c.WireMsg.Inbound == nil {
		return errors.New("protocol: WireMsg requires both Outbound and Inbound channels")
	}
	if c.API.Outbound == nil || c.API.Inbound == nil {
		return errors.New("protocol: API requires both Outbound and Inbound channels")
	}
	if c.PacketProcessor == nil {
		return errors.New("protocol: PacketProcessor is required")
	}
	if c.AckProcessor == nil {
		return errors.New("protocol: AckProcessor is required")
	}
	if c.Keypair == nil {
		return errors.New("protocol: Keypair is required")
	}
	if c.BloomPersistInterval <= 0 {
		c.BloomPersistInterval = 90 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Pipeline joins the ack and packet streams: every inbound frame yields
// exactly one outbound ack, and every accepted frame either reaches the
// local application or is relayed further.
type Pipeline struct {
	cfg Config
	cnt counters
}

// New validates cfg and returns a Pipeline ready to Run.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg}, nil
}

// Stats returns a snapshot of the pipeline's activity counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		PacketsReceived:  p.cnt.received.Load(),
		PacketsForwarded: p.cnt.forwarded.Load(),
		PacketsRejected:  p.cnt.rejected.Load(),
		AcksSent:         p.cnt.acksSent.Load(),
		AcksReceived:     p.cnt.acksRecvd.Load(),
	}
}

// Run spawns the pipeline's supervised goroutines and returns immediately
// with handles to observe and stop them. Every top-level dispatcher is
// tracked by its done channel; every per-item handler goroutine a
// dispatcher fans out to is additionally tracked by a shared
// sync.WaitGroup (handles.fanout), matching collector.go's
// wg.Add(1)/defer wg.Done() idiom. The supervisor (ProcessMixer) waits on
// both before closing the internal ack-relay channel and errCh, so
// in-flight handlers never observe a closed channel mid-send.
func (p *Pipeline) Run(ctx context.Context) (*ProcessHandles, error) {
	runCtx, cancel := context.WithCancel(ctx)

	tags := []ProcessTag{ProcessAckIn, ProcessAckOut, ProcessMsgIn, ProcessMsgOut, ProcessMixer}
	if p.cfg.BloomFilter != nil {
		tags = append(tags, ProcessBloomPersist)
	}

	handles := &ProcessHandles{
		cancel: cancel,
		done:   make(map[ProcessTag]chan struct{}, len(tags)),
		errCh:  make(chan error, len(tags)),
		fanout: &sync.WaitGroup{},
	}
	for _, tag := range tags {
		handles.done[tag] = make(chan struct{})
	}

	// ackOutIn is the internal unbounded relay from MsgIn (the frames it
	// accepted and must ack) into AckOut, which actually talks to the
	// collaborator and puts the result on the wire.
	ackOutIn, ackOutOut := newUnboundedChan[AckMessage]()

	spawn := func(tag ProcessTag, fn func(context.Context)) {
		go func() {
			defer close(handles.done[tag])
			fn(runCtx)
		}()
	}

	spawn(ProcessAckIn, func(ctx context.Context) { p.runAckIn(ctx, handles.fanout) })
	spawn(ProcessAckOut, func(ctx context.Context) { p.runAckOut(ctx, ackOutOut, handles.fanout) })
	spawn(ProcessMsgIn, func(ctx context.Context) { p.runMsgIn(ctx, ackOutIn, handles.fanout) })
	spawn(ProcessMsgOut, func(ctx context.Context) { p.runMsgOut(ctx, handles.fanout) })
	if p.cfg.BloomFilter != nil {
		spawn(ProcessBloomPersist, func(ctx context.Context) {
			RunTicker(ctx, p.cfg.BloomPersistInterval, func(context.Context) error {
				if err := p.cfg.BloomFilter.Save(); err != nil {
					p.cfg.Metrics.BloomSaveFailed()
					return err
				}
				return nil
			}, p.cfg.Logger)
		})
	}

	// Mixer is the supervisor itself: it waits on every other task and on
	// every in-flight per-item handler, then closes the internal
	// ack-relay channel and errCh so Wait/Errors observe a clean,
	// fully-drained shutdown with no straggler able to send on a channel
	// that has already been closed.
	spawn(ProcessMixer, func(context.Context) {
		for _, tag := range tags {
			if tag == ProcessMixer {
				continue
			}
			<-handles.done[tag]
		}
		handles.fanout.Wait()
		close(ackOutIn)
		close(handles.errCh)
	})

	return handles, nil
}

func (p *Pipeline) runAckIn(ctx context.Context, fanout *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.cfg.WireAck.Inbound:
			if !ok {
				return
			}
			fanout.Add(1)
			go func() {
				defer fanout.Done()
				p.handleInboundAck(ctx, msg)
			}()
		}
	}
}

func (p *Pipeline) handleInboundAck(_ context.Context, msg AckMessage) {
	p.cnt.acksRecvd.Add(1)
	result, err := p.cfg.AckProcessor.Recv(msg.Peer, msg.Ack)
	if err != nil {
		p.cfg.Logger.Warn("ack recv failed", "peer", msg.Peer, "error", err)
		return
	}
	switch result.(type) {
	case AckResultSender:
		p.cfg.Metrics.AckProcessed("sender")
	case AckResultRelayerWinning:
		p.cfg.Metrics.AckProcessed("relayer_winning")
	case AckResultRelayerLosing:
		p.cfg.Metrics.AckProcessed("relayer_losing")
	default:
		p.cfg.Metrics.AckProcessed("unknown")
	}
}

func (p *Pipeline) runAckOut(ctx context.Context, in <-chan AckMessage, fanout *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			fanout.Add(1)
			go func() {
				defer fanout.Done()
				p.handleOutboundAck(ctx, msg)
			}()
		}
	}
}

func (p *Pipeline) handleOutboundAck(ctx context.Context, msg AckMessage) {
	wire, err := p.cfg.AckProcessor.Send(msg.Peer, msg.Ack)
	if err != nil {
		p.cfg.Logger.Warn("ack send failed", "peer", msg.Peer, "error", err)
		return
	}
	select {
	case p.cfg.WireAck.Outbound <- AckMessage{Peer: msg.Peer, Ack: wire}:
		p.cnt.acksSent.Add(1)
	case <-ctx.Done():
	}
}

func (p *Pipeline) runMsgIn(ctx context.Context, ackOut chan<- AckMessage, fanout *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.cfg.WireMsg.Inbound:
			if !ok {
				return
			}
			fanout.Add(1)
			go func() {
				defer fanout.Done()
				p.handleInboundFrame(ctx, frame, ackOut)
			}()
		}
	}
}

func (p *Pipeline) handleInboundFrame(ctx context.Context, frame PeerFrame, ackOut chan<- AckMessage) {
	op, err := p.cfg.PacketProcessor.Recv(frame.Peer, frame.Data)
	if err != nil {
		var perr *PacketError
		if errors.As(err, &perr) {
			switch perr.Kind {
			case PacketErrorReplay:
				p.cfg.Metrics.PacketReplayDetected()
			case PacketErrorTicketValidation:
				p.cfg.Metrics.PacketTicketInvalid()
			}
		}
		p.cnt.rejected.Add(1)
		p.cfg.Logger.Warn("packet rejected", "peer", frame.Peer, "error", err)

		randomAck, rerr := p.cfg.Keypair.RandomAcknowledgement()
		if rerr != nil {
			p.cfg.Logger.Error("failed to build random acknowledgement", "error", rerr)
			return
		}
		enqueueAck(ctx, ackOut, AckMessage{Peer: frame.Peer, Ack: randomAck})
		return
	}

	switch v := op.(type) {
	case ReceiveOperation:
		p.cnt.received.Add(1)
		select {
		case p.cfg.API.Outbound <- v.Data:
		case <-ctx.Done():
			return
		}
		enqueueAck(ctx, ackOut, AckMessage{Peer: v.Ack.Peer, Ack: v.Ack.Ack})
	case ForwardOperation:
		p.cnt.forwarded.Add(1)
		select {
		case p.cfg.WireMsg.Outbound <- v.Msg:
		case <-ctx.Done():
			return
		}
		enqueueAck(ctx, ackOut, AckMessage{Peer: v.Ack.Peer, Ack: v.Ack.Ack})
	default:
		p.cfg.Logger.Error("packet processor returned an unrecognized operation", "peer", frame.Peer)
	}
}

func (p *Pipeline) runMsgOut(ctx context.Context, fanout *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.cfg.API.Inbound:
			if !ok {
				return
			}
			fanout.Add(1)
			go func() {
				defer fanout.Done()
				p.handleDownlink(ctx, req)
			}()
		}
	}
}

func (p *Pipeline) handleDownlink(ctx context.Context, req DownlinkRequest) {
	nextHop, wire, err := p.cfg.PacketProcessor.Send(req.Data, req.Routing)
	if err != nil {
		req.Finalizer.Complete(fmt.Errorf("protocol: packet send failed: %w", err))
		return
	}
	select {
	case p.cfg.WireMsg.Outbound <- PeerFrame{Peer: nextHop, Data: wire}:
		req.Finalizer.Complete(nil)
	case <-ctx.Done():
		req.Finalizer.Complete(ctx.Err())
	}
}

func enqueueAck(ctx context.Context, ackOut chan<- AckMessage, msg AckMessage) {
	select {
	case ackOut <- msg:
	case <-ctx.Done():
	}
}

// newUnboundedChan returns a send-only/receive-only pair backed by a
// growing in-memory queue, so producers never block on a slow consumer —
// so a burst of acks to enqueue never stalls the goroutine producing them.
func newUnboundedChan[T any]() (chan<- T, <-chan T) {
	in := make(chan T)
	out := make(chan T)

	go func() {
		defer close(out)
		var queue []T
		for {
			if len(queue) == 0 {
				v, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, v)
				continue
			}
			select {
			case v, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, v)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()

	return in, out
}
