// Package bus implements the async message bus: a resynchronizing frame
// reader loop over a transport.Transport and a writer loop that
// serializes outgoing Encode calls. Each loop runs in its own goroutine;
// the dispatcher consumes decoded frames from one goroutine. The
// out-of-process worker mode layers the same loops over a
// transport.Process pipe pair instead of changing the loop shape.
package bus

import (
	"sync"
	"time"

	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/log"
	"lsts.pt/imc/transport"
	"lsts.pt/imc/wire"
)

// Inbound is one fully decoded frame or, for an unrecognized mgid, its
// preserved Unknown envelope.
type Inbound struct {
	Message *wire.Message
	Unknown *wire.Unknown
}

// Bus couples one transport.Transport to the catalog it decodes against,
// running a resynchronizing reader loop and a serialized writer loop.
// A Bus has no subscription/dispatch logic of its own; dispatch.Subscriber
// drives it.
type Bus struct {
	t   transport.Transport
	cat *catalog.Catalog
	cfg config.Bus

	inbound chan Inbound
	errs    chan error

	writeMu  sync.Mutex
	outgoing chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Bus's reader loop over t. Inbound frames and resync
// events are delivered on the channels returned by Inbound()/Errs();
// callers must drain Inbound or the reader loop stalls (Errs is
// best-effort and may drop when nobody listens).
func New(t transport.Transport, cat *catalog.Catalog, cfg config.Bus) *Bus {
	b := &Bus{
		t:       t,
		cat:     cat,
		cfg:     cfg,
		inbound: make(chan Inbound, 64),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// NewQueued is like New but runs Send asynchronously: it enqueues the
// encoded frame and returns immediately, while a single background loop
// drains the queue and writes to the transport. Callbacks that send from
// inside the dispatch loop never block on the link this way.
func NewQueued(t transport.Transport, cat *catalog.Catalog, cfg config.Bus) *Bus {
	b := New(t, cat, cfg)
	b.outgoing = make(chan []byte, 256)
	b.startQueuedWriter(b.outgoing)
	return b
}

// NewProcess launches an I/O worker as a child process and returns a
// queued Bus over its stdio byte channel, decoupling user callbacks from
// transport stalls. It blocks until the worker writes its single ready
// byte, so the returned Bus is immediately usable.
func NewProcess(cat *catalog.Catalog, cfg config.Bus, name string, args ...string) (*Bus, error) {
	p, err := transport.StartProcess(name, args...)
	if err != nil {
		return nil, err
	}
	if err := p.Handshake(5 * time.Second); err != nil {
		p.Close()
		return nil, err
	}
	return NewQueued(p, cat, cfg), nil
}

// Inbound returns the channel of successfully decoded frames.
func (b *Bus) Inbound() <-chan Inbound {
	return b.inbound
}

// Errs returns the channel of resync events and transport read/write
// errors. The reader loop keeps running after a resync event; after a
// read error it sends that error and exits.
func (b *Bus) Errs() <-chan error {
	return b.errs
}

// Send serializes msg and writes it to the transport, building its
// header from process-wide defaults unless msg already carries one.
func (b *Bus) Send(msg *wire.Message, endian wire.Endian, opts wire.EncodeOptions) error {
	if opts.Cat == nil {
		opts.Cat = b.cat
	}
	buf, err := wire.Encode(msg, endian, opts)
	if err != nil {
		return err
	}
	if b.outgoing != nil {
		select {
		case b.outgoing <- buf:
			return nil
		case <-b.done:
			return transport.ErrEOF
		}
	}
	return b.write(buf)
}

func (b *Bus) write(buf []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err := b.t.Write(buf)
	return err
}

// Close shuts down the underlying transport, which unblocks the reader
// loop's pending Read and lets it exit.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.t.Close()
		close(b.done)
		// outgoing stays open: a racing Send selects the closed done
		// channel instead, and the writer goroutine exits through done.
	})
	return err
}

// readLoop implements the resynchronizing framer: it never discards
// bytes belonging to a frame it has already validated, and on an invalid
// prefix it advances by a single byte, so a
// frame is found no matter what offset (odd or even) it starts at inside
// a burst of garbage. A sync-valid prefix that fails its CRC advances by
// the sync pair, bounding the damage of a corrupted frame to rescanning
// its own size+22 bytes. On end-of-stream the loop gives any queued
// writer a bounded grace period to flush, then closes the inbound
// channel, which is the EOF sentinel downstream consumers observe.
func (b *Bus) readLoop() {
	defer close(b.inbound)
	defer close(b.errs)
	defer b.drainOutgoing()

	var buf []byte
	read := make([]byte, 4096)

	for {
		select {
		case <-b.done:
			return
		default:
		}

		n, err := b.t.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
		}
		if err != nil {
			if err != transport.ErrEOF {
				b.sendErr(err)
			}
			return
		}

		for {
			consumed, ok := b.tryDecode(buf)
			if !ok {
				break
			}
			buf = buf[consumed:]
		}
	}
}

// tryDecode attempts exactly one decode (or one minimal advance) from
// the front of buf, returning the number of leading bytes to drop and
// whether it made progress (false means "need more bytes, try again
// after the next Read").
func (b *Bus) tryDecode(buf []byte) (int, bool) {
	if len(buf) < catalog.HeaderSize+catalog.FooterSize {
		return 0, false
	}
	endian, ok := wire.DetectEndian(buf, b.cat.SyncWord)
	if !ok {
		b.sendErr(errResync{reason: "invalid sync word"})
		return 1, true
	}

	msg, unknown, consumed, err := wire.Decode(buf, b.cat, false)
	if err != nil {
		// Could be a genuine CRC failure, or simply not enough bytes
		// buffered yet for the frame's declared size; only the former
		// is a resync event. Distinguish by re-checking whether the
		// declared frame length even fits in what we have.
		if !frameLengthFits(buf, endian) {
			return 0, false
		}
		log.Log.Debugf("bus: decode failed (%s), discarding sync pair", err)
		b.sendErr(errResync{reason: err.Error()})
		return 2, true
	}

	select {
	case b.inbound <- Inbound{Message: msg, Unknown: unknown}:
	case <-b.done:
	}
	return consumed, true
}

func frameLengthFits(buf []byte, endian wire.Endian) bool {
	if len(buf) < catalog.HeaderSize {
		return false
	}
	// Header.Size sits at the same offset regardless of endianness and
	// is read in the byte order the sync word identified.
	size := int(buf[4])<<8 | int(buf[5])
	if endian == wire.Little {
		size = int(buf[5])<<8 | int(buf[4])
	}
	return len(buf) >= catalog.HeaderSize+size+catalog.FooterSize
}

// errResync reports a non-fatal framing event the reader loop recovered
// from by advancing past a byte pair.
type errResync struct {
	reason string
}

func (e errResync) Error() string {
	return "resync: " + e.reason
}

// drainOutgoing gives the queued writer loop up to cfg.ResyncGrace to
// flush whatever Send already enqueued before shutdown. A Bus without a
// queue has nothing to wait for.
func (b *Bus) drainOutgoing() {
	if b.outgoing == nil {
		return
	}
	grace := b.cfg.ResyncGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	deadline := time.Now().Add(grace)
	for len(b.outgoing) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func (b *Bus) sendErr(err error) {
	select {
	case b.errs <- err:
	default:
		// errs is a bounded channel of best-effort diagnostics; drop
		// rather than block the reader loop if nobody's listening.
	}
}

// startQueuedWriter drains queue and writes each frame to the transport.
// The channel receive is the wake-up; the cfg.WriterIdlePoll timer is
// only a liveness backstop.
func (b *Bus) startQueuedWriter(queue <-chan []byte) {
	poll := b.cfg.WriterIdlePoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	go func() {
		for {
			select {
			case <-b.done:
				return
			case buf, ok := <-queue:
				if !ok {
					return
				}
				if err := b.write(buf); err != nil {
					b.sendErr(err)
				}
			case <-time.After(poll):
			}
		}
	}()
}
