// Package dispatch implements the subscription dispatcher: a Subscriber
// that routes inbound bus frames to per-id, per-category, and catch-all
// handlers filtered by source/entity, runs periodic and call-once tasks,
// maintains the peer registry from Announce/EntityList/EntityInfo
// traffic, and stops on an Abort addressed to the local src.
package dispatch

import (
	"errors"
	"sync"
	"time"

	satori "github.com/satori/go.uuid"

	"lsts.pt/imc/bus"
	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/log"
	"lsts.pt/imc/peers"
	"lsts.pt/imc/wire"
)

// ErrOutgoingBlocked is returned by Subscriber.Send while
// SetBlockOutgoing(true) is in effect: callers that check the return
// value can distinguish the policy discard from a genuine transport
// failure, and callers that ignore it get fire-and-forget discards.
var ErrOutgoingBlocked = errors.New("dispatch: outgoing blocked")

// SendFunc is how a dispatch callback emits messages. A Subscriber
// passes its own bound Send method to every Handler and
// periodic/call-once task it invokes; opts carries the optional
// src/src_ent/dst/dst_ent overrides.
type SendFunc func(msg *wire.Message, endian wire.Endian, opts wire.EncodeOptions) error

// Handler processes one inbound message, given a SendFunc it may use to
// reply. A non-nil error is logged by the Subscriber but never stops
// dispatch of subsequent handlers.
type Handler func(msg *wire.Message, send SendFunc) error

// PeriodicFunc is a periodic or call-once task body.
type PeriodicFunc func(send SendFunc)

// Filter narrows a subscription to messages from a specific source
// and/or entity. Src/SrcEnt are numeric forms for callers that already
// know the id; SrcName/SrcEntLabel are the textual forms, resolved
// against the peer registry at match time. A zero value (everything
// unset) matches any message.
type Filter struct {
	Src    *uint16
	SrcEnt *uint8

	SrcName     string
	SrcEntLabel string
}

// matches: a filter matches when its name components are either unset or
// resolve via the peer registry to the header's observed numeric ids,
// and any explicit numeric components agree. A name/label that fails to
// resolve is a non-match, not a wildcard.
func (f Filter) matches(h *wire.Header, reg *peers.Registry) bool {
	if h == nil {
		return f.Src == nil && f.SrcEnt == nil && f.SrcName == "" && f.SrcEntLabel == ""
	}
	if f.Src != nil && *f.Src != h.Src {
		return false
	}
	if f.SrcEnt != nil && *f.SrcEnt != h.SrcEnt {
		return false
	}
	if f.SrcName != "" {
		p, ok := reg.ByName(f.SrcName)
		if !ok || p.Src != h.Src {
			return false
		}
	}
	if f.SrcEntLabel != "" {
		p, ok := reg.BySrc(h.Src)
		if !ok {
			return false
		}
		id, ok := p.Entity(f.SrcEntLabel)
		if !ok || id != h.SrcEnt {
			return false
		}
	}
	return true
}

type subscription struct {
	handler Handler
	filter  Filter
}

// task is a scheduled periodic or call-once action the Subscriber's run
// loop fires on its own ticker, identified by a uuid so callers can
// Cancel it later.
type task struct {
	id       satori.UUID
	interval time.Duration // 0 for call-once
	fn       PeriodicFunc
	next     time.Time
}

// Subscriber is the single-threaded cooperative dispatcher driving one
// Bus: it owns the subscription table, the peer registry, and the
// periodic/call-once task schedule, and runs them all from one loop, so
// at most one callback executes at a time and delivery follows frame
// arrival order.
type Subscriber struct {
	b   *bus.Bus
	cat *catalog.Catalog
	cfg config.Bus

	mu         sync.Mutex
	byID       map[uint16][]subscription
	byCategory map[string][]subscription
	all        []subscription
	unknown    []UnknownHandler
	tasks      []*task

	peers    *peers.Registry
	localSrc uint16

	blockOutgoing bool

	abortCh chan struct{}
	done    chan struct{}
}

// UnknownHandler receives the Unknown envelope of a valid frame whose
// mgid the catalog does not recognize.
type UnknownHandler func(u *wire.Unknown, send SendFunc) error

// NewSubscriber wires a Subscriber to b, installs the built-in
// Abort/Announce/EntityList/EntityInfo handlers, and schedules the
// periodic EntityList(op=QUERY) task (at the first tick of Run and every
// cfg.EntityQueryInterval after that, plus one eager extra query after
// cfg.EntityQueryInitialDelay).
func NewSubscriber(b *bus.Bus, cat *catalog.Catalog, cfg config.Bus) *Subscriber {
	s := &Subscriber{
		b:          b,
		cat:        cat,
		cfg:        cfg,
		byID:       map[uint16][]subscription{},
		byCategory: map[string][]subscription{},
		peers:      peers.New(cfg),
		localSrc:   wire.DefaultSrc,
		abortCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.installBuiltins()
	s.schedulePeriodicEntityQuery()
	return s
}

// LocalSrc returns the source id this node considers its own, used by the
// built-in Abort handler to decide whether an Abort is addressed to it.
func (s *Subscriber) LocalSrc() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localSrc
}

// SetLocalSrc overrides the process-wide default source id for this
// Subscriber, for hosts running several logical nodes.
func (s *Subscriber) SetLocalSrc(src uint16) {
	s.mu.Lock()
	s.localSrc = src
	s.mu.Unlock()
}

// Peers returns the registry built from inbound Announce traffic.
func (s *Subscriber) Peers() *peers.Registry {
	return s.peers
}

// Send serializes and writes msg through this Subscriber's bus: exactly
// bus.Bus.Send plus the outgoing-block check, exposed here so callbacks
// that only hold a Subscriber (not its Bus) can still reply.
func (s *Subscriber) Send(msg *wire.Message, endian wire.Endian, opts wire.EncodeOptions) error {
	s.mu.Lock()
	blocked := s.blockOutgoing
	s.mu.Unlock()
	if blocked {
		return ErrOutgoingBlocked
	}
	if opts.Cat == nil {
		opts.Cat = s.cat
	}
	return s.b.Send(msg, endian, opts)
}

// SetBlockOutgoing toggles the outgoing-discard flag: while blocked,
// every Send through this Subscriber (including periodic/call-once task
// sends) fails fast with ErrOutgoingBlocked instead of reaching the bus.
func (s *Subscriber) SetBlockOutgoing(blocked bool) {
	s.mu.Lock()
	s.blockOutgoing = blocked
	s.mu.Unlock()
}

// Subscribe registers handler for messages whose type matches abbrev,
// optionally filtered.
func (s *Subscriber) Subscribe(abbrev string, filter Filter, handler Handler) {
	desc, ok := s.cat.ByAbbrev(abbrev)
	if !ok {
		log.Log.Warningf("dispatch: Subscribe to unknown message type %q ignored", abbrev)
		return
	}
	s.SubscribeID(desc.ID, filter, handler)
}

// SubscribeID registers handler by numeric message id; Subscribe
// resolves an abbrev to this.
func (s *Subscriber) SubscribeID(id uint16, filter Filter, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = append(s.byID[id], subscription{handler: handler, filter: filter})
}

// SubscribeUnknown registers handler for Unknown envelopes.
func (s *Subscriber) SubscribeUnknown(handler UnknownHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown = append(s.unknown, handler)
}

// SubscribeCategory registers handler for every message type in the
// given schema category (e.g. "CPU", "Sensors").
func (s *Subscriber) SubscribeCategory(category string, filter Filter, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCategory[category] = append(s.byCategory[category], subscription{handler: handler, filter: filter})
}

// SubscribeAll registers handler for every inbound message of any type.
func (s *Subscriber) SubscribeAll(filter Filter, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, subscription{handler: handler, filter: filter})
}

// Periodic schedules fn to run at the next tick after Run starts and
// every interval thereafter, returning a uuid identifying the task for
// Cancel.
func (s *Subscriber) Periodic(interval time.Duration, fn PeriodicFunc) satori.UUID {
	return s.schedule(interval, fn)
}

// CallOnce schedules fn to run exactly once after delay.
func (s *Subscriber) CallOnce(delay time.Duration, fn PeriodicFunc) satori.UUID {
	t := &task{id: newTaskID(), interval: 0, fn: fn, next: time.Now().Add(delay)}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t.id
}

func (s *Subscriber) schedule(interval time.Duration, fn PeriodicFunc) satori.UUID {
	t := &task{id: newTaskID(), interval: interval, fn: fn, next: time.Now()}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t.id
}

func newTaskID() satori.UUID {
	return satori.NewV4()
}

// Cancel removes a previously scheduled periodic or call-once task.
func (s *Subscriber) Cancel(id satori.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.id == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Run drives the dispatch loop until Abort fires, Stop is called, or the
// bus hits end-of-stream: it drains the bus's inbound channel, routes
// each frame to matching subscriptions, and fires due tasks on a fixed
// tick. Run may be called again after a Stop (PrintInformation relies on
// this), so the stop channel is re-armed on entry.
func (s *Subscriber) Run() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.done = make(chan struct{})
	default:
	}
	done := s.done
	s.mu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	inbound := s.b.Inbound()
	errs := s.b.Errs()

	for {
		select {
		case <-done:
			return
		case <-s.abortCh:
			log.Log.Notice("dispatch: received Abort, stopping")
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			if in.Message != nil {
				s.route(in.Message)
			}
			if in.Unknown != nil {
				s.routeUnknown(in.Unknown)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Log.Debugf("dispatch: bus error: %s", err)
		case now := <-ticker.C:
			s.runDueTasks(now)
		}
	}
}

// Stop ends the Run loop without going through the Abort path. Safe to
// call repeatedly and from within a callback.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Subscriber) route(msg *wire.Message) {
	s.mu.Lock()
	subs := append([]subscription{}, s.byID[msg.Desc.ID]...)
	subs = append(subs, s.byCategory[msg.Desc.Category]...)
	subs = append(subs, s.all...)
	s.mu.Unlock()

	for _, sub := range subs {
		if !sub.filter.matches(msg.Header, s.peers) {
			continue
		}
		if err := sub.handler(msg, s.Send); err != nil {
			log.Log.Errorf("dispatch: handler for %s: %s", msg.Abbrev(), err)
		}
	}
}

func (s *Subscriber) routeUnknown(u *wire.Unknown) {
	s.mu.Lock()
	handlers := append([]UnknownHandler{}, s.unknown...)
	s.mu.Unlock()

	for _, h := range handlers {
		if err := h(u, s.Send); err != nil {
			log.Log.Errorf("dispatch: unknown-message handler for mgid %d: %s", u.Mgid, err)
		}
	}
}

func (s *Subscriber) runDueTasks(now time.Time) {
	s.mu.Lock()
	due := make([]*task, 0)
	remaining := s.tasks[:0]
	for _, t := range s.tasks {
		if !now.Before(t.next) {
			due = append(due, t)
			if t.interval > 0 {
				t.next = now.Add(t.interval)
				remaining = append(remaining, t)
			}
		} else {
			remaining = append(remaining, t)
		}
	}
	s.tasks = remaining
	s.mu.Unlock()

	for _, t := range due {
		t.fn(s.Send)
	}
}

func (s *Subscriber) schedulePeriodicEntityQuery() {
	interval := s.cfg.EntityQueryInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	initial := s.cfg.EntityQueryInitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	s.CallOnce(initial, s.sendEntityListQuery)
	s.Periodic(interval, s.sendEntityListQuery)
}

// sendEntityListQuery emits the EntityList(op=QUERY, list="") discovery
// probe.
func (s *Subscriber) sendEntityListQuery(send SendFunc) {
	desc, ok := s.cat.ByAbbrev("EntityList")
	if !ok {
		return
	}
	opField := desc.FieldByName("op")
	if opField == nil || opField.Enum == nil {
		return
	}
	queryValue, ok := opField.Enum.ValueOf["QUERY"]
	if !ok {
		return
	}
	msg, err := wire.NewMessage(desc, map[string]interface{}{opField.Name: queryValue})
	if err == nil {
		err = msg.ZeroFill()
	}
	if err != nil {
		log.Log.Warningf("dispatch: building periodic EntityList query: %s", err)
		return
	}
	if err := send(msg, wire.Big, wire.EncodeOptions{Cat: s.cat}); err != nil {
		log.Log.Debugf("dispatch: periodic EntityList query send failed: %s", err)
	}
}
