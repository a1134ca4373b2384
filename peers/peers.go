// Package peers implements the peer registry: a name <-> source-id
// mapping kept current by inbound Announce traffic, plus a bounded
// entity label/id map per peer.
package peers

import (
	lru "github.com/hashicorp/golang-lru"

	"lsts.pt/imc/config"
)

// Peer is everything the registry knows about one IMC node: its
// advertised system name, its current source id (which Announce traffic
// can change, e.g. after a reconnect), and its entity label/id map.
type Peer struct {
	Name     string
	Src      uint16
	Entities *lru.Cache // entity label (string) -> entity id (uint8)
}

// Registry tracks peers by name and by source id; an Announce for a
// known name that carries a new src re-keys the src index while
// preserving the peer's entity map.
type Registry struct {
	cfg config.Bus

	byName map[string]*Peer
	bySrc  map[uint16]*Peer
}

// New creates an empty registry tuned by cfg.MaxEntitiesPerPeer.
func New(cfg config.Bus) *Registry {
	return &Registry{
		cfg:    cfg,
		byName: map[string]*Peer{},
		bySrc:  map[uint16]*Peer{},
	}
}

// Announce records or updates a peer's (name, src) pair from an inbound
// Announce message. Three cases:
//   - name already known: re-key the src index if it changed, keeping the
//     existing entity map.
//   - src was already seen pre-Announce (via Ensure) but has no name
//     yet: promote that entry to the name index, preserving every entity
//     it already learned.
//   - neither known: a brand-new peer with a fresh, bounded entity map.
func (r *Registry) Announce(name string, src uint16) *Peer {
	if p, ok := r.byName[name]; ok {
		if p.Src != src {
			delete(r.bySrc, p.Src)
			p.Src = src
			r.bySrc[src] = p
		}
		return p
	}

	if p, ok := r.bySrc[src]; ok && p.Name == "" {
		p.Name = name
		r.byName[name] = p
		return p
	}

	entities, _ := lru.New(r.maxEntities())
	p := &Peer{Name: name, Src: src, Entities: entities}
	r.byName[name] = p
	r.bySrc[src] = p
	return p
}

// Ensure returns the peer currently indexed under src, creating an
// unnamed placeholder if none exists yet. Used by handlers that learn
// per-entity facts (EntityInfo, EntityList) about a source that hasn't
// sent its Announce yet.
func (r *Registry) Ensure(src uint16) *Peer {
	if p, ok := r.bySrc[src]; ok {
		return p
	}
	entities, _ := lru.New(r.maxEntities())
	p := &Peer{Src: src, Entities: entities}
	r.bySrc[src] = p
	return p
}

func (r *Registry) maxEntities() int {
	if r.cfg.MaxEntitiesPerPeer <= 0 {
		return 256
	}
	return r.cfg.MaxEntitiesPerPeer
}

// ByName looks up a peer by its advertised system name.
func (r *Registry) ByName(name string) (*Peer, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// BySrc looks up a peer by its current source id.
func (r *Registry) BySrc(src uint16) (*Peer, bool) {
	p, ok := r.bySrc[src]
	return p, ok
}

// SetEntity records entity label as the given id for peer, evicting the
// least-recently-used entry once the per-peer bound is exceeded.
func (p *Peer) SetEntity(label string, id uint8) {
	p.Entities.Add(label, id)
}

// Entity resolves an entity label to its id for this peer, if known.
func (p *Peer) Entity(label string) (uint8, bool) {
	v, ok := p.Entities.Get(label)
	if !ok {
		return 0, false
	}
	return v.(uint8), true
}
