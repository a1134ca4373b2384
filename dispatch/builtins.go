package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"lsts.pt/imc/log"
	"lsts.pt/imc/wire"
)

// installBuiltins wires the standing handlers every subscriber carries:
// Abort triggers shutdown, Announce feeds the peer registry, and
// EntityList/EntityInfo populate peers' entity maps.
func (s *Subscriber) installBuiltins() {
	s.Subscribe("Abort", Filter{}, s.handleAbort)
	s.Subscribe("Announce", Filter{}, s.handleAnnounce)
	s.Subscribe("EntityInfo", Filter{}, s.handleEntityInfo)
	s.Subscribe("EntityList", Filter{}, s.handleEntityList)
}

// handleAbort shuts the dispatch loop down, but only for an Abort
// addressed to this node's src: aborts aimed at other systems on a
// shared link pass through untouched.
func (s *Subscriber) handleAbort(msg *wire.Message, send SendFunc) error {
	if msg.Header == nil || msg.Header.Dst != s.LocalSrc() {
		return nil
	}
	log.Log.Noticef("received Abort from src 0x%04x, shutting down", headerSrc(msg))
	select {
	case <-s.abortCh:
	default:
		close(s.abortCh)
	}
	return nil
}

func (s *Subscriber) handleAnnounce(msg *wire.Message, send SendFunc) error {
	name, ok := msg.GetString("sys_name")
	if !ok {
		return nil
	}
	src := headerSrc(msg)
	s.peers.Announce(name, src)
	return nil
}

func (s *Subscriber) handleEntityInfo(msg *wire.Message, send SendFunc) error {
	label, ok := msg.GetString("label")
	if !ok {
		return nil
	}
	id, ok := msg.GetUint64("id")
	if !ok {
		return nil
	}
	// Ensure (not BySrc) so an EntityInfo arriving before this source's
	// Announce still gets recorded under its numeric src instead of
	// being dropped on the floor.
	s.peers.Ensure(headerSrc(msg)).SetEntity(label, uint8(id))
	return nil
}

// handleEntityList populates the per-peer entity label->id map from a
// REPORT's "label=id;label=id" list field. A QUERY needs no local
// bookkeeping. Malformed entries are skipped; a stray unparseable entry
// is not worth failing the whole report over.
func (s *Subscriber) handleEntityList(msg *wire.Message, send SendFunc) error {
	if !entityListIsReport(msg) {
		return nil
	}
	list, ok := msg.GetString("list")
	if !ok || list == "" {
		return nil
	}

	peer := s.peers.Ensure(headerSrc(msg))
	for _, entry := range strings.Split(list, ";") {
		label, idStr, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 8)
		if err != nil {
			continue
		}
		peer.SetEntity(label, uint8(id))
	}
	return nil
}

func entityListIsReport(msg *wire.Message) bool {
	opValue, ok := msg.GetUint64("op")
	if !ok {
		return false
	}
	fd := msg.Desc.FieldByName("op")
	if fd == nil || fd.Enum == nil {
		return false
	}
	sym, ok := fd.Enum.SymbolOf[int64(opValue)]
	return ok && sym == "REPORT"
}

func headerSrc(msg *wire.Message) uint16 {
	if msg.Header == nil {
		return 0
	}
	return msg.Header.Src
}

// PrintInformation suspends every user subscription and task, queries
// the link until the first Announce and EntityList report arrive, prints
// both, and restores the original registrations.
func (s *Subscriber) PrintInformation() {
	s.mu.Lock()
	savedByID := s.byID
	savedByCategory := s.byCategory
	savedAll := s.all
	savedUnknown := s.unknown
	savedTasks := s.tasks
	s.byID = map[uint16][]subscription{}
	s.byCategory = map[string][]subscription{}
	s.all = nil
	s.unknown = nil
	s.tasks = nil
	s.mu.Unlock()

	s.CallOnce(time.Second, s.sendEntityListQuery)
	s.Periodic(10*time.Second, s.sendEntityListQuery)

	seen := map[string]*wire.Message{}
	note := func(msg *wire.Message, send SendFunc) error {
		if msg.Abbrev() == "EntityList" && !entityListIsReport(msg) {
			return nil
		}
		seen[msg.Abbrev()] = msg
		if len(seen) >= 2 {
			s.Stop()
		}
		return nil
	}
	s.Subscribe("Announce", Filter{}, note)
	s.Subscribe("EntityList", Filter{}, note)

	s.Run()

	heading := color.New(color.FgHiCyan).SprintFunc()
	for _, abbrev := range []string{"Announce", "EntityList"} {
		msg, ok := seen[abbrev]
		if !ok {
			continue
		}
		fmt.Printf("%s\n", heading(abbrev))
		for i := range msg.Desc.Fields {
			fd := &msg.Desc.Fields[i]
			v, _ := msg.Get(fd.Name)
			fmt.Printf("  %s: %v\n", fd.Name, v)
		}
		fmt.Println()
	}

	s.mu.Lock()
	s.byID = savedByID
	s.byCategory = savedByCategory
	s.all = savedAll
	s.unknown = savedUnknown
	s.tasks = savedTasks
	s.mu.Unlock()
}
