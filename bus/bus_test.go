package bus

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/transport"
	"lsts.pt/imc/wire"
)

const busTestSchema = `<?xml version="1.0"?>
<imc version="5.4.14">
  <types>
    <type name="uint16"><description>integer</description></type>
  </types>
  <messages>
    <message id="150" name="Heartbeat" abbrev="Heartbeat" category="CPU"/>
  </messages>
</imc>`

func busTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadBytes([]byte(busTestSchema))
	if err != nil {
		t.Fatalf("LoadBytes: %s", err)
	}
	return cat
}

func pipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestBusRoundTrip(t *testing.T) {
	cat := busTestCatalog(t)
	a, b := pipePair()

	srcBus := New(transport.NewTCP(a), cat, config.DefaultBus())
	dstBus := New(transport.NewTCP(b), cat, config.DefaultBus())
	defer srcBus.Close()
	defer dstBus.Close()

	desc, _ := cat.ByAbbrev("Heartbeat")
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}

	go func() {
		if err := srcBus.Send(msg, wire.Big, wire.EncodeOptions{Cat: cat}); err != nil {
			t.Errorf("Send: %s", err)
		}
	}()

	select {
	case in := <-dstBus.Inbound():
		if in.Message == nil || in.Message.Abbrev() != "Heartbeat" {
			t.Fatalf("expected Heartbeat, got %+v", in)
		}
	case err := <-dstBus.Errs():
		t.Fatalf("unexpected bus error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func TestBusResyncAfterGarbage(t *testing.T) {
	cat := busTestCatalog(t)
	a, b := pipePair()

	dstBus := New(transport.NewTCP(b), cat, config.DefaultBus())
	defer dstBus.Close()

	desc, _ := cat.ByAbbrev("Heartbeat")
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}
	good, err := wire.Encode(msg, wire.Big, wire.EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}

	// 37 bytes (odd on purpose, so the frame starts at an odd offset) of
	// garbage containing no byte pair that reads as a sync word in either
	// byte order, not even straddling into the frame.
	garbage := append(make([]byte, 37), good...)
	for i := 0; i < 37; i++ {
		garbage[i] = 0xDE
	}

	go func() {
		a.Write(garbage)
	}()

	select {
	case in := <-dstBus.Inbound():
		if in.Message == nil || in.Message.Abbrev() != "Heartbeat" {
			t.Fatalf("expected Heartbeat after resync, got %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame after garbage")
	}

	select {
	case in := <-dstBus.Inbound():
		t.Fatalf("expected exactly one frame, got a second: %+v", in)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBusFileTransportEOF(t *testing.T) {
	cat := busTestCatalog(t)

	desc, _ := cat.ByAbbrev("Heartbeat")
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}

	capture := filepath.Join(t.TempDir(), "capture.lsf")
	var frames []byte
	for _, endian := range []wire.Endian{wire.Big, wire.Little} {
		buf, err := wire.Encode(msg, endian, wire.EncodeOptions{Cat: cat})
		if err != nil {
			t.Fatalf("Encode: %s", err)
		}
		frames = append(frames, buf...)
	}
	if err := os.WriteFile(capture, frames, 0600); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}

	ft, err := transport.OpenFile(capture, "")
	if err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	b := NewQueued(ft, cat, config.DefaultBus())
	defer b.Close()

	for i := 0; i < 2; i++ {
		select {
		case in, ok := <-b.Inbound():
			if !ok {
				t.Fatalf("inbound closed after %d frames, want 2", i)
			}
			if in.Message == nil || in.Message.Abbrev() != "Heartbeat" {
				t.Fatalf("frame %d: expected Heartbeat, got %+v", i, in)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	// End-of-file closes the inbound channel after the writer grace
	// period; that close is the EOF sentinel.
	select {
	case in, ok := <-b.Inbound():
		if ok {
			t.Fatalf("expected EOF sentinel, got frame %+v", in)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for EOF sentinel")
	}
}

func TestBusQueuedSend(t *testing.T) {
	cat := busTestCatalog(t)
	a, b := pipePair()

	cfg := config.DefaultBus()
	cfg.WriterIdlePoll = 10 * time.Millisecond
	srcBus := NewQueued(transport.NewTCP(a), cat, cfg)
	dstBus := New(transport.NewTCP(b), cat, config.DefaultBus())
	defer srcBus.Close()
	defer dstBus.Close()

	desc, _ := cat.ByAbbrev("Heartbeat")
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}
	if err := srcBus.Send(msg, wire.Big, wire.EncodeOptions{Cat: cat}); err != nil {
		t.Fatalf("Send: %s", err)
	}

	select {
	case in := <-dstBus.Inbound():
		if in.Message == nil || in.Message.Abbrev() != "Heartbeat" {
			t.Fatalf("expected Heartbeat, got %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued send to arrive")
	}
}
