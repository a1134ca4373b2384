package wire

import (
	"testing"

	"lsts.pt/imc/catalog"
)

const frameTestSchema = `<?xml version="1.0"?>
<imc version="5.4.14">
  <types>
    <type name="int16"><description>integer</description></type>
    <type name="uint16"><description>integer</description></type>
    <type name="fp32_t"><description>float</description></type>
    <type name="rawdata"><description>raw bytes</description></type>
    <type name="plaintext"><description>7-bit text</description></type>
    <type name="message"><description>embedded message</description></type>
    <type name="message-list"><description>sequence of messages</description></type>
  </types>
  <messages>
    <message id="150" name="Heartbeat" abbrev="Heartbeat" category="CPU"/>
    <message id="400" name="PlanControl" abbrev="PlanControl" category="Plan">
      <field name="Request ID" abbrev="request_id" type="uint16"/>
      <field name="Plan ID" abbrev="plan_id" type="plaintext"/>
      <field name="Info" abbrev="info" type="message" message-type="Heartbeat"/>
    </message>
    <message id="401" name="PlanDB" abbrev="PlanDB" category="Plan">
      <field name="Entries" abbrev="entries" type="message-list" message-type="Heartbeat"/>
    </message>
    <message id="402" name="Measurement" abbrev="Measurement" category="Sensors">
      <field name="Depth" abbrev="depth" type="fp32_t" unit="Meters"/>
      <field name="Payload" abbrev="payload" type="rawdata"/>
    </message>
  </messages>
</imc>`

func loadFrameTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadBytes([]byte(frameTestSchema))
	if err != nil {
		t.Fatalf("LoadBytes: %s", err)
	}
	return cat
}

func mustNew(t *testing.T, cat *catalog.Catalog, abbrev string, fields map[string]interface{}) *Message {
	t.Helper()
	desc, ok := cat.ByAbbrev(abbrev)
	if !ok {
		t.Fatalf("no such message %s", abbrev)
	}
	msg, err := NewMessage(desc, fields)
	if err != nil {
		t.Fatalf("NewMessage(%s): %s", abbrev, err)
	}
	return msg
}

func TestHeartbeatLittleEndianFrameLayout(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	hb := mustNew(t, cat, "Heartbeat", nil)

	buf, err := Encode(hb, Little, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	if len(buf) != 22 {
		t.Fatalf("expected a 22-byte frame for an empty payload, got %d", len(buf))
	}
	if buf[0] != 0x54 || buf[1] != 0xFE {
		t.Fatalf("expected little-endian sync bytes 54 FE, got %02x %02x", buf[0], buf[1])
	}
	if mgid := uint16(buf[2]) | uint16(buf[3])<<8; mgid != 150 {
		t.Fatalf("expected mgid 150, got %d", mgid)
	}
	if size := uint16(buf[4]) | uint16(buf[5])<<8; size != 0 {
		t.Fatalf("expected size 0, got %d", size)
	}

	decoded, _, _, err := Decode(buf, cat, false)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if !decoded.Equals(hb) {
		t.Fatal("decoded Heartbeat differs from the packed one")
	}
	if decoded.Header == nil || hb.Header == nil || *decoded.Header != *hb.Header {
		t.Fatal("decoded header differs from the header stored at pack time")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	hb := mustNew(t, cat, "Heartbeat", nil)

	msg := mustNew(t, cat, "PlanControl", map[string]interface{}{
		"request_id": 42,
		"plan_id":    "survey-1",
		"info":       hb,
	})

	for _, endian := range []Endian{Big, Little} {
		buf, err := Encode(msg, endian, EncodeOptions{Cat: cat})
		if err != nil {
			t.Fatalf("Encode: %s", err)
		}
		decoded, unknown, consumed, err := Decode(buf, cat, false)
		if err != nil {
			t.Fatalf("Decode: %s", err)
		}
		if unknown != nil {
			t.Fatal("expected known message, got Unknown envelope")
		}
		if consumed != len(buf) {
			t.Fatalf("expected to consume %d bytes, consumed %d", len(buf), consumed)
		}
		if !decoded.Equals(msg) {
			t.Fatalf("round-trip mismatch for endian %v: got %+v", endian, decoded.values)
		}
	}
}

const planControlSchema = `<?xml version="1.0"?>
<imc version="5.4.14">
  <types>
    <type name="uint8"><description>integer</description></type>
    <type name="uint16"><description>integer</description></type>
    <type name="fp32_t"><description>float</description></type>
    <type name="plaintext"><description>7-bit text</description></type>
    <type name="message"><description>embedded message</description></type>
  </types>
  <messages>
    <message id="559" name="Plan Control" abbrev="PlanControl" category="Plan Supervision">
      <field name="Type" abbrev="type" type="uint8" unit="Enumerated">
        <value name="Request" abbrev="REQUEST" id="0"/>
        <value name="Success" abbrev="SUCCESS" id="1"/>
        <value name="Failure" abbrev="FAILURE" id="2"/>
        <value name="In Progress" abbrev="IN_PROGRESS" id="3"/>
      </field>
      <field name="Operation" abbrev="op" type="uint8" unit="Enumerated">
        <value name="Start Plan" abbrev="START" id="0"/>
        <value name="Stop Plan" abbrev="STOP" id="1"/>
        <value name="Load Plan" abbrev="LOAD" id="2"/>
        <value name="Get Plan" abbrev="GET" id="3"/>
      </field>
      <field name="Request ID" abbrev="request_id" type="uint16"/>
      <field name="Plan Identifier" abbrev="plan_id" type="plaintext"/>
      <field name="Flags" abbrev="flags" type="uint16" unit="Bitfield">
        <value name="Calibrate Vehicle" abbrev="CALIBRATE" id="0x0001"/>
        <value name="Ignore Errors" abbrev="IGNORE_ERRORS" id="0x0002"/>
      </field>
      <field name="Request/Reply Argument" abbrev="arg" type="message"/>
      <field name="Complementary Info" abbrev="info" type="plaintext"/>
    </message>
    <message id="478" name="Follow Reference Maneuver" abbrev="FollowReference" category="Maneuvering">
      <field name="Controlling Source" abbrev="control_src" type="uint16"/>
      <field name="Controlling Entity" abbrev="control_ent" type="uint8"/>
      <field name="Timeout" abbrev="timeout" type="fp32_t" unit="s"/>
      <field name="Loiter Radius" abbrev="loiter_radius" type="fp32_t" unit="m"/>
      <field name="Altitude Interval" abbrev="altitude_interval" type="fp32_t" unit="m"/>
    </message>
  </messages>
</imc>`

func TestPlanControlFollowReferenceRoundTrip(t *testing.T) {
	cat, err := catalog.LoadBytes([]byte(planControlSchema))
	if err != nil {
		t.Fatalf("LoadBytes: %s", err)
	}

	ref := mustNew(t, cat, "FollowReference", map[string]interface{}{
		"control_src":       0xFFFF,
		"control_ent":       0xFF,
		"timeout":           10,
		"loiter_radius":     0,
		"altitude_interval": 0,
	})

	pcDesc, _ := cat.ByAbbrev("PlanControl")
	ignoreErrors := pcDesc.FieldByName("flags").Enum.ValueOf["IGNORE_ERRORS"]
	request := pcDesc.FieldByName("type").Enum.ValueOf["REQUEST"]
	start := pcDesc.FieldByName("op").Enum.ValueOf["START"]

	pc := mustNew(t, cat, "PlanControl", map[string]interface{}{
		"type":       request,
		"op":         start,
		"request_id": 0x1234,
		"plan_id":    "MyPlan-pyimctrans",
		"flags":      ignoreErrors,
		"arg":        ref,
		"info":       "MyPlan",
	})

	for _, endian := range []Endian{Big, Little} {
		buf, err := Encode(pc, endian, EncodeOptions{Cat: cat})
		if err != nil {
			t.Fatalf("Encode: %s", err)
		}
		decoded, unknown, _, err := Decode(buf, cat, false)
		if err != nil {
			t.Fatalf("Decode: %s", err)
		}
		if unknown != nil {
			t.Fatal("expected known message, got Unknown envelope")
		}
		if !decoded.Equals(pc) {
			t.Fatalf("round-trip mismatch for endian %v", endian)
		}

		arg, ok := decoded.GetMessage("arg")
		if !ok || arg == nil {
			t.Fatal("expected arg to materialize as an embedded message")
		}
		if arg.Abbrev() != "FollowReference" {
			t.Fatalf("expected arg to be a FollowReference, got %s", arg.Abbrev())
		}
		if !arg.Equals(ref) {
			t.Fatal("decoded FollowReference differs from the packed one")
		}
		if v, ok := arg.GetUint64("control_src"); !ok || v != 0xFFFF {
			t.Fatalf("expected control_src 0xFFFF, got %v (ok=%v)", v, ok)
		}
		if v, ok := arg.GetFloat64("timeout"); !ok || v != 10 {
			t.Fatalf("expected timeout 10, got %v (ok=%v)", v, ok)
		}
		if v, ok := decoded.GetUint64("request_id"); !ok || v != 0x1234 {
			t.Fatalf("expected request_id 0x1234, got %v (ok=%v)", v, ok)
		}
		if v, ok := decoded.GetString("plan_id"); !ok || v != "MyPlan-pyimctrans" {
			t.Fatalf("expected plan_id %q, got %q (ok=%v)", "MyPlan-pyimctrans", v, ok)
		}
	}
}

func TestEncodeDecodeNullEmbeddedMessage(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	msg := mustNew(t, cat, "PlanControl", map[string]interface{}{
		"request_id": 1,
		"plan_id":    "",
		"info":       nil,
	})

	buf, err := Encode(msg, Big, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	decoded, _, _, err := Decode(buf, cat, false)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	sub, ok := decoded.GetMessage("info")
	if !ok || sub != nil {
		t.Fatalf("expected info to decode as a null embedded message, got %v %v", sub, ok)
	}
}

func TestEncodeDecodeMessageList(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	hb1 := mustNew(t, cat, "Heartbeat", nil)
	hb2 := mustNew(t, cat, "Heartbeat", nil)
	msg := mustNew(t, cat, "PlanDB", map[string]interface{}{
		"entries": []*Message{hb1, hb2},
	})

	buf, err := Encode(msg, Little, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	decoded, _, _, err := Decode(buf, cat, false)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	entries, ok := decoded.GetMessageList("entries")
	if !ok || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v (ok=%v)", entries, ok)
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	msg := mustNew(t, cat, "Heartbeat", nil)
	buf, err := Encode(msg, Big, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	buf[len(buf)-1] ^= 0xFF
	if _, _, _, err := Decode(buf, cat, false); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestDecodeUnknownEnvelopePreservesBytes(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	msg := mustNew(t, cat, "Measurement", map[string]interface{}{
		"depth":   12.5,
		"payload": []byte{1, 2, 3, 4},
	})
	buf, err := Encode(msg, Big, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}

	// Rewrite the mgid in-place to something the catalog does not know,
	// then fix up the CRC to keep the frame structurally valid.
	buf[2], buf[3] = 0x27, 0x10 // 10000, big-endian
	payloadEnd := len(buf) - catalog.FooterSize
	crc := CRC16IBM(buf[:payloadEnd], 0)
	buf[payloadEnd] = byte(crc >> 8)
	buf[payloadEnd+1] = byte(crc)

	decoded, unknown, consumed, err := Decode(buf, cat, false)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if decoded != nil {
		t.Fatal("expected nil Message for unknown mgid")
	}
	if unknown == nil {
		t.Fatal("expected Unknown envelope")
	}
	if unknown.Mgid != 10000 {
		t.Fatalf("expected mgid 10000, got %d", unknown.Mgid)
	}
	if consumed != len(buf) {
		t.Fatalf("expected to consume %d bytes, consumed %d", len(buf), consumed)
	}

	repacked, err := unknown.Pack()
	if err != nil {
		t.Fatalf("Pack: %s", err)
	}
	if len(repacked) != len(buf) {
		t.Fatalf("repacked length mismatch: got %d want %d", len(repacked), len(buf))
	}
	for i := range buf {
		if repacked[i] != buf[i] {
			t.Fatalf("repacked byte %d differs: got %x want %x", i, repacked[i], buf[i])
		}
	}
}

func TestDetectEndian(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	msg := mustNew(t, cat, "Heartbeat", nil)

	bigBuf, err := Encode(msg, Big, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	if e, ok := DetectEndian(bigBuf, cat.SyncWord); !ok || e != Big {
		t.Fatalf("expected Big, got %v (ok=%v)", e, ok)
	}

	littleBuf, err := Encode(msg, Little, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	if e, ok := DetectEndian(littleBuf, cat.SyncWord); !ok || e != Little {
		t.Fatalf("expected Little, got %v (ok=%v)", e, ok)
	}
}

func TestFastModeDecodesFieldValues(t *testing.T) {
	cat := loadFrameTestCatalog(t)
	msg := mustNew(t, cat, "Measurement", map[string]interface{}{
		"depth":   1.0,
		"payload": []byte{9},
	})
	buf, err := Encode(msg, Big, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	decoded, _, _, err := Decode(buf, cat, true)
	if err != nil {
		t.Fatalf("Decode (fast mode): %s", err)
	}
	if v, ok := decoded.GetFloat64("depth"); !ok || v != 1.0 {
		t.Fatalf("expected depth 1.0, got %v (ok=%v)", v, ok)
	}
}
