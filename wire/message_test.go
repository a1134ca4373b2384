package wire

import (
	"testing"

	"lsts.pt/imc/catalog"
)

const messageTestSchema = `<?xml version="1.0"?>
<imc version="5.4.14">
  <types>
    <type name="int8"><description>integer</description></type>
    <type name="uint8"><description>integer</description></type>
    <type name="uint16"><description>integer</description></type>
    <type name="fp64_t"><description>float</description></type>
    <type name="plaintext"><description>7-bit text</description></type>
    <type name="message"><description>embedded message</description></type>
  </types>
  <enumerations>
    <def abbrev="Op" name="Operation">
      <value name="Start" abbrev="START" id="1"/>
      <value name="Stop" abbrev="STOP" id="2"/>
    </def>
  </enumerations>
  <bitfields>
    <def abbrev="Flags" name="Flags">
      <value name="Ignore Errors" abbrev="IGNORE_ERRORS" id="0x1"/>
      <value name="Calibrate" abbrev="CALIBRATE" id="0x2"/>
    </def>
  </bitfields>
  <messages>
    <message id="150" name="Heartbeat" abbrev="Heartbeat" category="CPU"/>
    <message id="600" name="Command" abbrev="Command" category="Plan">
      <field name="Op" abbrev="op" type="uint8" unit="Enumerated" enum-def="Op"/>
      <field name="Flags" abbrev="flags" type="uint8" unit="Bitfield" bitfield-def="Flags"/>
      <field name="Timeout" abbrev="timeout" type="uint16" min="1" max="3600"/>
      <field name="Gain" abbrev="gain" type="fp64_t" min="0" max="1"/>
      <field name="Offset" abbrev="offset" type="int8"/>
      <field name="Label" abbrev="label" type="plaintext"/>
      <field name="Arg" abbrev="arg" type="message" message-type="Heartbeat"/>
    </message>
  </messages>
</imc>`

func loadMessageTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadBytes([]byte(messageTestSchema))
	if err != nil {
		t.Fatalf("LoadBytes: %s", err)
	}
	return cat
}

func TestSetRejectsInvalidValues(t *testing.T) {
	cat := loadMessageTestCatalog(t)
	desc, _ := cat.ByAbbrev("Command")
	msg, err := NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}

	cases := []struct {
		name  string
		field string
		value interface{}
	}{
		{"non-enum member", "op", 7},
		{"bits outside the bitfield", "flags", 0x10},
		{"below min", "timeout", 0},
		{"above max", "timeout", 4000},
		{"float above max", "gain", 1.5},
		{"signed overflow", "offset", 200},
		{"unsigned negative", "timeout", -3},
		{"wrong type", "label", 42},
		{"wrong embedded type", "arg", msg},
		{"null non-message field", "timeout", nil},
		{"no such field", "bogus", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := msg.Set(tc.field, tc.value); err == nil {
				t.Fatalf("Set(%s, %v) unexpectedly succeeded", tc.field, tc.value)
			}
		})
	}
}

func TestSetAcceptsValidValues(t *testing.T) {
	cat := loadMessageTestCatalog(t)
	desc, _ := cat.ByAbbrev("Command")
	hbDesc, _ := cat.ByAbbrev("Heartbeat")
	hb, err := NewMessage(hbDesc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}

	msg, err := NewMessage(desc, map[string]interface{}{
		"op":      1,
		"flags":   0x3, // IGNORE_ERRORS | CALIBRATE
		"timeout": 60,
		"gain":    1, // integer -> float upcast
		"offset":  -5,
		"label":   "cal",
		"arg":     hb,
	})
	if err != nil {
		t.Fatalf("NewMessage with valid fields: %s", err)
	}
	if v, ok := msg.GetFloat64("gain"); !ok || v != 1.0 {
		t.Fatalf("expected upcast gain 1.0, got %v (ok=%v)", v, ok)
	}
	if v, ok := msg.GetUint64("timeout"); !ok || v != 60 {
		t.Fatalf("expected timeout 60, got %v (ok=%v)", v, ok)
	}
}

func TestPackRefusesNullNonMessageField(t *testing.T) {
	cat := loadMessageTestCatalog(t)
	desc, _ := cat.ByAbbrev("Command")
	msg, err := NewMessage(desc, map[string]interface{}{"op": 1})
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}
	if _, err := Encode(msg, Big, EncodeOptions{Cat: cat}); err == nil {
		t.Fatal("expected pack to refuse a message with unset non-message fields")
	}
}

func TestZeroFillMakesMessagePackable(t *testing.T) {
	cat := loadMessageTestCatalog(t)
	desc, _ := cat.ByAbbrev("Command")
	msg, err := NewMessage(desc, nil)
	if err != nil {
		t.Fatalf("NewMessage: %s", err)
	}
	if err := msg.ZeroFill(); err != nil {
		t.Fatalf("ZeroFill: %s", err)
	}

	// op has no zero member, so ZeroFill picks the first declared symbol;
	// timeout's minimum is 1, so ZeroFill clamps up to it.
	if v, ok := msg.GetUint64("op"); !ok || v != 1 {
		t.Fatalf("expected op 1 (START), got %v (ok=%v)", v, ok)
	}
	if v, ok := msg.GetUint64("timeout"); !ok || v != 1 {
		t.Fatalf("expected timeout clamped to 1, got %v (ok=%v)", v, ok)
	}
	if sub, ok := msg.GetMessage("arg"); !ok || sub != nil {
		t.Fatalf("expected arg to stay null, got %v (ok=%v)", sub, ok)
	}

	buf, err := Encode(msg, Little, EncodeOptions{Cat: cat})
	if err != nil {
		t.Fatalf("Encode after ZeroFill: %s", err)
	}
	if _, _, _, err := Decode(buf, cat, false); err != nil {
		t.Fatalf("Decode: %s", err)
	}
}

func TestEqualsComparesHeadersOnlyWhenBothPresent(t *testing.T) {
	cat := loadMessageTestCatalog(t)
	desc, _ := cat.ByAbbrev("Heartbeat")
	a, _ := NewMessage(desc, nil)
	b, _ := NewMessage(desc, nil)

	if !a.Equals(b) {
		t.Fatal("two empty Heartbeats with no headers should be equal")
	}

	a.Header = &Header{Src: 1}
	if !a.Equals(b) {
		t.Fatal("a header on only one side should not affect equality")
	}

	b.Header = &Header{Src: 2}
	if a.Equals(b) {
		t.Fatal("differing headers on both sides should break equality")
	}
}
