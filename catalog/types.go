package catalog

// Enum is a global or field-local enumeration: a set of named integer
// symbols. Bitfields reuse the same shape with an implicit EMPTY=0
// symbol added by the loader.
type Enum struct {
	Name      string
	Abbrev    string
	IsBitfield bool
	// ValueOf maps a symbol (by abbrev, falling back to name) to its
	// integer value.
	ValueOf map[string]int64
	// SymbolOf is the reverse index, used when rendering a decoded value
	// back to a human-readable symbol.
	SymbolOf map[int64]string
	// Order preserves declaration order for deterministic codegen output.
	Order []string
}

// Has reports whether value is a member of the enumeration. For a
// bitfield, membership means value is a combination of declared bits
// (including the implicit EMPTY=0).
func (e *Enum) Has(value int64) bool {
	if e.IsBitfield {
		var allBits int64
		for _, v := range e.ValueOf {
			allBits |= v
		}
		return value&^allBits == 0
	}
	_, ok := e.SymbolOf[value]
	return ok
}

// FieldDescriptor describes one field of a message.
type FieldDescriptor struct {
	Name        string
	Abbrev      string
	Kind        Kind
	Unit        string // e.g. "Enumerated", "Bitfield", or a physical unit
	Min         *float64
	Max         *float64
	Enum        *Enum  // set when Unit is Enumerated or Bitfield
	MessageType string // set when Kind is Message or MessageList and constrained
}

// IsEnumerated reports whether this field carries a validated symbolic
// value tied to an Enum (either enumeration or bitfield flavored).
func (f *FieldDescriptor) IsEnumerated() bool {
	return f.Enum != nil
}

// MessageDescriptor is the catalog entry for one message type.
type MessageDescriptor struct {
	ID          uint16
	Abbrev      string
	Name        string
	Description string
	Category    string
	Fields      []FieldDescriptor
}

// FieldByName returns the field descriptor with the given name or abbrev,
// or nil if none matches.
func (m *MessageDescriptor) FieldByName(name string) *FieldDescriptor {
	for i := range m.Fields {
		if m.Fields[i].Name == name || m.Fields[i].Abbrev == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// HeaderLayout is the fixed 20-byte frame header shape. The schema
// carries it as a <header> element, but no IMC revision has ever changed
// it, so it is treated as a constant rather than re-derived from XML.
const HeaderLayout = "sync:u16,mgid:u16,size:u16,timestamp:fp64,src:u16,src_ent:u8,dst:u16,dst_ent:u8"

// HeaderSize is the byte length of the fixed header.
const HeaderSize = 20

// FooterSize is the byte length of the trailing CRC.
const FooterSize = 2

// Catalog is the in-memory, schema-derived message catalog produced by
// Load and consumed by the wire codec and dispatcher.
type Catalog struct {
	SyncWord uint16
	Version  string

	messagesByID     map[uint16]*MessageDescriptor
	messagesByAbbrev map[string]*MessageDescriptor
	categories       map[string][]string // category -> ordered abbrevs
	enums            map[string]*Enum
	bitfields        map[string]*Enum
	types            map[string]Kind
}

// ByID looks up a message descriptor by numeric id.
func (c *Catalog) ByID(id uint16) (*MessageDescriptor, bool) {
	m, ok := c.messagesByID[id]
	return m, ok
}

// ByAbbrev looks up a message descriptor by abbrev.
func (c *Catalog) ByAbbrev(abbrev string) (*MessageDescriptor, bool) {
	m, ok := c.messagesByAbbrev[abbrev]
	return m, ok
}

// Category returns the ordered list of message abbrevs grouped under the
// given category name.
func (c *Catalog) Category(name string) []string {
	return c.categories[name]
}

// Enum looks up a global enumeration by its abbrev (by its name only
// when the definition has no abbrev).
func (c *Catalog) Enum(name string) (*Enum, bool) {
	e, ok := c.enums[name]
	return e, ok
}

// Bitfield looks up a global bitfield by its abbrev (by its name only
// when the definition has no abbrev).
func (c *Catalog) Bitfield(name string) (*Enum, bool) {
	e, ok := c.bitfields[name]
	return e, ok
}

// Messages returns every message descriptor in the catalog, in ascending
// id order.
func (c *Catalog) Messages() []*MessageDescriptor {
	out := make([]*MessageDescriptor, 0, len(c.messagesByID))
	for _, m := range c.messagesByID {
		out = append(out, m)
	}
	sortMessagesByID(out)
	return out
}

func sortMessagesByID(m []*MessageDescriptor) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j-1].ID > m[j].ID; j-- {
			m[j-1], m[j] = m[j], m[j-1]
		}
	}
}

// MinimalAbbrevs is the set of messages always materialized by the
// generator regardless of whitelist/blacklist selection: the control
// traffic every IMC node speaks.
var MinimalAbbrevs = []string{
	"Abort",
	"EntityState",
	"QueryEntityState",
	"EntityInfo",
	"QueryEntityInfo",
	"EntityList",
	"EntityActivationState",
	"QueryEntityActivationState",
	"Heartbeat",
	"Announce",
	"AnnounceService",
}
