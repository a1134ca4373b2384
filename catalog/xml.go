package catalog

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// attrValue defers the schema's attribute coercion (integer if it parses
// as one, 0x-prefixed included; else float; else string). XML attributes
// arrive as strings, and every call site already knows which of the
// three shapes it expects, so the classification is re-derived on demand
// instead of held in a tagged union.
type attrValue string

func (v attrValue) asInt() (int64, bool) {
	s := string(v)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 0, 64) // base 0 honors 0x-prefixed values
	if err != nil {
		return 0, false
	}
	return n, true
}

func (v attrValue) asFloat() (float64, bool) {
	s := string(v)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// number renders the attribute as a float64, preferring exact integer
// parsing first so that "0x10" and "16" both land on 16, matching the
// schema rule that integer-looking attributes are integers, not just
// decimal floats in disguise.
func (v attrValue) number() (float64, bool) {
	if n, ok := v.asInt(); ok {
		return float64(n), true
	}
	return v.asFloat()
}

type rawIMC struct {
	XMLName       xml.Name          `xml:"imc"`
	Version       string            `xml:"version,attr"`
	Types         []rawType         `xml:"types>type"`
	Enumerations  []rawEnumDef      `xml:"enumerations>def"`
	Bitfields     []rawEnumDef      `xml:"bitfields>def"`
	MessageGroups []rawMessageGroup `xml:"message-groups>message-group"`
	Messages      []rawMessage      `xml:"messages>message"`
}

type rawType struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description"`
}

type rawEnumDef struct {
	Abbrev string         `xml:"abbrev,attr"`
	Name   string         `xml:"name,attr"`
	Prefix string         `xml:"prefix,attr"`
	Values []rawEnumValue `xml:"value"`
}

type rawEnumValue struct {
	Name   string    `xml:"name,attr"`
	Abbrev string    `xml:"abbrev,attr"`
	ID     attrValue `xml:"id,attr"`
}

func (v rawEnumValue) key() string {
	if v.Abbrev != "" {
		return v.Abbrev
	}
	return v.Name
}

type rawMessageGroup struct {
	Name  string              `xml:"name,attr"`
	Types []rawMessageTypeRef `xml:"message-type"`
}

type rawMessageTypeRef struct {
	Abbrev string `xml:"abbrev,attr"`
}

type rawMessage struct {
	ID          attrValue  `xml:"id,attr"`
	Name        string     `xml:"name,attr"`
	Abbrev      string     `xml:"abbrev,attr"`
	Category    string     `xml:"category,attr"`
	Description string     `xml:"description"`
	Fields      []rawField `xml:"field"`
}

type rawField struct {
	Name        string         `xml:"name,attr"`
	Abbrev      string         `xml:"abbrev,attr"`
	Type        string         `xml:"type,attr"`
	Unit        string         `xml:"unit,attr"`
	Min         attrValue      `xml:"min,attr"`
	Max         attrValue      `xml:"max,attr"`
	EnumDef     string         `xml:"enum-def,attr"`
	BitfieldDef string         `xml:"bitfield-def,attr"`
	MessageType string         `xml:"message-type,attr"`
	Values      []rawEnumValue `xml:"value"` // field-local enumeration
}

func (f rawField) key() string {
	if f.Abbrev != "" {
		return f.Abbrev
	}
	return f.Name
}

// normalizeWhitespace collapses runs of whitespace in a description
// subtree to single spaces and trims the ends; description text is
// otherwise carried verbatim.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func parseRawIMC(data []byte) (*rawIMC, error) {
	var raw rawIMC
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	raw.Version = strings.TrimSpace(raw.Version)
	for i := range raw.Types {
		raw.Types[i].Description = normalizeWhitespace(raw.Types[i].Description)
	}
	for i := range raw.Messages {
		raw.Messages[i].Description = normalizeWhitespace(raw.Messages[i].Description)
	}
	return &raw, nil
}
