package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/blang/semver"

	"lsts.pt/imc/log"
)

// DefaultSyncWord is the historical IMC sync word, 0xFE54, whose
// byte order in a frame's first two bytes identifies that frame's
// endianness.
const DefaultSyncWord uint16 = 0xFE54

// MinSupportedVersion is the oldest schema revision this codec
// understands. Load refuses to build a catalog from an incompatible
// major version rather than silently mis-decoding frames against a
// schema it was never tested with.
var MinSupportedVersion = semver.MustParse("5.0.0")

// Load reads and parses the IMC XML schema at path, producing a Catalog.
// A malformed document or an unknown primitive type is fatal.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schemaErrorf("reading "+path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses an already-read IMC XML document.
func LoadBytes(data []byte) (*Catalog, error) {
	raw, err := parseRawIMC(data)
	if err != nil {
		return nil, schemaErrorf("parsing XML", err)
	}
	return build(raw)
}

func build(raw *rawIMC) (*Catalog, error) {
	cat := &Catalog{
		SyncWord:         DefaultSyncWord,
		Version:          raw.Version,
		messagesByID:     map[uint16]*MessageDescriptor{},
		messagesByAbbrev: map[string]*MessageDescriptor{},
		categories:       map[string][]string{},
		enums:            map[string]*Enum{},
		bitfields:        map[string]*Enum{},
		types:            map[string]Kind{},
	}

	if err := checkVersion(raw.Version); err != nil {
		return nil, err
	}

	if err := buildTypes(raw, cat); err != nil {
		return nil, err
	}
	for _, def := range raw.Enumerations {
		cat.enums[enumDefKey(def)] = buildEnum(def, false)
	}
	for _, def := range raw.Bitfields {
		cat.bitfields[enumDefKey(def)] = buildEnum(def, true)
	}
	for _, grp := range raw.MessageGroups {
		abbrevs := make([]string, 0, len(grp.Types))
		for _, t := range grp.Types {
			abbrevs = append(abbrevs, t.Abbrev)
		}
		cat.categories[grp.Name] = abbrevs
	}
	for _, rm := range raw.Messages {
		md, err := buildMessage(rm, cat)
		if err != nil {
			return nil, err
		}
		cat.messagesByID[md.ID] = md
		cat.messagesByAbbrev[md.Abbrev] = md
	}
	return cat, nil
}

func checkVersion(version string) error {
	if version == "" {
		return nil // schema omitted a version; accept rather than fail shut
	}
	v, err := semver.Parse(normalizeSchemaVersion(version))
	if err != nil {
		log.Log.Warningf("imc schema: unparseable version %q, skipping compatibility check", version)
		return nil
	}
	if v.Major < MinSupportedVersion.Major {
		return schemaErrorf("version check", fmt.Errorf(
			"schema version %s predates the minimum supported %s", version, MinSupportedVersion))
	}
	return nil
}

// normalizeSchemaVersion loosens "5.4" style schema versions into
// semver's required major.minor.patch shape.
func normalizeSchemaVersion(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

func enumDefKey(def rawEnumDef) string {
	if def.Abbrev != "" {
		return def.Abbrev
	}
	return def.Name
}

func buildEnum(def rawEnumDef, isBitfield bool) *Enum {
	e := &Enum{
		Name:       def.Name,
		Abbrev:     def.Abbrev,
		IsBitfield: isBitfield,
		ValueOf:    map[string]int64{},
		SymbolOf:   map[int64]string{},
	}
	if isBitfield {
		e.ValueOf["EMPTY"] = 0
		e.SymbolOf[0] = "EMPTY"
		e.Order = append(e.Order, "EMPTY")
	}
	for _, v := range def.Values {
		id, _ := v.ID.asInt()
		key := v.key()
		e.ValueOf[key] = id
		e.SymbolOf[id] = key
		e.Order = append(e.Order, key)
	}
	return e
}

func buildEnumFromFieldValues(values []rawEnumValue, isBitfield bool) *Enum {
	return buildEnum(rawEnumDef{Values: values}, isBitfield)
}

func buildTypes(raw *rawIMC, cat *Catalog) error {
	for _, t := range raw.Types {
		if k, ok := kindByTypeName[t.Name]; ok {
			cat.types[t.Name] = k
			continue
		}
		if k, ok := integerKindByTypeName[t.Name]; ok {
			cat.types[t.Name] = k
			continue
		}
		if k, ok := floatKindByTypeName[t.Name]; ok {
			cat.types[t.Name] = k
			continue
		}
		desc := strings.ToLower(t.Description)
		switch {
		case strings.Contains(desc, "float"):
			cat.types[t.Name] = KindFP64
		case strings.Contains(desc, "integer"):
			cat.types[t.Name] = KindInt64
		default:
			return schemaErrorf("types", fmt.Errorf("unknown primitive type %q", t.Name))
		}
	}
	// The handful of names every IMC revision has carried are pinned
	// directly in case a minimal or hand-edited schema omits <types>.
	for name, k := range kindByTypeName {
		if _, ok := cat.types[name]; !ok {
			cat.types[name] = k
		}
	}
	for name, k := range integerKindByTypeName {
		if _, ok := cat.types[name]; !ok {
			cat.types[name] = k
		}
	}
	return nil
}

func resolveKind(cat *Catalog, typeName string) (Kind, error) {
	if k, ok := cat.types[typeName]; ok {
		return k, nil
	}
	return KindInvalid, schemaErrorf("fields", fmt.Errorf("unknown primitive type %q", typeName))
}

func buildMessage(rm rawMessage, cat *Catalog) (*MessageDescriptor, error) {
	id, ok := rm.ID.asInt()
	if !ok {
		return nil, schemaErrorf("messages", fmt.Errorf("message %q has non-integer id", rm.Abbrev))
	}
	md := &MessageDescriptor{
		ID:          uint16(id),
		Abbrev:      rm.Abbrev,
		Name:        rm.Name,
		Description: rm.Description,
		Category:    rm.Category,
	}
	for _, rf := range rm.Fields {
		fd, err := buildField(rf, cat)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", md.Abbrev, err)
		}
		md.Fields = append(md.Fields, fd)
	}
	return md, nil
}

func buildField(rf rawField, cat *Catalog) (FieldDescriptor, error) {
	k, err := resolveKind(cat, rf.Type)
	if err != nil {
		return FieldDescriptor{}, err
	}
	fd := FieldDescriptor{
		Name:        rf.key(),
		Abbrev:      rf.Abbrev,
		Kind:        k,
		Unit:        rf.Unit,
		MessageType: rf.MessageType,
	}
	if min, ok := rf.Min.number(); ok {
		fd.Min = &min
	}
	if max, ok := rf.Max.number(); ok {
		fd.Max = &max
	}
	switch rf.Unit {
	case "Enumerated":
		fd.Enum = resolveFieldEnum(rf, cat.enums, false)
	case "Bitfield":
		fd.Enum = resolveFieldEnum(rf, cat.bitfields, true)
	}
	return fd, nil
}

func resolveFieldEnum(rf rawField, global map[string]*Enum, isBitfield bool) *Enum {
	ref := rf.EnumDef
	if isBitfield {
		ref = rf.BitfieldDef
	}
	if ref != "" {
		if e, ok := global[ref]; ok {
			return e
		}
	}
	if len(rf.Values) > 0 {
		return buildEnumFromFieldValues(rf.Values, isBitfield)
	}
	return nil
}
