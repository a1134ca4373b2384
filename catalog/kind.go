package catalog

// Kind is the host numeric/structural kind a schema primitive type is
// deduced to have: "float" in a type's description text means floating,
// "integer" means integer; rawdata/plaintext/message/message-list are
// special-cased rather than described in prose.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt8
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindFP32
	KindFP64
	KindRawData
	KindPlainText
	KindMessage
	KindMessageList
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindUInt8:
		return "uint8"
	case KindInt16:
		return "int16"
	case KindUInt16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUInt32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUInt64:
		return "uint64"
	case KindFP32:
		return "fp32"
	case KindFP64:
		return "fp64"
	case KindRawData:
		return "rawdata"
	case KindPlainText:
		return "plaintext"
	case KindMessage:
		return "message"
	case KindMessageList:
		return "message-list"
	}
	return "invalid"
}

// IsFloating reports whether k is one of the two IEEE-754 kinds.
func (k Kind) IsFloating() bool {
	return k == KindFP32 || k == KindFP64
}

// IsInteger reports whether k is one of the eight fixed-width integer
// kinds.
func (k Kind) IsInteger() bool {
	switch k {
	case KindInt8, KindUInt8, KindInt16, KindUInt16, KindInt32, KindUInt32, KindInt64, KindUInt64:
		return true
	}
	return false
}

// kindByTypeName maps the schema's primitive type names to Kind for the
// four structural types, which have no numeric description text to
// deduce from.
var kindByTypeName = map[string]Kind{
	"rawdata":      KindRawData,
	"plaintext":    KindPlainText,
	"message":      KindMessage,
	"message-list": KindMessageList,
}

// integerKindByTypeName lists the schema type names whose description contains
// "integer"; widths are distinguished by name suffix since the schema
// names them explicitly (int8, uint8, int16, ...).
var integerKindByTypeName = map[string]Kind{
	"int8":   KindInt8,
	"uint8":  KindUInt8,
	"int16":  KindInt16,
	"uint16": KindUInt16,
	"int32":  KindInt32,
	"uint32": KindUInt32,
	"int64":  KindInt64,
	"uint64": KindUInt64,
}

var floatKindByTypeName = map[string]Kind{
	"fp32_t": KindFP32,
	"fp64_t": KindFP64,
	"fp32":   KindFP32,
	"fp64":   KindFP64,
}
