package wire

// Header is the fixed 20-byte frame header: sync:u16, mgid:u16, size:u16,
// timestamp:fp64, src:u16, src_ent:u8, dst:u16, dst_ent:u8. size counts
// the field payload only, not the header or the trailing CRC.
type Header struct {
	Sync      uint16
	Mgid      uint16
	Size      uint16
	Timestamp float64
	Src       uint16
	SrcEnt    uint8
	Dst       uint16
	DstEnt    uint8
}

// DefaultSrc is the process-wide default source id: 0x4000 ORed with the
// low 16 bits of the host's primary non-loopback IPv4 address. Computed
// once at startup and treated as immutable afterward.
var DefaultSrc uint16 = 0x4000

// DefaultSrcEnt, DefaultDst and DefaultDstEnt fill a freshly-built header
// when the caller supplies no explicit overrides.
const (
	DefaultSrcEnt uint8  = 0xFF
	DefaultDst    uint16 = 0xFFFF
	DefaultDstEnt uint8  = 0xFF
)
