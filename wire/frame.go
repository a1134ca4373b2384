package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"lsts.pt/imc/catalog"
)

// EncodeOptions lets a caller override the header fields Encode otherwise
// derives from process-wide defaults or from the message's existing header.
type EncodeOptions struct {
	Src, Dst       *uint16
	SrcEnt, DstEnt *uint8
	Cat            *catalog.Catalog // required to recurse into embedded/list fields
}

// Encode serializes msg as a complete, standalone frame (header + payload
// + CRC) in the given endianness.
func Encode(msg *Message, endian Endian, opts EncodeOptions) ([]byte, error) {
	if opts.Cat == nil {
		return nil, fmt.Errorf("wire.Encode: EncodeOptions.Cat is required")
	}
	order := endian.byteOrder()

	payload, err := encodeFields(order, msg, opts.Cat)
	if err != nil {
		return nil, err
	}

	header := buildHeader(msg, opts, opts.Cat.SyncWord, uint16(len(payload)))

	buf := make([]byte, catalog.HeaderSize+len(payload)+catalog.FooterSize)
	encodeHeader(order, header, buf[:catalog.HeaderSize])
	copy(buf[catalog.HeaderSize:], payload)
	crc := CRC16IBM(buf[:catalog.HeaderSize+len(payload)], 0)
	order.PutUint16(buf[catalog.HeaderSize+len(payload):], crc)

	msg.Header = &header
	footer := crc
	msg.Footer = &footer
	return buf, nil
}

// buildHeader derives the frame header: reuse msg's
// existing header (keeping its timestamp) if present, else build a fresh
// one from process-wide defaults; explicit per-call overrides always win.
func buildHeader(msg *Message, opts EncodeOptions, sync uint16, size uint16) Header {
	var h Header
	if msg.Header != nil {
		h = *msg.Header
	} else {
		h = Header{
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
			Src:       DefaultSrc,
			SrcEnt:    DefaultSrcEnt,
			Dst:       DefaultDst,
			DstEnt:    DefaultDstEnt,
		}
	}
	h.Sync = sync
	h.Mgid = msg.Desc.ID
	h.Size = size
	if opts.Src != nil {
		h.Src = *opts.Src
	}
	if opts.Dst != nil {
		h.Dst = *opts.Dst
	}
	if opts.SrcEnt != nil {
		h.SrcEnt = *opts.SrcEnt
	}
	if opts.DstEnt != nil {
		h.DstEnt = *opts.DstEnt
	}
	return h
}

func encodeHeader(order binary.ByteOrder, h Header, buf []byte) {
	order.PutUint16(buf[0:2], h.Sync)
	order.PutUint16(buf[2:4], h.Mgid)
	order.PutUint16(buf[4:6], h.Size)
	order.PutUint64(buf[6:14], math.Float64bits(h.Timestamp))
	order.PutUint16(buf[14:16], h.Src)
	buf[16] = h.SrcEnt
	order.PutUint16(buf[17:19], h.Dst)
	buf[19] = h.DstEnt
}

func decodeHeader(order binary.ByteOrder, buf []byte) Header {
	return Header{
		Sync:      order.Uint16(buf[0:2]),
		Mgid:      order.Uint16(buf[2:4]),
		Size:      order.Uint16(buf[4:6]),
		Timestamp: math.Float64frombits(order.Uint64(buf[6:14])),
		Src:       order.Uint16(buf[14:16]),
		SrcEnt:    buf[16],
		Dst:       order.Uint16(buf[17:19]),
		DstEnt:    buf[19],
	}
}

// null16 is the wire sentinel for an explicitly-null embedded message
// field.
const null16 = 0xFFFF

func encodeFields(order binary.ByteOrder, msg *Message, cat *catalog.Catalog) ([]byte, error) {
	var out []byte
	for i := range msg.Desc.Fields {
		fd := &msg.Desc.Fields[i]
		v, present := msg.values[fd.Name]

		switch fd.Kind {
		case catalog.KindMessage:
			sub, _ := v.(*Message)
			if !present || sub == nil {
				buf := make([]byte, 2)
				order.PutUint16(buf, null16)
				out = append(out, buf...)
				continue
			}
			encoded, err := encodeEmbedded(order, sub, cat)
			if err != nil {
				return nil, err
			}
			out = append(out, encoded...)

		case catalog.KindMessageList:
			subs, _ := v.([]*Message)
			countBuf := make([]byte, 2)
			order.PutUint16(countBuf, uint16(len(subs)))
			out = append(out, countBuf...)
			for _, sub := range subs {
				encoded, err := encodeEmbedded(order, sub, cat)
				if err != nil {
					return nil, err
				}
				out = append(out, encoded...)
			}

		default:
			if !present {
				return nil, validationErrorf(msg.Abbrev(), fd.Name, "non-message field is null at pack time")
			}
			packed, err := packPrimitive(order, fd.Kind, v)
			if err != nil {
				return nil, err
			}
			out = append(out, packed...)
		}
	}
	return out, nil
}

// encodeEmbedded serializes a sub-message with no header and no CRC:
// mgid(u16) | fields.
func encodeEmbedded(order binary.ByteOrder, sub *Message, cat *catalog.Catalog) ([]byte, error) {
	mgidBuf := make([]byte, 2)
	order.PutUint16(mgidBuf, sub.Desc.ID)
	fields, err := encodeFields(order, sub, cat)
	if err != nil {
		return nil, err
	}
	return append(mgidBuf, fields...), nil
}

// Decode parses a complete frame (sync .. CRC inclusive). On success it
// returns either a typed *Message (known mgid) or
// an *Unknown envelope (unrecognized mgid), and the number of bytes
// consumed (always HeaderSize + size + FooterSize). fastMode constructs
// the message by direct field assignment, bypassing range/enum
// validation, for hot decode paths. Fast-mode values therefore carry no
// min/max or enumeration guarantee; validating decode is the default.
func Decode(buf []byte, cat *catalog.Catalog, fastMode bool) (msg *Message, unknown *Unknown, consumed int, err error) {
	endian, ok := DetectEndian(buf, cat.SyncWord)
	if !ok {
		return nil, nil, 0, fmt.Errorf("wire.Decode: invalid sync bytes")
	}
	order := endian.byteOrder()
	if len(buf) < catalog.HeaderSize {
		return nil, nil, 0, fmt.Errorf("wire.Decode: truncated header")
	}
	header := decodeHeader(order, buf)
	total := catalog.HeaderSize + int(header.Size) + catalog.FooterSize
	if len(buf) < total {
		return nil, nil, 0, fmt.Errorf("wire.Decode: truncated frame, need %d have %d", total, len(buf))
	}

	computed := CRC16IBM(buf[:catalog.HeaderSize+int(header.Size)], 0)
	trailing := order.Uint16(buf[catalog.HeaderSize+int(header.Size) : total])
	if computed != trailing {
		return nil, nil, 0, fmt.Errorf("wire.Decode: CRC mismatch")
	}

	payload := buf[catalog.HeaderSize : catalog.HeaderSize+int(header.Size)]

	desc, ok := cat.ByID(header.Mgid)
	if !ok {
		payloadCopy := make([]byte, len(payload))
		copy(payloadCopy, payload)
		return nil, &Unknown{Mgid: header.Mgid, Payload: payloadCopy, Endian: endian, Header: header}, total, nil
	}

	decoded, _, err := decodeFields(order, desc, payload, cat, fastMode)
	if err != nil {
		return nil, nil, 0, err
	}
	decoded.Header = &header
	trailingCopy := trailing
	decoded.Footer = &trailingCopy
	return decoded, nil, total, nil
}

// DetectEndian classifies buf's leading two bytes as big- or
// little-endian sync word bytes.
func DetectEndian(buf []byte, syncWord uint16) (Endian, bool) {
	if len(buf) < 2 {
		return Big, false
	}
	if binary.BigEndian.Uint16(buf[0:2]) == syncWord {
		return Big, true
	}
	if binary.LittleEndian.Uint16(buf[0:2]) == syncWord {
		return Little, true
	}
	return Big, false
}

func decodeFields(order binary.ByteOrder, desc *catalog.MessageDescriptor, buf []byte, cat *catalog.Catalog, fastMode bool) (*Message, int, error) {
	msg := &Message{Desc: desc, values: map[string]interface{}{}}
	offset := 0
	for i := range desc.Fields {
		fd := &desc.Fields[i]
		remaining := buf[offset:]

		switch fd.Kind {
		case catalog.KindMessage:
			if len(remaining) < 2 {
				return nil, 0, fmt.Errorf("wire.Decode: truncated embedded message field %s", fd.Name)
			}
			if order.Uint16(remaining[0:2]) == null16 {
				msg.values[fd.Name] = (*Message)(nil)
				offset += 2
				continue
			}
			sub, n, err := decodeEmbedded(order, remaining, cat, fastMode)
			if err != nil {
				return nil, 0, err
			}
			msg.values[fd.Name] = sub
			offset += n

		case catalog.KindMessageList:
			if len(remaining) < 2 {
				return nil, 0, fmt.Errorf("wire.Decode: truncated message-list count for field %s", fd.Name)
			}
			count := int(order.Uint16(remaining[0:2]))
			pos := 2
			list := make([]*Message, 0, count)
			for j := 0; j < count; j++ {
				sub, n, err := decodeEmbedded(order, remaining[pos:], cat, fastMode)
				if err != nil {
					return nil, 0, err
				}
				list = append(list, sub)
				pos += n
			}
			msg.values[fd.Name] = list
			offset += pos

		default:
			v, n, err := unpackPrimitive(order, fd.Kind, remaining)
			if err != nil {
				return nil, 0, err
			}
			if fastMode {
				msg.values[fd.Name] = v
			} else if err := msg.Set(fd.Name, v); err != nil {
				return nil, 0, err
			}
			offset += n
		}
	}
	return msg, offset, nil
}

func decodeEmbedded(order binary.ByteOrder, buf []byte, cat *catalog.Catalog, fastMode bool) (*Message, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("wire.Decode: truncated embedded message id")
	}
	mgid := order.Uint16(buf[0:2])
	desc, ok := cat.ByID(mgid)
	if !ok {
		return nil, 0, fmt.Errorf("wire.Decode: unknown embedded message id %d", mgid)
	}
	sub, n, err := decodeFields(order, desc, buf[2:], cat, fastMode)
	if err != nil {
		return nil, 0, err
	}
	return sub, n + 2, nil
}
