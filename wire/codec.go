package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"lsts.pt/imc/catalog"
)

// Endian selects which of the two parallel codec tables a frame uses;
// inferred per-frame from the sync word's byte order.
type Endian int

const (
	Big Endian = iota
	Little
)

func (e Endian) byteOrder() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// packPrimitive serializes a non-message, non-message-list field value in
// the given byte order. message and message-list are handled in
// frame.go since they recurse through the whole frame codec.
func packPrimitive(order binary.ByteOrder, kind catalog.Kind, value interface{}) ([]byte, error) {
	switch kind {
	case catalog.KindInt8:
		n, _ := asInt(value)
		return []byte{byte(int8(n))}, nil
	case catalog.KindUInt8:
		n, _ := asUint(value)
		return []byte{byte(n)}, nil
	case catalog.KindInt16:
		n, _ := asInt(value)
		buf := make([]byte, 2)
		order.PutUint16(buf, uint16(int16(n)))
		return buf, nil
	case catalog.KindUInt16:
		n, _ := asUint(value)
		buf := make([]byte, 2)
		order.PutUint16(buf, uint16(n))
		return buf, nil
	case catalog.KindInt32:
		n, _ := asInt(value)
		buf := make([]byte, 4)
		order.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case catalog.KindUInt32:
		n, _ := asUint(value)
		buf := make([]byte, 4)
		order.PutUint32(buf, uint32(n))
		return buf, nil
	case catalog.KindInt64:
		n, _ := asInt(value)
		buf := make([]byte, 8)
		order.PutUint64(buf, uint64(n))
		return buf, nil
	case catalog.KindUInt64:
		n, _ := asUint(value)
		buf := make([]byte, 8)
		order.PutUint64(buf, n)
		return buf, nil
	case catalog.KindFP32:
		f, _ := asFloat(value)
		buf := make([]byte, 4)
		order.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	case catalog.KindFP64:
		f, _ := asFloat(value)
		buf := make([]byte, 8)
		order.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case catalog.KindRawData:
		b, _ := value.([]byte)
		buf := make([]byte, 2+len(b))
		order.PutUint16(buf, uint16(len(b)))
		copy(buf[2:], b)
		return buf, nil
	case catalog.KindPlainText:
		s, _ := value.(string)
		buf := make([]byte, 2+len(s))
		order.PutUint16(buf, uint16(len(s)))
		copy(buf[2:], s)
		return buf, nil
	}
	return nil, fmt.Errorf("packPrimitive: unsupported kind %s", kind)
}

// unpackPrimitive deserializes a non-message, non-message-list field
// value, returning the value and the number of bytes consumed.
func unpackPrimitive(order binary.ByteOrder, kind catalog.Kind, buf []byte) (interface{}, int, error) {
	need := func(n int) error {
		if len(buf) < n {
			return fmt.Errorf("unpackPrimitive: need %d bytes, have %d", n, len(buf))
		}
		return nil
	}
	switch kind {
	case catalog.KindInt8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int64(int8(buf[0])), 1, nil
	case catalog.KindUInt8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return uint64(buf[0]), 1, nil
	case catalog.KindInt16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int64(int16(order.Uint16(buf))), 2, nil
	case catalog.KindUInt16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return uint64(order.Uint16(buf)), 2, nil
	case catalog.KindInt32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int64(int32(order.Uint32(buf))), 4, nil
	case catalog.KindUInt32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return uint64(order.Uint32(buf)), 4, nil
	case catalog.KindInt64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return int64(order.Uint64(buf)), 8, nil
	case catalog.KindUInt64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return order.Uint64(buf), 8, nil
	case catalog.KindFP32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return float64(math.Float32frombits(order.Uint32(buf))), 4, nil
	case catalog.KindFP64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(order.Uint64(buf)), 8, nil
	case catalog.KindRawData:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		n := int(order.Uint16(buf))
		if err := need(2 + n); err != nil {
			return nil, 0, err
		}
		out := make([]byte, n)
		copy(out, buf[2:2+n])
		return out, 2 + n, nil
	case catalog.KindPlainText:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		n := int(order.Uint16(buf))
		if err := need(2 + n); err != nil {
			return nil, 0, err
		}
		// A Go string is just an immutable byte slice: copying the raw
		// bytes in verbatim round-trips arbitrary (non-UTF-8) content,
		// the same guarantee a 7-bit decode with surrogate escapes
		// provides in languages with stricter string types.
		return string(buf[2 : 2+n]), 2 + n, nil
	}
	return nil, 0, fmt.Errorf("unpackPrimitive: unsupported kind %s", kind)
}
