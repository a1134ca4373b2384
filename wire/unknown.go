package wire

import "lsts.pt/imc/catalog"

// Unknown is the fallback envelope for a structurally valid, CRC-checked
// frame whose mgid the catalog does not recognize. It keeps the original
// field-payload bytes and the frame's endianness so Pack can reproduce
// the exact original bytes.
type Unknown struct {
	Mgid    uint16
	Payload []byte
	Endian  Endian
	Header  Header
}

// Pack re-serializes the envelope, reproducing the original frame
// byte-for-byte when Header/Payload/Endian are unchanged from decode.
func (u *Unknown) Pack() ([]byte, error) {
	order := u.Endian.byteOrder()
	header := u.Header
	header.Mgid = u.Mgid
	header.Size = uint16(len(u.Payload))

	buf := make([]byte, catalog.HeaderSize+len(u.Payload)+catalog.FooterSize)
	encodeHeader(order, header, buf[:catalog.HeaderSize])
	copy(buf[catalog.HeaderSize:], u.Payload)

	crc := CRC16IBM(buf[:catalog.HeaderSize+len(u.Payload)], 0)
	crcBuf := buf[catalog.HeaderSize+len(u.Payload):]
	order.PutUint16(crcBuf, crc)
	return buf, nil
}
