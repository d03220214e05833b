package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"remote-call/invoke"
)

// Record kinds on the binary wire. The JSON wire distinguishes variants
// structurally; the binary layout carries an explicit kind byte instead.
const (
	kindFunction      byte = 0
	kindReturnSuccess byte = 1
	kindReturnFailure byte = 2
)

// BinaryCodec packs an Invoke into a length-prefixed field layout:
//
//	uid (4) | kind (1) | function: listenerLen (2) + listener + paramCount (2) + [paramLen (4) + param JSON]...
//	                   | return:   valueLen (4) + value JSON
//
// Parameter values and the return value stay JSON inside the binary shell —
// the codec compacts the envelope, not the payload encoding.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(inv *invoke.Invoke) ([]byte, error) {
	switch {
	case inv.IsFunction():
		total := 4 + 1 + 2 + len(inv.Listener) + 2
		for _, p := range inv.Parameters {
			total += 4 + len(p.Raw)
		}
		buf := make([]byte, total)
		binary.BigEndian.PutUint32(buf[0:4], inv.UID)
		buf[4] = kindFunction
		offset := 5

		binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(inv.Listener)))
		offset += 2
		copy(buf[offset:], inv.Listener)
		offset += len(inv.Listener)

		binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(inv.Parameters)))
		offset += 2
		for _, p := range inv.Parameters {
			binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(p.Raw)))
			offset += 4
			copy(buf[offset:], p.Raw)
			offset += len(p.Raw)
		}
		return buf, nil

	case inv.IsReturn():
		buf := make([]byte, 4+1+4+len(inv.Value))
		binary.BigEndian.PutUint32(buf[0:4], inv.UID)
		if *inv.Success {
			buf[4] = kindReturnSuccess
		} else {
			buf[4] = kindReturnFailure
		}
		binary.BigEndian.PutUint32(buf[5:9], uint32(len(inv.Value)))
		copy(buf[9:], inv.Value)
		return buf, nil

	default:
		return nil, errors.New("BinaryCodec: record is neither function nor return variant")
	}
}

func (c *BinaryCodec) Decode(data []byte, inv *invoke.Invoke) error {
	if len(data) < 5 {
		return fmt.Errorf("BinaryCodec: truncated record (%d bytes)", len(data))
	}
	inv.UID = binary.BigEndian.Uint32(data[0:4])
	kind := data[4]
	offset := 5

	switch kind {
	case kindFunction:
		if len(data) < offset+2 {
			return errors.New("BinaryCodec: truncated listener length")
		}
		strLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if len(data) < offset+strLen+2 {
			return errors.New("BinaryCodec: truncated listener")
		}
		inv.Listener = string(data[offset : offset+strLen])
		offset += strLen

		count := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		inv.Parameters = make([]invoke.Parameter, 0, count)
		for i := 0; i < count; i++ {
			if len(data) < offset+4 {
				return errors.New("BinaryCodec: truncated parameter length")
			}
			paramLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if len(data) < offset+paramLen {
				return errors.New("BinaryCodec: truncated parameter")
			}
			raw := make([]byte, paramLen)
			copy(raw, data[offset:offset+paramLen])
			offset += paramLen
			inv.Parameters = append(inv.Parameters, invoke.Parameter{Raw: raw})
		}
		inv.Success = nil
		inv.Value = nil
		return nil

	case kindReturnSuccess, kindReturnFailure:
		if len(data) < offset+4 {
			return errors.New("BinaryCodec: truncated value length")
		}
		valueLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if len(data) < offset+valueLen {
			return errors.New("BinaryCodec: truncated value")
		}
		inv.Value = make([]byte, valueLen)
		copy(inv.Value, data[offset:offset+valueLen])
		success := kind == kindReturnSuccess
		inv.Success = &success
		inv.Listener = ""
		inv.Parameters = nil
		return nil

	default:
		return fmt.Errorf("BinaryCodec: unknown record kind %d", kind)
	}
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
