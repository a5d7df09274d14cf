package h264

import (
	"encoding/binary"
	"errors"
)

// ErrAVCCInvalidLength invalid length.
var ErrAVCCInvalidLength = errors.New("invalid length")

// AVCCUnmarshal decodes NALUs from the AVCC stream format.
func AVCCUnmarshal(buf []byte) ([][]byte, error) {
	var ret [][]byte
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, ErrAVCCInvalidLength
		}
		le := int(binary.BigEndian.Uint32(buf))
		buf = buf[4:]

		if len(buf) < le {
			return nil, ErrAVCCInvalidLength
		}
		ret = append(ret, buf[:le])
		buf = buf[le:]
	}
	return ret, nil
}

// IsRandomAccess reports whether an AVCC access unit contains an IDR slice.
func IsRandomAccess(au []byte) bool {
	nalus, err := AVCCUnmarshal(au)
	if err != nil {
		return false
	}
	for _, nalu := range nalus {
		if TypeOf(nalu) == NALUTypeIDR {
			return true
		}
	}
	return false
}
