// Package h264 parses the parts of H264 streams needed to describe a track.
package h264

// NALUType is the type of a NALU.
type NALUType uint8

// NALU types.
const (
	NALUTypeNonIDR NALUType = 1
	NALUTypeIDR    NALUType = 5
	NALUTypeSEI    NALUType = 6
	NALUTypeSPS    NALUType = 7
	NALUTypePPS    NALUType = 8
	NALUTypeAUD    NALUType = 9
)

// TypeOf returns the type of a NALU.
func TypeOf(nalu []byte) NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return NALUType(nalu[0] & 0x1f)
}

// removeEmulationPrevention strips the 0x03 bytes
// inserted after every pair of zero bytes.
func removeEmulationPrevention(buf []byte) []byte {
	n := len(buf)
	out := make([]byte, 0, n)
	zeros := 0
	for i := 0; i < n; i++ {
		if zeros == 2 && buf[i] == 3 {
			zeros = 0
			continue
		}
		if buf[i] == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, buf[i])
	}
	return out
}
