package h264

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// SPS errors.
var (
	ErrSPSBufferTooShort    = errors.New("buffer too short")
	ErrSPSWrongForbiddenBit = errors.New("wrong forbidden bit")
	ErrSPSWrongType         = errors.New("not a SPS")
	ErrGolombTooLong        = errors.New("exp-golomb code too long")
)

func readGolombUnsigned(br *bitio.Reader) (uint32, error) {
	leadingZeroBits := uint32(0)
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeroBits++
		if leadingZeroBits > 31 {
			return 0, ErrGolombTooLong
		}
	}
	if leadingZeroBits == 0 {
		return 0, nil
	}

	codeNum, err := br.ReadBits(uint8(leadingZeroBits))
	if err != nil {
		return 0, err
	}
	return (1 << leadingZeroBits) - 1 + uint32(codeNum), nil
}

func readGolombSigned(br *bitio.Reader) (int32, error) {
	v, err := readGolombUnsigned(br)
	if err != nil {
		return 0, err
	}
	vi := int32(v)
	if vi&0x01 != 0 {
		return (vi + 1) / 2, nil
	}
	return -vi / 2, nil
}

func skipScalingList(br *bitio.Reader, size int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			deltaScale, err := readGolombSigned(br)
			if err != nil {
				return err
			}
			nextScale = (lastScale + deltaScale + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// FrameCropping is the frame cropping rectangle in chroma units.
type FrameCropping struct {
	LeftOffset   uint32
	RightOffset  uint32
	TopOffset    uint32
	BottomOffset uint32
}

// SPS is a H264 sequence parameter set.
// Only the fields up to the frame cropping are decoded.
type SPS struct {
	ProfileIdc      uint8
	ConstraintFlags uint8
	LevelIdc        uint8
	ID              uint32

	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool

	PicWidthInMbsMinus1  uint32
	PicHeightInMbsMinus1 uint32
	FrameMbsOnlyFlag     bool

	FrameCropping *FrameCropping
}

// Unmarshal decodes a SPS from bytes.
func (s *SPS) Unmarshal(buf []byte) error { //nolint:funlen
	// ref: ISO/IEC 14496-10:2020

	buf = removeEmulationPrevention(buf)
	if len(buf) < 4 {
		return ErrSPSBufferTooShort
	}
	if buf[0]>>7 != 0 {
		return ErrSPSWrongForbiddenBit
	}
	if TypeOf(buf) != NALUTypeSPS {
		return ErrSPSWrongType
	}

	s.ProfileIdc = buf[1]
	s.ConstraintFlags = buf[2]
	s.LevelIdc = buf[3]

	br := bitio.NewReader(bytes.NewReader(buf[4:]))

	var err error
	if s.ID, err = readGolombUnsigned(br); err != nil {
		return err
	}

	s.ChromaFormatIdc = 1
	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		if err := s.unmarshalChroma(br); err != nil {
			return err
		}
	}

	// log2_max_frame_num_minus4
	if _, err := readGolombUnsigned(br); err != nil {
		return err
	}

	picOrderCntType, err := readGolombUnsigned(br)
	if err != nil {
		return err
	}
	if err := skipPicOrderCnt(br, picOrderCntType); err != nil {
		return err
	}

	// max_num_ref_frames
	if _, err := readGolombUnsigned(br); err != nil {
		return err
	}
	// gaps_in_frame_num_value_allowed_flag
	if _, err := br.ReadBool(); err != nil {
		return err
	}

	if s.PicWidthInMbsMinus1, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if s.PicHeightInMbsMinus1, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if s.FrameMbsOnlyFlag, err = br.ReadBool(); err != nil {
		return err
	}
	if !s.FrameMbsOnlyFlag {
		// mb_adaptive_frame_field_flag
		if _, err := br.ReadBool(); err != nil {
			return err
		}
	}
	// direct_8x8_inference_flag
	if _, err := br.ReadBool(); err != nil {
		return err
	}

	frameCroppingFlag, err := br.ReadBool()
	if err != nil {
		return err
	}
	s.FrameCropping = nil
	if frameCroppingFlag {
		var c FrameCropping
		for _, v := range []*uint32{&c.LeftOffset, &c.RightOffset, &c.TopOffset, &c.BottomOffset} {
			if *v, err = readGolombUnsigned(br); err != nil {
				return err
			}
		}
		s.FrameCropping = &c
	}
	return nil
}

func (s *SPS) unmarshalChroma(br *bitio.Reader) error {
	var err error
	if s.ChromaFormatIdc, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if s.ChromaFormatIdc == 3 {
		if s.SeparateColourPlaneFlag, err = br.ReadBool(); err != nil {
			return err
		}
	}

	// bit_depth_luma_minus8, bit_depth_chroma_minus8
	for i := 0; i < 2; i++ {
		if _, err := readGolombUnsigned(br); err != nil {
			return err
		}
	}
	// qpprime_y_zero_transform_bypass_flag
	if _, err := br.ReadBool(); err != nil {
		return err
	}

	seqScalingMatrixPresentFlag, err := br.ReadBool()
	if err != nil {
		return err
	}
	if !seqScalingMatrixPresentFlag {
		return nil
	}

	lim := 8
	if s.ChromaFormatIdc == 3 {
		lim = 12
	}
	for i := 0; i < lim; i++ {
		present, err := br.ReadBool()
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		if err := skipScalingList(br, size); err != nil {
			return err
		}
	}
	return nil
}

func skipPicOrderCnt(br *bitio.Reader, picOrderCntType uint32) error {
	switch picOrderCntType {
	case 0:
		// log2_max_pic_order_cnt_lsb_minus4
		_, err := readGolombUnsigned(br)
		return err

	case 1:
		// delta_pic_order_always_zero_flag
		if _, err := br.ReadBool(); err != nil {
			return err
		}
		// offset_for_non_ref_pic, offset_for_top_to_bottom_field
		for i := 0; i < 2; i++ {
			if _, err := readGolombSigned(br); err != nil {
				return err
			}
		}
		n, err := readGolombUnsigned(br)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readGolombSigned(br); err != nil {
				return err
			}
		}
	}
	return nil
}

// cropUnits returns the horizontal and vertical crop unit sizes.
func (s SPS) cropUnits() (int, int) {
	frameMbsOnly := 0
	if s.FrameMbsOnlyFlag {
		frameMbsOnly = 1
	}

	if s.ChromaFormatIdc == 0 || s.SeparateColourPlaneFlag {
		return 1, 2 - frameMbsOnly
	}

	subWidthC, subHeightC := 2, 2
	switch s.ChromaFormatIdc {
	case 2:
		subHeightC = 1
	case 3:
		subWidthC, subHeightC = 1, 1
	}
	return subWidthC, subHeightC * (2 - frameMbsOnly)
}

// Width returns the video width.
func (s SPS) Width() int {
	width := int(s.PicWidthInMbsMinus1+1) * 16
	if s.FrameCropping != nil {
		cropX, _ := s.cropUnits()
		width -= int(s.FrameCropping.LeftOffset+s.FrameCropping.RightOffset) * cropX
	}
	return width
}

// Height returns the video height.
func (s SPS) Height() int {
	f := 1
	if s.FrameMbsOnlyFlag {
		f = 0
	}
	height := (1 + f) * int(s.PicHeightInMbsMinus1+1) * 16
	if s.FrameCropping != nil {
		_, cropY := s.cropUnits()
		height -= int(s.FrameCropping.TopOffset+s.FrameCropping.BottomOffset) * cropY
	}
	return height
}
