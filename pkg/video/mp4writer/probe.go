package mp4writer

import (
	"errors"
	"fmt"
	"os"
	"time"

	gomp4 "github.com/abema/go-mp4"
)

// TrackInfo describes a track of a finished file.
type TrackInfo struct {
	ID              uint32
	Handler         string
	Codec           string
	Timescale       uint32
	Duration        time.Duration
	SampleCount     int
	SyncSampleCount int // Zero if every sample is a sync sample.
	AvgBitrate      uint32

	// Video.
	Width  int
	Height int

	// Audio.
	ChannelCount int
	SampleRate   int
}

// ErrNoMoov moov box not found.
var ErrNoMoov = errors.New("moov box not found")

// Probe reads the track descriptions from a finished file.
func Probe(path string) ([]TrackInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var tracks []TrackInfo
	foundMoov := false
	_, err = gomp4.ReadBoxStructure(file, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov():
			foundMoov = true
			return h.Expand()

		case gomp4.BoxTypeTrak():
			tracks = append(tracks, TrackInfo{})
			return h.Expand()

		case gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd():
			return h.Expand()

		case gomp4.BoxTypeTkhd(), gomp4.BoxTypeMdhd(), gomp4.BoxTypeHdlr(),
			gomp4.BoxTypeAvc1(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeBtrt(),
			gomp4.BoxTypeEsds(), gomp4.BoxTypeStsz(), gomp4.BoxTypeStss():
			if len(tracks) == 0 {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, fmt.Errorf("read %v: %w", h.BoxInfo.Type, err)
			}
			t := &tracks[len(tracks)-1]
			probeBox(box, t)

			// Sample entries contain avcC, btrt and esds.
			if h.BoxInfo.Type == gomp4.BoxTypeAvc1() || h.BoxInfo.Type == gomp4.BoxTypeMp4a() {
				return h.Expand()
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read box structure: %w", err)
	}
	if !foundMoov {
		return nil, ErrNoMoov
	}
	return tracks, nil
}

func probeBox(box gomp4.IBox, t *TrackInfo) {
	switch b := box.(type) {
	case *gomp4.Tkhd:
		t.ID = b.TrackID

	case *gomp4.Mdhd:
		t.Timescale = b.Timescale
		if t.Timescale != 0 {
			t.Duration = time.Duration(b.GetDuration()) * time.Second / time.Duration(t.Timescale)
		}

	case *gomp4.Hdlr:
		t.Handler = string(b.HandlerType[:])

	case *gomp4.VisualSampleEntry:
		t.Codec = b.GetType().String()
		t.Width = int(b.Width)
		t.Height = int(b.Height)

	case *gomp4.AudioSampleEntry:
		t.Codec = b.GetType().String()
		t.ChannelCount = int(b.ChannelCount)
		t.SampleRate = int(b.SampleRate >> 16)

	case *gomp4.Btrt:
		t.AvgBitrate = b.AvgBitrate

	case *gomp4.Esds:
		for _, d := range b.Descriptors {
			if d.Tag == gomp4.DecoderConfigDescrTag && d.DecoderConfigDescriptor != nil {
				t.AvgBitrate = d.DecoderConfigDescriptor.AvgBitrate
			}
		}

	case *gomp4.Stsz:
		t.SampleCount = int(b.SampleCount)

	case *gomp4.Stss:
		t.SyncSampleCount = int(b.EntryCount)
	}
}
