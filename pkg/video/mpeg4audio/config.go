// Package mpeg4audio encodes and decodes MPEG-4 AudioSpecificConfig.
package mpeg4audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

// ObjectType is a MPEG-4 Audio object type.
type ObjectType int

// Supported object types.
const (
	ObjectTypeAACLC ObjectType = 2
	ObjectTypeSBR   ObjectType = 5
)

// SamplesPerAccessUnit is the number of samples contained by a single AAC AU.
const SamplesPerAccessUnit = 1024

var sampleRates = []int{
	96000,
	88200,
	64000,
	48000,
	44100,
	32000,
	24000,
	22050,
	16000,
	12000,
	11025,
	8000,
	7350,
}

var reverseSampleRates = func() map[int]int {
	m := make(map[int]int, len(sampleRates))
	for i, rate := range sampleRates {
		m[rate] = i
	}
	return m
}()

// Errors.
var (
	ErrConfigDecodeTypeUnsupported    = errors.New("unsupported object type")
	ErrConfigDecodeSampleRateInvalid  = errors.New("invalid sample rate index")
	ErrConfigDecodeChannelUnsupported = errors.New("channel configuration 0 is not supported")
	ErrConfigDecodeChannelInvalid     = errors.New("invalid channel configuration")

	ErrConfigEncodeChannelCountInvalid = errors.New("invalid channel count")
	ErrConfigEncodeSampleRateInvalid   = errors.New("invalid sample rate")
)

// Config is a MPEG-4 Audio configuration.
type Config struct {
	Type         ObjectType
	SampleRate   int
	ChannelCount int

	// SBR specific.
	ExtensionSampleRate int
}

func readSampleRate(r *bitio.Reader) (int, error) {
	index, err := r.ReadBits(4)
	if err != nil {
		return 0, err
	}
	switch {
	case int(index) < len(sampleRates):
		return sampleRates[index], nil

	case index == 15:
		tmp, err := r.ReadBits(24)
		if err != nil {
			return 0, err
		}
		return int(tmp), nil

	default:
		return 0, fmt.Errorf("%w (%d)", ErrConfigDecodeSampleRateInvalid, index)
	}
}

// Decode decodes a Config.
func (c *Config) Decode(byts []byte) error {
	// ref: ISO 14496-3

	r := bitio.NewReader(bytes.NewReader(byts))

	tmp, err := r.ReadBits(5)
	if err != nil {
		return err
	}
	c.Type = ObjectType(tmp)

	switch c.Type {
	case ObjectTypeAACLC, ObjectTypeSBR:
	default:
		return fmt.Errorf("%w: %d", ErrConfigDecodeTypeUnsupported, c.Type)
	}

	if c.SampleRate, err = readSampleRate(r); err != nil {
		return err
	}

	channelConfig, err := r.ReadBits(4)
	if err != nil {
		return err
	}

	switch {
	case channelConfig == 0:
		return ErrConfigDecodeChannelUnsupported

	case channelConfig >= 1 && channelConfig <= 6:
		c.ChannelCount = int(channelConfig)

	case channelConfig == 7:
		c.ChannelCount = 8

	default:
		return fmt.Errorf("%w (%d)", ErrConfigDecodeChannelInvalid, channelConfig)
	}

	c.ExtensionSampleRate = 0
	if c.Type == ObjectTypeSBR {
		if c.ExtensionSampleRate, err = readSampleRate(r); err != nil {
			return err
		}
	}
	return nil
}

func writeSampleRate(w *bitio.Writer, rate int) {
	if index, ok := reverseSampleRates[rate]; ok {
		w.TryWriteBits(uint64(index), 4)
		return
	}
	w.TryWriteBits(15, 4)
	w.TryWriteBits(uint64(rate), 24)
}

// Encode encodes a Config.
func (c Config) Encode() ([]byte, error) {
	var channelConfig int
	switch {
	case c.ChannelCount >= 1 && c.ChannelCount <= 6:
		channelConfig = c.ChannelCount

	case c.ChannelCount == 8:
		channelConfig = 7

	default:
		return nil, fmt.Errorf("%w (%d)",
			ErrConfigEncodeChannelCountInvalid, c.ChannelCount)
	}

	if c.SampleRate <= 0 || c.SampleRate >= 1<<24 {
		return nil, fmt.Errorf("%w (%d)", ErrConfigEncodeSampleRateInvalid, c.SampleRate)
	}

	typ := c.Type
	if typ == 0 {
		typ = ObjectTypeAACLC
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteBits(uint64(typ), 5)
	writeSampleRate(w, c.SampleRate)
	w.TryWriteBits(uint64(channelConfig), 4)

	if typ == ObjectTypeSBR {
		writeSampleRate(w, c.ExtensionSampleRate)
	} else {
		// Frame length flag, depends on core coder, extension flag.
		w.TryWriteBits(0, 3)
	}

	if w.TryError != nil {
		return nil, w.TryError
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
