package customformat

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// Writer writes recordings in the custom format.
type Writer struct {
	meta io.Writer
	mdat io.Writer

	mdatPos int64
}

// NewWriter creates a new Writer and writes the header.
func NewWriter(meta io.Writer, mdat io.Writer, header Header) (*Writer, error) {
	buf, err := header.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := meta.Write(buf); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{meta: meta, mdat: mdat}, nil
}

// ErrMdatTooLarge the mdat file would exceed 32 bit offsets.
var ErrMdatTooLarge = errors.New("mdat file too large")

// SampleData is a sample together with its media data.
// The offset and size are set by the writer.
type SampleData struct {
	Sample
	Data []byte
}

// WriteSamples sorts the samples by decode time and writes them.
func (w *Writer) WriteSamples(samples []SampleData) error {
	sorted := make([]SampleData, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DecodeTime() < sorted[j].DecodeTime()
	})

	for _, s := range sorted {
		if err := w.WriteSample(s.Sample, s.Data); err != nil {
			return err
		}
	}
	return nil
}

// WriteSample writes the data to the mdat file, then the sample to the meta file.
func (w *Writer) WriteSample(s Sample, data []byte) error {
	if w.mdatPos+int64(len(data)) > math.MaxUint32 {
		return ErrMdatTooLarge
	}
	s.Offset = uint32(w.mdatPos)
	s.Size = uint32(len(data))

	n, err := w.mdat.Write(data)
	w.mdatPos += int64(n)
	if err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	if _, err := w.meta.Write(s.Marshal()); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}
