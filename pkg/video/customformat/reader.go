package customformat

import (
	"errors"
	"fmt"
	"io"
)

// Reader reads a single meta file.
type Reader struct {
	in io.ReadSeeker

	headerSize  int
	sampleCount int
}

// NewReader reads the header and returns a reader for the samples.
// A partially written trailing sample is ignored.
func NewReader(in io.ReadSeeker, fileSize int) (*Reader, *Header, error) {
	var header Header
	headerSize, err := header.Unmarshal(in)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal header: %w", err)
	}

	r := Reader{
		in:          in,
		headerSize:  headerSize,
		sampleCount: (fileSize - headerSize) / sampleSize,
	}
	return &r, &header, nil
}

// SampleCount returns the number of complete samples.
func (r *Reader) SampleCount() int {
	return r.sampleCount
}

// ReadAllSamples reads and returns all samples in the file.
func (r *Reader) ReadAllSamples() ([]Sample, error) {
	if _, err := r.in.Seek(int64(r.headerSize), io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, sampleSize)
	samples := make([]Sample, r.sampleCount)
	for i := 0; i < r.sampleCount; i++ {
		if _, err := io.ReadFull(r.in, buf); err != nil {
			return nil, err
		}
		samples[i].Unmarshal(buf)
	}
	return samples, nil
}

// ErrDataOutOfRange the sample points past the end of the mdat file.
var ErrDataOutOfRange = errors.New("sample data out of range")

// ReadData reads the media data of a sample from the mdat file.
func ReadData(mdat io.ReaderAt, s Sample) ([]byte, error) {
	buf := make([]byte, s.Size)
	n, err := mdat.ReadAt(buf, int64(s.Offset))
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrDataOutOfRange, s.Offset, s.Size)
	}
	return nil, err
}
