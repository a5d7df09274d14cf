package customformat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	meta := &bytes.Buffer{}
	mdat := &bytes.Buffer{}

	testHeader := Header{
		VideoSPS:    []byte{0, 1},
		VideoPPS:    []byte{2, 3, 4},
		AudioConfig: []byte{5, 6, 7, 8},
		StartTime:   1000000000,
	}

	w, err := NewWriter(meta, mdat, testHeader)
	require.NoError(t, err)

	err = w.WriteSamples([]SampleData{
		{
			Sample: Sample{
				IsSyncSample: true,
				PTS:          100000000000000000,
				DTS:          200000000000000000,
				Next:         300000000000000000,
			},
			Data: []byte{9},
		},
		{
			Sample: Sample{IsAudioSample: true, PTS: 1, Next: 2},
			Data:   []byte{7, 8},
		},
	})
	require.NoError(t, err)

	metaExpected := []byte{
		0,    // Version.
		0, 2, // Video sps size.
		0, 1, // Video sps.
		0, 3, // Video pps size.
		2, 3, 4, // Video pps.
		0, 4, // Audio config size.
		5, 6, 7, 8, // Audio Config.
		0, 0, 0, 0, 0x3b, 0x9a, 0xca, 0, // Start time.

		// Audio sample.
		0x1,                    // Flags.
		0, 0, 0, 0, 0, 0, 0, 1, // PTS.
		0, 0, 0, 0, 0, 0, 0, 0, // Unused DTS.
		0, 0, 0, 0, 0, 0, 0, 2, // Next pts.
		0, 0, 0, 0, // Offset.
		0, 0, 0, 2, // Size.

		// Video sample.
		0x2,                                     // Flags.
		0x1, 0x63, 0x45, 0x78, 0x5d, 0x8a, 0, 0, // PTS.
		0x2, 0xc6, 0x8a, 0xf0, 0xbb, 0x14, 0, 0, // DTS.
		0x4, 0x29, 0xd0, 0x69, 0x18, 0x9e, 0, 0, // Next dts.
		0, 0, 0, 2, // Offset.
		0, 0, 0, 1, // Size.
	}
	require.Equal(t, metaExpected, meta.Bytes())
	require.Equal(t, []byte{7, 8, 9}, mdat.Bytes())

	r, header, err := NewReader(bytes.NewReader(metaExpected), len(metaExpected))
	require.NoError(t, err)
	require.Equal(t, testHeader, *header)

	samples, err := r.ReadAllSamples()
	require.NoError(t, err)
	require.Equal(t, []Sample{
		{
			IsAudioSample: true,
			PTS:           1,
			Next:          2,
			Size:          2,
			Offset:        0,
		},
		{
			IsSyncSample: true,
			PTS:          100000000000000000,
			DTS:          200000000000000000,
			Next:         300000000000000000,
			Size:         1,
			Offset:       2,
		},
	}, samples)

	data, err := ReadData(bytes.NewReader(mdat.Bytes()), samples[1])
	require.NoError(t, err)
	require.Equal(t, []byte{9}, data)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("mock") }

func TestWriterErrors(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		_, err := NewWriter(failWriter{}, &bytes.Buffer{}, Header{})
		require.Error(t, err)
	})
	t.Run("data", func(t *testing.T) {
		w, err := NewWriter(&bytes.Buffer{}, failWriter{}, Header{})
		require.NoError(t, err)
		require.Error(t, w.WriteSample(Sample{}, []byte{1}))
	})
	t.Run("mdatTooLarge", func(t *testing.T) {
		w, err := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, Header{})
		require.NoError(t, err)
		w.mdatPos = 1<<32 - 1
		require.ErrorIs(t, w.WriteSample(Sample{}, []byte{1}), ErrMdatTooLarge)
	})
}

func TestSampleDuration(t *testing.T) {
	video := Sample{PTS: 30, DTS: 10, Next: 50}
	require.Equal(t, int64(10), video.DecodeTime())
	require.Equal(t, int64(40), int64(video.Duration()))

	audio := Sample{IsAudioSample: true, PTS: 30, Next: 50}
	require.Equal(t, int64(30), audio.DecodeTime())
	require.Equal(t, int64(20), int64(audio.Duration()))
}
