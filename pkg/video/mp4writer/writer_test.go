package mp4writer

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"movierec/pkg/log"
	"movierec/pkg/recorder"
	"movierec/pkg/video/mp4"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xbf, 0xe5, 0x40}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func videoSettings() recorder.TrackSettings {
	return recorder.TrackSettings{
		Kind:                recorder.KindVideo,
		Codec:               recorder.CodecH264,
		ExpectsRealTime:     true,
		Width:               640,
		Height:              360,
		AverageBitRate:      933120,
		MaxKeyFrameInterval: 30,
		Transform:           recorder.IdentityTransform,
		VideoHint: &recorder.VideoFormat{
			Codec:  recorder.CodecH264,
			Width:  640,
			Height: 360,
			SPS:    testSPS,
			PPS:    testPPS,
		},
	}
}

func audioSettings() recorder.TrackSettings {
	return recorder.TrackSettings{
		Kind:              recorder.KindAudio,
		Codec:             recorder.CodecAAC,
		ExpectsRealTime:   true,
		SampleRate:        8000,
		ChannelCount:      1,
		BitRatePerChannel: 64000,
		AudioHint: &recorder.AudioFormat{
			Codec:        recorder.CodecAAC,
			SampleRate:   8000,
			ChannelCount: 1,
		},
	}
}

// 25 frames per second is exact in both time.Duration and 90kHz.
func videoSample(i int) recorder.Sample {
	nalu := byte(0x41)
	if i == 0 {
		nalu = 0x65
	}
	return recorder.Sample{
		Kind:     recorder.KindVideo,
		PTS:      time.Duration(i) * 40 * time.Millisecond,
		DTS:      recorder.InvalidTime,
		Duration: recorder.InvalidTime,
		IsSync:   i == 0,
		Data:     []byte{0, 0, 0, 1, nalu},
	}
}

// 1024 samples at 8kHz are 128ms.
func audioSample(i int) recorder.Sample {
	return recorder.Sample{
		Kind:     recorder.KindAudio,
		PTS:      time.Duration(i) * 128 * time.Millisecond,
		DTS:      recorder.InvalidTime,
		Duration: 128 * time.Millisecond,
		IsSync:   true,
		Data:     []byte{0x21, 0x10, 0x04},
	}
}

func newTestWriter(t *testing.T, cfg Config) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	if cfg.Logger == nil {
		cfg.Logger = log.NewMockLogger()
	}
	w, err := Open(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, path
}

func finish(t *testing.T, w *Writer) error {
	t.Helper()
	done := make(chan error, 1)
	w.FinishWriting(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for FinishWriting")
		return nil
	}
}

func TestWriter(t *testing.T) {
	t.Run("videoAndAudio", func(t *testing.T) {
		w, path := newTestWriter(t, Config{})

		video, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		audio, err := w.AddTrack(audioSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		w.StartSession(0)

		for i := 0; i < 30; i++ {
			require.True(t, video.ReadyForMoreMediaData())
			require.NoError(t, video.Append(videoSample(i)))
			if i%3 == 0 {
				require.NoError(t, audio.Append(audioSample(i/3)))
			}
		}
		require.NoError(t, finish(t, w))
		require.False(t, video.ReadyForMoreMediaData())

		tracks, err := Probe(path)
		require.NoError(t, err)
		require.Equal(t, []TrackInfo{
			{
				ID:              1,
				Handler:         "vide",
				Codec:           "avc1",
				Timescale:       90000,
				Duration:        1200 * time.Millisecond,
				SampleCount:     30,
				SyncSampleCount: 1,
				AvgBitrate:      933120,
				Width:           640,
				Height:          360,
			},
			{
				ID:           2,
				Handler:      "soun",
				Codec:        "mp4a",
				Timescale:    8000,
				Duration:     1280 * time.Millisecond,
				SampleCount:  10,
				AvgBitrate:   64000,
				ChannelCount: 1,
				SampleRate:   8000,
			},
		}, tracks)

		// ftyp is 32 bytes, the mdat header follows.
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "mdat", string(raw[36:40]))
		mdatSize := binary.BigEndian.Uint32(raw[32:36])
		require.Equal(t, uint32(8+30*5+10*3), mdatSize)
		require.Equal(t, []byte{0, 0, 0, 1, 0x65}, raw[40:45])
		require.Equal(t, "moov", string(raw[32+mdatSize+4:32+mdatSize+8]))
	})
	t.Run("existingFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.mp4")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

		_, err := Open(path, Config{})
		require.ErrorIs(t, err, os.ErrExist)
	})
	t.Run("noTracks", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		require.ErrorIs(t, w.StartWriting(), ErrNoTracks)
	})
	t.Run("startTwice", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		_, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		require.ErrorIs(t, w.StartWriting(), ErrAlreadyStarted)
		require.False(t, w.CanApply(audioSettings()))
	})
	t.Run("derivedAudioConfig", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		tr, err := w.AddTrack(audioSettings())
		require.NoError(t, err)
		require.Equal(t, []byte{0x15, 0x88}, tr.(*track).config)
	})
	t.Run("hintAudioConfig", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		s := audioSettings()
		s.AudioHint.Config = []byte{0x12, 0x08}
		s.SampleRate = 44100
		tr, err := w.AddTrack(s)
		require.NoError(t, err)
		require.Equal(t, []byte{0x12, 0x08}, tr.(*track).config)
		require.Equal(t, uint32(44100), tr.(*track).timescale)
	})
	t.Run("closeTwice", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		require.ErrorIs(t, finish(t, w), ErrClosed)
	})
	t.Run("withoutMoov", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.mp4")
		ftyp := []byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0}
		require.NoError(t, os.WriteFile(path, ftyp, 0o600))

		_, err := Probe(path)
		require.ErrorIs(t, err, ErrNoMoov)

		_, err = Probe(filepath.Join(t.TempDir(), "missing.mp4"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("finishBeforeStart", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		require.ErrorIs(t, finish(t, w), ErrNotStarted)
	})
}

func TestCanApply(t *testing.T) {
	cases := map[string]struct {
		modify func(*recorder.TrackSettings)
		audio  bool
	}{
		"wrongVideoCodec": {modify: func(s *recorder.TrackSettings) { s.Codec = recorder.CodecAAC }},
		"noHint":          {modify: func(s *recorder.TrackSettings) { s.VideoHint = nil }},
		"noSPS":           {modify: func(s *recorder.TrackSettings) { s.VideoHint.SPS = nil }},
		"zeroWidth":       {modify: func(s *recorder.TrackSettings) { s.Width = 0 }},
		"unknownKind":     {modify: func(s *recorder.TrackSettings) { s.Kind = 0 }},
		"noSampleRate": {
			audio: true,
			modify: func(s *recorder.TrackSettings) {
				s.SampleRate = 0
				s.AudioHint.SampleRate = 0
			},
		},
		"tooManyChannels": {
			audio:  true,
			modify: func(s *recorder.TrackSettings) { s.ChannelCount = 9 },
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := newTestWriter(t, Config{})
			s := videoSettings()
			if tc.audio {
				s = audioSettings()
			}
			tc.modify(&s)
			require.False(t, w.CanApply(s))
			_, err := w.AddTrack(s)
			require.ErrorIs(t, err, ErrUnsupportedSettings)
		})
	}

	t.Run("duplicateKind", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		_, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.False(t, w.CanApply(videoSettings()))
	})
	t.Run("dimensionMismatch", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		s := videoSettings()
		s.Height = 480
		require.True(t, w.CanApply(s))
		_, err := w.AddTrack(s)
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestAppendErrors(t *testing.T) {
	newVideo := func(t *testing.T) (*Writer, recorder.Track) {
		w, _ := newTestWriter(t, Config{})
		tr, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		return w, tr
	}

	t.Run("notStarted", func(t *testing.T) {
		_, tr := newVideo(t)
		require.ErrorIs(t, tr.Append(videoSample(0)), ErrNotStarted)
		require.False(t, tr.ReadyForMoreMediaData())
	})
	t.Run("wrongKind", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		require.ErrorIs(t, tr.Append(audioSample(0)), ErrWrongKind)
	})
	t.Run("invalidTime", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		s := videoSample(0)
		s.PTS = recorder.InvalidTime
		require.ErrorIs(t, tr.Append(s), ErrInvalidTime)
	})
	t.Run("empty", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		s := videoSample(0)
		s.Data = nil
		require.ErrorIs(t, tr.Append(s), ErrEmptySample)
	})
	t.Run("backwards", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		require.NoError(t, tr.Append(videoSample(2)))
		require.ErrorIs(t, tr.Append(videoSample(1)), ErrDecodeTimeBackwards)
	})
	t.Run("compositionOffsetRange", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		w.StartSession(0)

		s := videoSample(0)
		s.PTS = 10 * time.Hour
		s.DTS = 0
		require.ErrorIs(t, tr.Append(s), ErrCompositionOffset)
		require.Empty(t, tr.(*track).samples)
		require.Equal(t, int64(mdatHeaderSize), w.out.Written()-w.mdatStart)

		// Not sticky.
		require.NoError(t, tr.Append(videoSample(1)))
	})
	t.Run("finishing", func(t *testing.T) {
		w, tr := newVideo(t)
		require.NoError(t, w.StartWriting())
		require.NoError(t, tr.Append(videoSample(0)))
		require.NoError(t, finish(t, w))
		require.ErrorIs(t, tr.Append(videoSample(1)), ErrClosed)
	})
}

func TestReadiness(t *testing.T) {
	t.Run("lowDisk", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{
			MinFreeDisk:       100,
			DiskCheckInterval: time.Hour,
		})
		free := uint64(10)
		calls := 0
		w.usage = func(string) (*disk.UsageStat, error) {
			calls++
			return &disk.UsageStat{Free: free}, nil
		}
		tr, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())

		require.False(t, tr.ReadyForMoreMediaData())

		// Cached until the interval has passed.
		free = 1000
		require.False(t, tr.ReadyForMoreMediaData())
		require.Equal(t, 1, calls)

		w.lastDiskCheck = time.Time{}
		require.True(t, tr.ReadyForMoreMediaData())
		require.Equal(t, 2, calls)
	})
	t.Run("usageErr", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{MinFreeDisk: 100})
		w.usage = func(string) (*disk.UsageStat, error) {
			return nil, errors.New("mock")
		}
		tr, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		require.True(t, tr.ReadyForMoreMediaData())
	})
	t.Run("realDisk", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{MinFreeDisk: 1 << 62})
		tr, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		require.False(t, tr.ReadyForMoreMediaData())
	})
}

func TestTiming(t *testing.T) {
	t.Run("lastDuration", func(t *testing.T) {
		tr := &track{kind: recorder.KindAudio, timescale: 8000}
		require.Nil(t, tr.deltas())

		tr.samples = []sampleEntry{{dts: 0}}
		tr.lastDuration = recorder.InvalidTime
		require.Equal(t, []uint32{1024}, tr.deltas())

		tr.samples = append(tr.samples, sampleEntry{dts: 1000})
		require.Equal(t, []uint32{1000, 1000}, tr.deltas())

		tr.lastDuration = 64 * time.Millisecond
		require.Equal(t, []uint32{1000, 512}, tr.deltas())
		require.Equal(t, uint64(1512), tr.mediaDuration())
	})
	t.Run("defaultVideoDuration", func(t *testing.T) {
		tr := &track{
			kind:         recorder.KindVideo,
			timescale:    videoTimescale,
			samples:      []sampleEntry{{dts: 0}},
			lastDuration: recorder.InvalidTime,
		}
		require.Equal(t, []uint32{3000}, tr.deltas())
	})
	t.Run("startGap", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		tr, err := w.AddTrack(audioSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		w.StartSession(time.Second)

		s := audioSample(0)
		s.PTS = 1500 * time.Millisecond
		require.NoError(t, tr.Append(s))
		require.Equal(t, int64(4000), tr.(*track).startGap())
	})
	t.Run("compositionOffsets", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		tr, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		w.StartSession(0)

		s := videoSample(1)
		s.DTS = 0
		require.NoError(t, tr.Append(s))
		require.True(t, tr.(*track).hasCompositionOffsets())
		require.Equal(t, int32(3600), tr.(*track).samples[0].ctsOffset)
	})
	t.Run("earlySample", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		video, err := w.AddTrack(videoSettings())
		require.NoError(t, err)
		audio, err := w.AddTrack(audioSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		w.StartSession(time.Second)

		v := videoSample(0)
		v.PTS = time.Second
		require.NoError(t, video.Append(v))

		// Captured 40ms before the session start.
		a := audioSample(0)
		a.PTS = 960 * time.Millisecond
		require.NoError(t, audio.Append(a))

		at := audio.(*track)
		require.Equal(t, int64(-320), at.samples[0].dts)
		require.Equal(t, int64(0), at.startGap())
		require.Equal(t, int64(320), at.mediaStart())

		trak, duration := w.generateTrak(at)
		elst := trak.Children[1].Children[0].Box.(*mp4.Elst)
		require.Equal(t, []mp4.ElstEntry{{SegmentDuration: 88, MediaTime: 320}}, elst.Entries)
		require.Equal(t, uint64(88), duration)

		vt := video.(*track)
		require.Equal(t, int64(0), vt.mediaStart())
		trak, _ = w.generateTrak(vt)
		elst = trak.Children[1].Children[0].Box.(*mp4.Elst)
		require.Equal(t, []mp4.ElstEntry{{SegmentDuration: 33, MediaTime: 0}}, elst.Entries)
	})
	t.Run("lateSample", func(t *testing.T) {
		w, _ := newTestWriter(t, Config{})
		tr, err := w.AddTrack(audioSettings())
		require.NoError(t, err)
		require.NoError(t, w.StartWriting())
		w.StartSession(time.Second)

		s := audioSample(0)
		s.PTS = 1040 * time.Millisecond
		require.NoError(t, tr.Append(s))

		trak, duration := w.generateTrak(tr.(*track))
		elst := trak.Children[1].Children[0].Box.(*mp4.Elst)
		require.Equal(t, []mp4.ElstEntry{
			{SegmentDuration: 40, MediaTime: -1},
			{SegmentDuration: 128, MediaTime: 0},
		}, elst.Entries)
		require.Equal(t, uint64(168), duration)
	})
	t.Run("toTimescale", func(t *testing.T) {
		require.Equal(t, int64(90000), toTimescale(time.Second, 90000))
		require.Equal(t, int64(3600), toTimescale(40*time.Millisecond, 90000))
		require.Equal(t, int64(-8000), toTimescale(-time.Second, 8000))
		require.Equal(t, int64(90000*3600*30), toTimescale(30*time.Hour, 90000))
		require.Equal(t, int64(3000), toTimescale(time.Second/30, 90000))
		require.Equal(t, int64(-3000), toTimescale(-time.Second/30, 90000))
		require.Equal(t, int64(-320), toTimescale(-40*time.Millisecond, 8000))
	})
	t.Run("noJitter", func(t *testing.T) {
		for i := 0; i < 300; i++ {
			d := time.Duration(i) * time.Second / 30
			require.Equal(t, int64(i)*3000, toTimescale(d, videoTimescale), i)
		}
	})
}

func TestTransformMatrix(t *testing.T) {
	require.Equal(t,
		[9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000},
		transformMatrix(recorder.IdentityTransform))

	rotate90 := recorder.Transform{B: 1, C: -1, TX: 360}
	require.Equal(t,
		[9]int32{0, 0x10000, 0, -0x10000, 0, 0, 360 << 16, 0, 0x40000000},
		transformMatrix(rotate90))
}
