// SPDX-License-Identifier: GPL-2.0-or-later

package movierec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"movierec/pkg/log"
	"movierec/pkg/queue"
	"movierec/pkg/recorder"
	"movierec/pkg/video/customformat"
	"movierec/pkg/video/h264"
)

// Source is a recording in the custom format,
// a "<path>.meta" and "<path>.mdat" file pair.
type Source struct {
	header  *customformat.Header
	info    *customformat.StreamInfo
	samples []customformat.Sample
	mdat    *os.File
}

// ErrNoSamples the source contains no samples.
var ErrNoSamples = errors.New("no samples")

// OpenSource reads the meta file and opens the mdat file.
func OpenSource(path string) (*Source, error) {
	meta, err := os.Open(path + ".meta")
	if err != nil {
		return nil, err
	}
	defer meta.Close()

	stat, err := meta.Stat()
	if err != nil {
		return nil, err
	}

	reader, header, err := customformat.NewReader(meta, int(stat.Size()))
	if err != nil {
		return nil, fmt.Errorf("new reader: %w", err)
	}

	info, err := header.StreamInfo()
	if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}

	samples, err := reader.ReadAllSamples()
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	mdat, err := os.Open(path + ".mdat")
	if err != nil {
		return nil, err
	}

	return &Source{
		header:  header,
		info:    info,
		samples: samples,
		mdat:    mdat,
	}, nil
}

// Close the mdat file.
func (s *Source) Close() error {
	return s.mdat.Close()
}

// Len returns the number of samples.
func (s *Source) Len() int {
	return len(s.samples)
}

// VideoFormat of the source.
func (s *Source) VideoFormat() recorder.VideoFormat {
	return recorder.VideoFormat{
		Codec:  recorder.CodecH264,
		Width:  s.info.VideoWidth,
		Height: s.info.VideoHeight,
		SPS:    s.info.VideoSPS,
		PPS:    s.info.VideoPPS,
	}
}

// AudioFormat returns nil if the source has no audio.
func (s *Source) AudioFormat() *recorder.AudioFormat {
	if !s.info.AudioTrackExist {
		return nil
	}
	return &recorder.AudioFormat{
		Codec:        recorder.CodecAAC,
		SampleRate:   s.info.AudioSampleRate,
		ChannelCount: s.info.AudioChannelCount,
		Config:       s.info.AudioConfig,
	}
}

// Sample reads sample i. Times are relative to the start of the source.
func (s *Source) Sample(i int) (recorder.Sample, error) {
	meta := s.samples[i]
	data, err := customformat.ReadData(s.mdat, meta)
	if err != nil {
		return recorder.Sample{}, err
	}

	sample := recorder.Sample{
		Kind:     recorder.KindVideo,
		PTS:      time.Duration(meta.PTS - s.header.StartTime),
		DTS:      recorder.InvalidTime,
		Duration: recorder.InvalidTime,
		IsSync:   meta.IsSyncSample,
		Data:     data,
	}
	if meta.IsAudioSample {
		sample.Kind = recorder.KindAudio
	} else {
		if meta.DTS != meta.PTS {
			sample.DTS = time.Duration(meta.DTS - s.header.StartTime)
		}
		// Older recordings may not flag every IDR.
		sample.IsSync = sample.IsSync || h264.IsRandomAccess(data)
	}
	if d := meta.Duration(); d > 0 {
		sample.Duration = d
	}
	return sample, nil
}

// decodeTime returns the decode time of sample i.
func (s *Source) decodeTime(i int) time.Duration {
	return time.Duration(s.samples[i].DecodeTime() - s.header.StartTime)
}

type replayDelegate struct {
	prepared chan struct{}
	done     chan error
}

func newReplayDelegate() *replayDelegate {
	return &replayDelegate{
		prepared: make(chan struct{}),
		done:     make(chan error, 1),
	}
}

func (d *replayDelegate) OnPrepared(*recorder.Recorder)           { close(d.prepared) }
func (d *replayDelegate) OnFinished(*recorder.Recorder)           { d.done <- nil }
func (d *replayDelegate) OnFailed(_ *recorder.Recorder, err error) { d.done <- err }

// Replay records every sample of src with rec, which must be idle.
// Canceling ctx finishes the recording early. If realTime is
// set, samples are fed at the pace they were captured.
func Replay(
	ctx context.Context,
	rec *recorder.Recorder,
	src *Source,
	realTime bool,
	logger log.ILogger,
) error {
	rec.AddVideoTrack(src.VideoFormat(), recorder.IdentityTransform)
	if audio := src.AudioFormat(); audio != nil {
		rec.AddAudioTrack(*audio)
	}

	d := newReplayDelegate()
	rec.SetDelegate(d, queue.NewSerial())
	rec.Prepare()

	select {
	case <-d.prepared:
	case err := <-d.done:
		rec.Wait()
		return err
	}

	n := feed(ctx, rec, src, realTime, logger)
	logger.Info().Src("app").Msgf("fed %d of %d samples, finishing", n, src.Len())

	rec.Finish()
	err := <-d.done
	rec.Wait()
	return err
}

// feed returns the number of samples appended.
func feed(
	ctx context.Context,
	rec *recorder.Recorder,
	src *Source,
	realTime bool,
	logger log.ILogger,
) int {
	start := time.Now()
	first := src.decodeTime(0)

	for i := 0; i < src.Len(); i++ {
		if rec.Status().Terminal() {
			return i
		}

		if realTime {
			due := start.Add(src.decodeTime(i) - first)
			if !sleepUntil(ctx, due) {
				return i
			}
		} else if ctx.Err() != nil {
			return i
		}

		sample, err := src.Sample(i)
		if err != nil {
			logger.Warn().Src("app").Msgf("read sample %d: %v", i, err)
			return i
		}

		if sample.Kind == recorder.KindAudio {
			rec.AppendAudioSample(sample)
		} else {
			rec.AppendVideoSample(sample)
		}
	}
	return src.Len()
}

// sleepUntil returns false if ctx was canceled first.
func sleepUntil(ctx context.Context, t time.Time) bool {
	wait := time.Until(t)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
