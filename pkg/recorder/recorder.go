// SPDX-License-Identifier: GPL-2.0-or-later

// Package recorder persists a live stream of audio and
// video samples to a file without blocking the producer.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"movierec/pkg/log"
	"movierec/pkg/queue"
)

// Delegate is notified about the progress of a recording.
// OnFailed and OnFinished are mutually exclusive.
type Delegate interface {
	OnPrepared(*Recorder)
	OnFinished(*Recorder)
	OnFailed(*Recorder, error)
}

// Recorder writes a single recording session to path.
//
// Configuration methods must be called before Prepare. The append
// methods and Finish return immediately, the work is done on a
// background writer sequence. Calls that the current status
// doesn't allow panic with an error that wraps ErrMisuse.
type Recorder struct {
	path    string
	open    OpenFunc
	logger  log.ILogger
	writing *queue.Serial

	// mu guards every field below. Never held across I/O.
	mu             sync.Mutex
	status         Status
	videoFormat    *VideoFormat
	videoTransform Transform
	audioFormat    *AudioFormat
	writer         TrackWriter
	videoTrack     Track
	audioTrack     Track
	sessionStarted bool
	delegate       Delegate
	callbackQueue  queue.Dispatcher
	delegateSet    bool
}

// NewRecorder returns an idle recorder.
func NewRecorder(path string, open OpenFunc, logger log.ILogger) *Recorder {
	return &Recorder{
		path:    path,
		open:    open,
		logger:  logger,
		writing: queue.NewSerial(),
		status:  StatusIdle,
	}
}

func misuse(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMisuse, fmt.Sprintf(format, a...))
}

// Path returns the destination path.
func (r *Recorder) Path() string {
	return r.path
}

// Status returns the current status.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AddVideoTrack registers the video source. At most once, while idle.
func (r *Recorder) AddVideoTrack(format VideoFormat, transform Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusIdle {
		panic(misuse("cannot add tracks while not idle"))
	}
	if r.videoFormat != nil {
		panic(misuse("cannot add more than one video track"))
	}
	r.videoFormat = &format
	r.videoTransform = transform
}

// AddAudioTrack registers the audio source. At most once, while idle.
func (r *Recorder) AddAudioTrack(format AudioFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusIdle {
		panic(misuse("cannot add tracks while not idle"))
	}
	if r.audioFormat != nil {
		panic(misuse("cannot add more than one audio track"))
	}
	r.audioFormat = &format
}

// SetDelegate sets the delegate and the dispatcher its methods are called
// on. At most once, while idle. The caller keeps the delegate alive.
func (r *Recorder) SetDelegate(delegate Delegate, callbackQueue queue.Dispatcher) {
	if delegate != nil && callbackQueue == nil {
		panic(misuse("caller must provide a callback queue"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusIdle {
		panic(misuse("cannot set delegate while not idle"))
	}
	if r.delegateSet {
		panic(misuse("delegate already set"))
	}
	r.delegate = delegate
	r.callbackQueue = callbackQueue
	r.delegateSet = true
}

// Delegate returns the delegate.
func (r *Recorder) Delegate() Delegate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delegate
}

// Prepare starts setting up the writer. The delegate's OnPrepared
// or OnFailed is called when done.
func (r *Recorder) Prepare() {
	r.mu.Lock()
	if r.status != StatusIdle {
		r.mu.Unlock()
		panic(misuse("already prepared, cannot prepare again"))
	}
	notify := r.transitionLocked(StatusPreparingToRecord, nil)
	r.mu.Unlock()
	notify()

	go r.prepare()
}

func (r *Recorder) prepare() {
	// The writer will not overwrite an existing file.
	_ = os.Remove(r.path)

	err := r.setup()

	r.mu.Lock()
	var notify func()
	if err != nil {
		notify = r.transitionLocked(StatusFailed, err)
	} else {
		notify = r.transitionLocked(StatusRecording, nil)
	}
	r.mu.Unlock()
	notify()
}

func (r *Recorder) setup() error {
	r.mu.Lock()
	videoFormat := r.videoFormat
	videoTransform := r.videoTransform
	audioFormat := r.audioFormat
	r.mu.Unlock()

	writer, err := r.open(r.path)
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}

	r.mu.Lock()
	r.writer = writer
	r.mu.Unlock()

	if videoFormat != nil {
		track, err := addTrack(writer, videoSettings(*videoFormat, videoTransform))
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.videoTrack = track
		r.mu.Unlock()
	}

	if audioFormat != nil {
		explicit := writer.RequiresExplicitSettings()
		track, err := addTrack(writer, audioSettings(*audioFormat, explicit))
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.audioTrack = track
		r.mu.Unlock()
	}

	if err := writer.StartWriting(); err != nil {
		return fmt.Errorf("start writing: %w", err)
	}
	return nil
}

// AppendVideoSample queues a video sample.
func (r *Recorder) AppendVideoSample(sample Sample) {
	sample.Kind = KindVideo
	r.appendSample(sample)
}

// AppendVideoPixelBuffer queues a raw picture presented at pts.
func (r *Recorder) AppendVideoPixelBuffer(buf PixelBuffer, pts time.Duration) {
	r.mu.Lock()
	format := r.videoFormat
	r.mu.Unlock()

	if format == nil {
		panic(misuse("pixel buffer appended without a video track"))
	}

	r.appendSample(Sample{
		Kind:        KindVideo,
		PTS:         pts,
		DTS:         InvalidTime,
		Duration:    InvalidTime,
		IsSync:      true,
		Data:        buf,
		VideoFormat: format,
	})
}

// AppendAudioSample queues an audio sample.
func (r *Recorder) AppendAudioSample(sample Sample) {
	sample.Kind = KindAudio
	r.appendSample(sample)
}

func (r *Recorder) appendSample(sample Sample) {
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()

	if status < StatusRecording {
		panic(misuse("not ready to record yet"))
	}

	r.writing.Dispatch(func() {
		r.writeSample(sample)
	})
}

// Runs on the writer sequence.
func (r *Recorder) writeSample(sample Sample) {
	r.mu.Lock()
	// The recorder may have failed or finished while
	// the sample was queued, it's discarded silently.
	if r.status > StatusFinishingPart1 {
		r.mu.Unlock()
		return
	}
	startSession := !r.sessionStarted
	r.sessionStarted = true
	writer := r.writer
	track := r.videoTrack
	if sample.Kind == KindAudio {
		track = r.audioTrack
	}
	r.mu.Unlock()

	if startSession {
		writer.StartSession(sample.PTS)
	}

	if track == nil {
		r.logger.Warn().Src("recorder").
			Msgf("no %v track, dropping sample", sample.Kind)
		return
	}
	if !track.ReadyForMoreMediaData() {
		r.logger.Warn().Src("recorder").
			Msgf("%v track not ready for more media data, dropping sample", sample.Kind)
		return
	}

	if err := track.Append(sample); err != nil {
		r.fail(fmt.Errorf("append %v sample: %w", sample.Kind, err))
	}
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	notify := r.transitionLocked(StatusFailed, err)
	r.mu.Unlock()
	notify()
}

// Finish starts finalizing the file. The delegate's OnFinished
// or OnFailed is called when done. Finish is a no-op if the
// recording already failed.
func (r *Recorder) Finish() {
	r.mu.Lock()
	switch r.status {
	case StatusRecording:
		r.transitionLocked(StatusFinishingPart1, nil)
		r.mu.Unlock()

	case StatusFailed:
		r.mu.Unlock()
		r.logger.Info().Src("recorder").Msg("recording has failed, nothing to do")
		return

	default:
		status := r.status
		r.mu.Unlock()
		panic(misuse("not recording: %v", status))
	}

	r.writing.Dispatch(r.finalize)
}

// Runs on the writer sequence.
func (r *Recorder) finalize() {
	r.mu.Lock()
	// An append may have failed while samples were in flight.
	if r.status != StatusFinishingPart1 {
		r.mu.Unlock()
		return
	}
	// Nothing is appended after this point.
	r.transitionLocked(StatusFinishingPart2, nil)
	writer := r.writer
	r.mu.Unlock()

	writer.FinishWriting(func(err error) {
		r.mu.Lock()
		var notify func()
		if err != nil {
			notify = r.transitionLocked(StatusFailed, fmt.Errorf("finish writing: %w", err))
		} else {
			notify = r.transitionLocked(StatusFinished, nil)
		}
		r.mu.Unlock()
		notify()
	})
}

func noop() {}

// transitionLocked changes the status and returns a function that
// notifies the delegate. It must be called with mu held and the
// returned function must be called after mu is released.
func (r *Recorder) transitionLocked(newStatus Status, err error) func() {
	if newStatus == r.status || r.status.Terminal() {
		return noop
	}

	r.logger.Debug().Src("recorder").
		Msgf("state transition: %v->%v", r.status, newStatus)
	r.status = newStatus

	switch newStatus {
	case StatusFinished, StatusFailed:
		failed := newStatus == StatusFailed
		if failed {
			r.logger.Error().Src("recorder").Msgf("recording failed: %v", err)
		}
		// Queued behind any in-flight samples.
		r.writing.Dispatch(func() {
			r.teardown(failed)
		})

	case StatusRecording:

	default:
		return noop
	}

	delegate := r.delegate
	callbackQueue := r.callbackQueue
	if delegate == nil {
		return noop
	}

	return func() {
		callbackQueue.Dispatch(func() {
			switch newStatus {
			case StatusRecording:
				delegate.OnPrepared(r)
			case StatusFinished:
				delegate.OnFinished(r)
			case StatusFailed:
				delegate.OnFailed(r, err)
			}
		})
	}
}

// Runs on the writer sequence.
func (r *Recorder) teardown(removeFile bool) {
	r.mu.Lock()
	writer := r.writer
	r.writer = nil
	r.videoTrack = nil
	r.audioTrack = nil
	r.mu.Unlock()

	if writer != nil {
		if err := writer.Close(); err != nil {
			r.logger.Warn().Src("recorder").Msgf("close writer: %v", err)
		}
	}

	if removeFile {
		err := os.Remove(r.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Src("recorder").Msgf("remove failed recording: %v", err)
		}
	}
}

// Wait blocks until all work queued on the writer sequence has run,
// teardown included once a delegate has been notified of the end.
// Must not be called from the writer sequence itself.
func (r *Recorder) Wait() {
	r.writing.Sync()
}
