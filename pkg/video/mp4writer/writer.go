// Package mp4writer writes recordings as progressive MP4 files.
//
// The file is written front to back: ftyp, a growing mdat and
// finally moov once the recording is finished.
package mp4writer

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"movierec/pkg/log"
	"movierec/pkg/recorder"
	"movierec/pkg/video/mp4"
	"movierec/pkg/video/mp4/bitio"

	"github.com/shirou/gopsutil/v3/disk"
)

// Errors.
var (
	ErrNotStarted          = errors.New("writing has not started")
	ErrAlreadyStarted      = errors.New("writing has already started")
	ErrFinishing           = errors.New("writer is finishing")
	ErrClosed              = errors.New("writer is closed")
	ErrNoTracks            = errors.New("no tracks")
	ErrDuplicateTrack      = errors.New("track of this kind already added")
	ErrUnsupportedSettings = errors.New("unsupported track settings")
	ErrWrongKind           = errors.New("sample kind does not match track")
	ErrInvalidTime         = errors.New("invalid presentation time")
	ErrDecodeTimeBackwards = errors.New("decode time went backwards")
	ErrFileTooLarge        = errors.New("file exceeds 32 bit offsets")
	ErrEmptySample         = errors.New("empty sample")
	ErrCompositionOffset   = errors.New("composition offset exceeds 32 bits")
)

// Time scales.
const (
	movieTimescale = 1000
	videoTimescale = 90000
)

// Default durations used for the last sample of a track
// when nothing better is known.
const (
	defaultVideoSampleDuration = time.Second / 30
	mdatHeaderSize             = 8
)

// Config of the writer.
type Config struct {
	// Appends are refused while the free space on the
	// volume is below MinFreeDisk bytes. Zero disables the check.
	MinFreeDisk       int64
	DiskCheckInterval time.Duration
	Logger            log.ILogger
}

const defaultDiskCheckInterval = 10 * time.Second

type usageFunc func(path string) (*disk.UsageStat, error)

// Writer implements recorder.TrackWriter.
type Writer struct {
	path    string
	cfg     Config
	logger  log.ILogger
	usage   usageFunc
	created uint64 // Seconds since 1904.

	mu        sync.Mutex
	file      *os.File
	buf       *bufio.Writer
	out       *bitio.Writer
	tracks    []*track
	started   bool
	finishing bool
	closed    bool
	err       error

	sessionStarted bool
	sessionStart   time.Duration
	mdatStart      int64
	lastTrack      *track

	lastDiskCheck time.Time
	diskOK        bool
}

// Open creates a new file at path. It fails if the file already exists.
func Open(path string, cfg Config) (*Writer, error) {
	if cfg.DiskCheckInterval <= 0 {
		cfg.DiskCheckInterval = defaultDiskCheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewMockLogger()
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	buf := bufio.NewWriter(file)

	w := &Writer{
		path:    path,
		cfg:     cfg,
		logger:  cfg.Logger,
		usage:   disk.Usage,
		created: uint64(time.Now().Unix()) + secondsFrom1904To1970,
		file:    file,
		buf:     buf,
		out:     bitio.NewWriter(buf),
		diskOK:  true,
	}
	w.logger.Debug().Src("mp4writer").Msgf("opened %v", path)
	return w, nil
}

const secondsFrom1904To1970 = 2082844800

// Opener returns a recorder.OpenFunc that opens writers with cfg.
func Opener(cfg Config) recorder.OpenFunc {
	return func(path string) (recorder.TrackWriter, error) {
		return Open(path, cfg)
	}
}

// RequiresExplicitSettings is true, audio tracks
// are described by sample rate and channel count.
func (w *Writer) RequiresExplicitSettings() bool {
	return true
}

// CanApply reports if a track with the settings can be added.
func (w *Writer) CanApply(s recorder.TrackSettings) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.closed {
		return false
	}
	for _, t := range w.tracks {
		if t.kind == s.Kind {
			return false
		}
	}

	switch s.Kind {
	case recorder.KindVideo:
		return s.Codec == recorder.CodecH264 &&
			s.Width > 0 && s.Width <= math.MaxUint16 &&
			s.Height > 0 && s.Height <= math.MaxUint16 &&
			s.VideoHint != nil &&
			len(s.VideoHint.SPS) != 0 &&
			len(s.VideoHint.PPS) != 0

	case recorder.KindAudio:
		rate, channels := audioParams(s)
		return s.Codec == recorder.CodecAAC &&
			rate > 0 && channels > 0 && channels <= 8
	}
	return false
}

// audioParams prefers explicit settings over the source hint.
func audioParams(s recorder.TrackSettings) (int, int) {
	rate, channels := s.SampleRate, s.ChannelCount
	if s.AudioHint != nil {
		if rate == 0 {
			rate = s.AudioHint.SampleRate
		}
		if channels == 0 {
			channels = s.AudioHint.ChannelCount
		}
	}
	return rate, channels
}

// AddTrack adds a track. Must be called before StartWriting.
func (w *Writer) AddTrack(s recorder.TrackSettings) (recorder.Track, error) {
	if !w.CanApply(s) {
		return nil, ErrUnsupportedSettings
	}

	var t *track
	var err error
	switch s.Kind {
	case recorder.KindVideo:
		t, err = newVideoTrack(w, s)
	case recorder.KindAudio:
		t, err = newAudioTrack(w, s)
	}
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil, ErrAlreadyStarted
	}
	t.id = uint32(len(w.tracks) + 1)
	w.tracks = append(w.tracks, t)
	return t, nil
}

// StartWriting writes the file header.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return ErrClosed
	case w.started:
		return ErrAlreadyStarted
	case len(w.tracks) == 0:
		return ErrNoTracks
	}

	ftyp := &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: [][4]byte{
			{'i', 's', 'o', 'm'},
			{'i', 's', 'o', '2'},
			{'a', 'v', 'c', '1'},
			{'m', 'p', '4', '1'},
		},
	}
	if _, err := mp4.WriteSingleBox(w.out, ftyp); err != nil {
		return w.setErr(fmt.Errorf("write ftyp: %w", err))
	}

	// The size is patched when the writer finishes.
	w.mdatStart = w.out.Written()
	w.out.TryWriteUint32(0)
	w.out.TryWrite([]byte{'m', 'd', 'a', 't'})
	if w.out.TryError != nil {
		return w.setErr(fmt.Errorf("write mdat header: %w", w.out.TryError))
	}

	w.started = true
	return nil
}

func (w *Writer) setErr(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}

// StartSession sets the time that maps to the start of the movie.
// Only the first call has an effect.
func (w *Writer) StartSession(pts time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionStarted {
		return
	}
	w.sessionStarted = true
	w.sessionStart = pts
}

func (w *Writer) ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.finishing || w.closed || w.err != nil {
		return false
	}
	return w.checkDiskLocked()
}

func (w *Writer) checkDiskLocked() bool {
	if w.cfg.MinFreeDisk <= 0 {
		return true
	}
	if !w.lastDiskCheck.IsZero() && time.Since(w.lastDiskCheck) < w.cfg.DiskCheckInterval {
		return w.diskOK
	}
	w.lastDiskCheck = time.Now()

	usage, err := w.usage(filepath.Dir(w.path))
	if err != nil {
		w.logger.Warn().Src("mp4writer").Msgf("disk usage: %v", err)
		w.diskOK = true
		return true
	}

	ok := int64(usage.Free) >= w.cfg.MinFreeDisk
	if !ok && w.diskOK {
		w.logger.Warn().Src("mp4writer").
			Msgf("free disk space %d bytes below minimum %d", usage.Free, w.cfg.MinFreeDisk)
	}
	w.diskOK = ok
	return ok
}

func (w *Writer) append(t *track, s recorder.Sample) error {
	if s.Kind != t.kind {
		return fmt.Errorf("%w: %v sample on %v track", ErrWrongKind, s.Kind, t.kind)
	}
	if s.PTS == recorder.InvalidTime {
		return ErrInvalidTime
	}
	if len(s.Data) == 0 {
		return ErrEmptySample
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.err != nil:
		return w.err
	case w.closed:
		return ErrClosed
	case w.finishing:
		return ErrFinishing
	case !w.started:
		return ErrNotStarted
	}
	if !w.sessionStarted {
		w.sessionStarted = true
		w.sessionStart = s.PTS
	}

	dts := toTimescale(s.DecodeTime()-w.sessionStart, t.timescale)
	pts := toTimescale(s.PTS-w.sessionStart, t.timescale)
	if n := len(t.samples); n != 0 && dts < t.samples[n-1].dts {
		return fmt.Errorf("%w: %v < %v", ErrDecodeTimeBackwards, dts, t.samples[n-1].dts)
	}
	ctsOffset := pts - dts
	if ctsOffset > math.MaxInt32 || ctsOffset < math.MinInt32 {
		return fmt.Errorf("%w: %v", ErrCompositionOffset, ctsOffset)
	}

	offset := w.out.Written()
	if offset+int64(len(s.Data)) > math.MaxUint32 {
		return w.setErr(ErrFileTooLarge)
	}

	w.out.TryWrite(s.Data)
	if w.out.TryError != nil {
		return w.setErr(fmt.Errorf("write sample: %w", w.out.TryError))
	}

	if w.lastTrack != t {
		t.chunkOffsets = append(t.chunkOffsets, uint32(offset))
		t.samplesPerChunk = append(t.samplesPerChunk, 0)
		w.lastTrack = t
	}
	t.samplesPerChunk[len(t.samplesPerChunk)-1]++

	t.samples = append(t.samples, sampleEntry{
		dts:       dts,
		ctsOffset: int32(ctsOffset),
		size:      uint32(len(s.Data)),
		sync:      s.IsSync,
	})
	t.lastDuration = s.Duration
	return nil
}

// toTimescale converts a duration to the nearest timescale unit.
func toTimescale(d time.Duration, timescale uint32) int64 {
	ts := int64(timescale)
	secs := int64(d / time.Second)
	rem := int64(d % time.Second)

	const half = int64(time.Second) / 2
	if rem < 0 {
		return secs*ts + (rem*ts-half)/int64(time.Second)
	}
	return secs*ts + (rem*ts+half)/int64(time.Second)
}

// FinishWriting writes the movie header and closes the file
// on a new goroutine. Done is called with the result.
func (w *Writer) FinishWriting(done func(error)) {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		go done(ErrClosed)
		return
	case w.finishing:
		w.mu.Unlock()
		go done(ErrFinishing)
		return
	case !w.started:
		w.mu.Unlock()
		go done(ErrNotStarted)
		return
	}
	w.finishing = true
	w.mu.Unlock()

	go func() {
		done(w.finish())
	}()
}

func (w *Writer) finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	mdatEnd := w.out.Written()
	if err := w.writeMoov(); err != nil {
		return w.setErr(fmt.Errorf("write moov: %w", err))
	}
	if err := w.buf.Flush(); err != nil {
		return w.setErr(fmt.Errorf("flush: %w", err))
	}

	if err := w.patchMdatSize(mdatEnd - w.mdatStart); err != nil {
		return w.setErr(fmt.Errorf("patch mdat size: %w", err))
	}

	if err := w.file.Sync(); err != nil {
		return w.setErr(fmt.Errorf("sync: %w", err))
	}
	w.closed = true
	if err := w.file.Close(); err != nil {
		return w.setErr(fmt.Errorf("close: %w", err))
	}

	for _, t := range w.tracks {
		w.logger.Info().Src("mp4writer").
			Msgf("finished %v track %d: %d samples", t.kind, t.id, len(t.samples))
	}
	return nil
}

func (w *Writer) patchMdatSize(size int64) error {
	var b [4]byte
	b[0] = byte(size >> 24)
	b[1] = byte(size >> 16)
	b[2] = byte(size >> 8)
	b[3] = byte(size)
	_, err := w.file.WriteAt(b[:], w.mdatStart)
	return err
}

// Close closes the file without finishing it. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.buf.Reset(nil)
	return w.file.Close()
}
