// SPDX-License-Identifier: GPL-2.0-or-later

package recorder

import (
	"fmt"
	"time"
)

// OpenFunc creates a writer for the destination path.
type OpenFunc func(path string) (TrackWriter, error)

// TrackWriter writes tracks into a container file.
//
// AddTrack is only called before StartWriting. StartSession, the
// appends and FinishWriting are called from a single goroutine.
type TrackWriter interface {
	// RequiresExplicitSettings reports if audio tracks must
	// be described fully instead of by a source format hint.
	RequiresExplicitSettings() bool

	CanApply(TrackSettings) bool
	AddTrack(TrackSettings) (Track, error)
	StartWriting() error

	// StartSession anchors the timeline at the first sample's PTS.
	StartSession(pts time.Duration)

	// FinishWriting finalizes the file asynchronously
	// and calls done exactly once with the result.
	FinishWriting(done func(error))

	// Close releases the writer. Safe to call more than once.
	Close() error
}

// Track accepts samples for a single track.
type Track interface {
	ReadyForMoreMediaData() bool
	Append(Sample) error
}

type cannotSetupInputError struct {
	kind  MediaKind
	cause error
}

func (e *cannotSetupInputError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%v: %v", ErrCannotSetupInput, e.kind)
	}
	return fmt.Sprintf("%v: %v: %v", ErrCannotSetupInput, e.kind, e.cause)
}

func (e *cannotSetupInputError) Is(target error) bool {
	return target == ErrCannotSetupInput
}

func (e *cannotSetupInputError) Unwrap() error {
	return e.cause
}

func addTrack(w TrackWriter, settings TrackSettings) (Track, error) {
	if !w.CanApply(settings) {
		return nil, &cannotSetupInputError{kind: settings.Kind}
	}
	track, err := w.AddTrack(settings)
	if err != nil {
		return nil, &cannotSetupInputError{kind: settings.Kind, cause: err}
	}
	return track, nil
}
