// SPDX-License-Identifier: GPL-2.0-or-later

package log

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level Level) *Logger {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	logger := NewLogger(wg, level)
	logger.Start(ctx)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return logger
}

func TestLogger(t *testing.T) {
	t.Run("msg", func(t *testing.T) {
		logger := newTestLogger(t, LevelDebug)

		feed, cancel := logger.Subscribe()
		defer cancel()

		logger.Error().Src("s1").Time(time.Unix(1, 0)).Msg("test")
		require.Equal(t, Entry{
			Level: LevelError,
			Time:  1000000,
			Src:   "s1",
			Msg:   "test",
		}, <-feed)

		logger.Info().Src("s2").Time(time.Unix(2, 0)).Msgf("%v %v", "a", 1)
		require.Equal(t, Entry{
			Level: LevelInfo,
			Time:  2000000,
			Src:   "s2",
			Msg:   "a 1",
		}, <-feed)
	})
	t.Run("level", func(t *testing.T) {
		logger := newTestLogger(t, LevelWarning)

		feed, cancel := logger.Subscribe()
		defer cancel()

		logger.Debug().Msg("dropped")
		logger.Info().Msg("dropped")
		logger.Warn().Msg("kept")

		entry := <-feed
		require.Equal(t, LevelWarning, entry.Level)
		require.Equal(t, "kept", entry.Msg)
	})
	t.Run("multipleSubscribers", func(t *testing.T) {
		logger := newTestLogger(t, LevelDebug)

		feed1, cancel1 := logger.Subscribe()
		defer cancel1()
		feed2, cancel2 := logger.Subscribe()
		defer cancel2()

		logger.Warn().Msg("a")
		require.Equal(t, "a", (<-feed1).Msg)
		require.Equal(t, "a", (<-feed2).Msg)
	})
	t.Run("unsubscribe", func(t *testing.T) {
		logger := newTestLogger(t, LevelDebug)

		feed, cancel := logger.Subscribe()
		cancel()

		_, ok := <-feed
		require.False(t, ok)
	})
	t.Run("notStarted", func(t *testing.T) {
		logger := NewLogger(&sync.WaitGroup{}, LevelDebug)
		for i := 0; i < feedBufferSize*2; i++ {
			logger.Info().Msg("must not block")
		}
	})
	t.Run("mock", func(t *testing.T) {
		logger := NewMockLogger()
		logger.Error().Src("x").Msg("must not block")
	})
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input    string
		expected Level
	}{
		{"error", LevelError},
		{"warning", LevelWarning},
		{"WARN", LevelWarning},
		{"info", LevelInfo},
		{"debug", LevelDebug},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, level)
		})
	}
	t.Run("invalid", func(t *testing.T) {
		_, err := ParseLevel("verbose")
		require.ErrorIs(t, err, ErrInvalidLevel)
	})
}

func TestFormatEntry(t *testing.T) {
	cases := map[string]struct {
		entry    Entry
		expected string
	}{
		"error": {
			Entry{Level: LevelError, Src: "recorder", Msg: "a"},
			"[ERROR] Recorder: a",
		},
		"noSource": {
			Entry{Level: LevelDebug, Msg: "b"},
			"[DEBUG] b",
		},
		"warning": {
			Entry{Level: LevelWarning, Src: "app", Msg: "c"},
			"[WARNING] App: c",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, formatEntry(tc.entry))
		})
	}
}

func TestLoggerStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	logger := NewLogger(wg, LevelDebug)
	logger.Start(ctx)

	feed, unsub := logger.Subscribe()
	cancel()
	wg.Wait()

	// Neither call may block once the logger has stopped.
	unsub()
	feed2, unsub2 := logger.Subscribe()
	_, ok := <-feed2
	require.False(t, ok)
	unsub2()
	_ = feed
}
