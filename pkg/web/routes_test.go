// SPDX-License-Identifier: GPL-2.0-or-later

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"movierec/pkg/catalog"
	"movierec/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestParseCSVParam(t *testing.T) {
	cases := []struct {
		input  string
		output []string
	}{
		{"", nil},
		{"a,b,c", []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			query := url.Values{}
			query.Add("test", tc.input)
			actual := parseCSVParam(query, "test")
			require.Equal(t, tc.output, actual)
		})
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels(url.Values{"levels": {"error,24,debug"}})
	require.NoError(t, err)
	require.Equal(t, []log.Level{log.LevelError, log.LevelWarning, log.LevelDebug}, levels)

	_, err = parseLevels(url.Values{"levels": {"nope"}})
	require.ErrorIs(t, err, log.ErrInvalidLevel)
}

func newTestLogger(t *testing.T) (context.Context, *log.Logger, *sync.WaitGroup) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	logger := log.NewLogger(wg, log.LevelDebug)
	logger.Start(ctx)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return ctx, logger, wg
}

// logUntil logs msg repeatedly until stop is closed.
func logUntil(logger *log.Logger, stop chan struct{}, level log.Level, msg string) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(10 * time.Millisecond):
		}
		switch level {
		case log.LevelInfo:
			logger.Info().Src("recorder").Msg(msg)
		default:
			logger.Warn().Src("recorder").Msg(msg)
		}
	}
}

func TestLogFeed(t *testing.T) {
	ctx, logger, _ := newTestLogger(t)

	server := httptest.NewServer(LogFeed(ctx, logger))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?levels=warning&sources=recorder"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go logUntil(logger, stop, log.LevelInfo, "filtered")
	go logUntil(logger, stop, log.LevelWarning, "kept")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var entry log.Entry
	require.NoError(t, conn.ReadJSON(&entry))
	require.Equal(t, log.LevelWarning, entry.Level)
	require.Equal(t, "recorder", entry.Src)
	require.Equal(t, "kept", entry.Msg)
}

func TestLogFeedBadRequest(t *testing.T) {
	ctx, logger, _ := newTestLogger(t)

	rr := httptest.NewRecorder()
	LogFeed(ctx, logger).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?levels=x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	LogFeed(ctx, logger).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLogQuery(t *testing.T) {
	dir := t.TempDir()
	ctx, logger, wg := newTestLogger(t)

	logDB := log.NewDB(filepath.Join(dir, "logs.db"), wg)
	require.NoError(t, logDB.Init(ctx))
	go logDB.SaveLogs(ctx, logger)

	stop := make(chan struct{})
	defer close(stop)
	go logUntil(logger, stop, log.LevelWarning, "saved")

	handler := LogQuery(logDB)
	var entries []log.Entry
	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?limit=1&levels=warning", nil))
		if rr.Code != http.StatusOK {
			return false
		}
		entries = nil
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
		return len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "saved", entries[0].Msg)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?limit=x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordings(t *testing.T) {
	dir := t.TempDir()
	c, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	get := func() []catalog.Recording {
		rr := httptest.NewRecorder()
		Recordings(c).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, jsonContentType, rr.Header().Get("Content-Type"))
		var recs []catalog.Recording
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
		require.NotNil(t, recs)
		return recs
	}
	require.Len(t, get(), 0)

	path := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))
	_, err = c.Add(path, nil)
	require.NoError(t, err)

	recs := get()
	require.Len(t, recs, 1)
	require.Equal(t, path, recs[0].Path)
}

func TestServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	s := NewServer(ctx, Handlers{Status: func() string { return "Recording" }})
	addr, err := s.Start(ctx, wg, "127.0.0.1:0")
	require.NoError(t, err)

	res, err := http.Get("http://" + addr + "/api/status")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	res.Body.Close()
	require.Equal(t, map[string]string{"status": "Recording"}, body)

	res, err = http.Get("http://" + addr + "/api/recordings")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	cancel()
	wg.Wait()
}
