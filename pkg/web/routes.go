// SPDX-License-Identifier: GPL-2.0-or-later

// Package web serves the log feed, the log database and
// the recording catalog of a running recorder over HTTP.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"movierec/pkg/catalog"
	"movierec/pkg/log"

	"github.com/gorilla/websocket"
)

const jsonContentType = "application/json"

func parseCSVParam(query map[string][]string, key string) []string {
	values := query[key]
	if len(values) == 0 || values[0] == "" {
		return nil
	}
	return strings.Split(values[0], ",")
}

func parseLevels(query map[string][]string) ([]log.Level, error) {
	var levels []log.Level
	for _, levelStr := range parseCSVParam(query, "levels") {
		level, err := log.ParseLevel(levelStr)
		if err != nil {
			levelInt, err2 := strconv.Atoi(levelStr)
			if err2 != nil {
				return nil, err
			}
			level = log.Level(levelInt)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// LogFeed opens a websocket with live logs. The feed
// can be filtered with the levels and sources parameters.
func LogFeed(ctx context.Context, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		levels, err := parseLevels(query)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid levels list: %v", err), http.StatusBadRequest)
			return
		}
		sources := parseCSVParam(query, "sources")

		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		feed, cancel := logger.Subscribe()
		defer cancel()

		// Detect closed connections.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.NextReader(); err != nil {
					return
				}
			}
		}()

		for {
			var entry log.Entry
			var ok bool
			select {
			case entry, ok = <-feed:
				if !ok {
					return
				}
			case <-closed:
				return
			case <-ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
				c.WriteMessage(websocket.CloseMessage, msg) //nolint:errcheck
				return
			}

			if !log.LevelInLevels(entry.Level, levels) {
				continue
			}
			if !log.StringInStrings(entry.Src, sources) {
				continue
			}
			if err := c.WriteJSON(entry); err != nil {
				return
			}
		}
	})
}

// LogQuery handles log database queries.
func LogQuery(logDB *log.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		var limit int
		if s := query.Get("limit"); s != "" {
			var err error
			if limit, err = strconv.Atoi(s); err != nil {
				http.Error(w, fmt.Sprintf("could not convert limit to int: %v", err), http.StatusBadRequest)
				return
			}
		}

		var time uint64
		if s := query.Get("time"); s != "" {
			var err error
			if time, err = strconv.ParseUint(s, 10, 64); err != nil {
				http.Error(w, fmt.Sprintf("could not convert time to int: %v", err), http.StatusBadRequest)
				return
			}
		}

		levels, err := parseLevels(query)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid levels list: %v", err), http.StatusBadRequest)
			return
		}

		logs, err := logDB.Query(log.Query{
			Levels:  levels,
			Sources: parseCSVParam(query, "sources"),
			Time:    log.UnixMicro(time),
			Limit:   limit,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, logs)
	})
}

// Recordings lists the catalog, most recent first.
func Recordings(c *catalog.Catalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		recs, err := c.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []catalog.Recording{}
		}
		writeJSON(w, recs)
	})
}

// Status reports the status of the current recording.
func Status(status func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]string{"status": status()})
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", jsonContentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
