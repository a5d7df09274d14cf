// SPDX-License-Identifier: GPL-2.0-or-later

// Package movierec replays captured recordings into MP4 files.
package movierec

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"movierec/pkg/catalog"
	"movierec/pkg/config"
	"movierec/pkg/log"
	"movierec/pkg/recorder"
	"movierec/pkg/video/mp4writer"
	"movierec/pkg/web"
)

// Run .
func Run() error {
	envFlag := flag.String("env", "", "path to env.yaml")
	inFlag := flag.String("in", "", "recording to replay, without the .meta/.mdat extension")
	outFlag := flag.String("out", "", "output file name, relative to outputDir")
	flag.Parse()

	if *envFlag == "" || *inFlag == "" {
		flag.Usage()
		return nil
	}

	envPath, err := filepath.Abs(*envFlag)
	if err != nil {
		return fmt.Errorf("could not get absolute path of env.yaml: %w", err)
	}

	env, err := config.ReadConfigEnv(envPath)
	if err != nil {
		return fmt.Errorf("could not get environment config: %w", err)
	}

	wg := &sync.WaitGroup{}
	app := newApp(env, wg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Canceling recordCtx finishes the recording, ctx stops the app.
	recordCtx, stopRecording := context.WithCancel(ctx)
	defer stopRecording()

	fatal := make(chan error, 1)
	go func() { fatal <- app.run(ctx, recordCtx, *inFlag, *outFlag) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err = <-fatal:
	case signal := <-stop:
		app.Logger.Info().Msg("") // New line.
		app.Logger.Info().Src("app").Msgf("received %v, finishing recording", signal)
		stopRecording()
		err = <-fatal
	}
	if err != nil {
		app.Logger.Error().Src("app").Msgf("%v", err)
	}

	// Let the stdout and database subscribers drain.
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	if app.catalog != nil {
		if err := app.catalog.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "could not close catalog: %v\n", err)
		}
	}
	return err
}

// App is the main application struct.
type App struct {
	WG     *sync.WaitGroup
	Logger *log.Logger
	Env    config.ConfigEnv

	logDB   *log.DB
	catalog *catalog.Catalog

	mu  sync.Mutex
	rec *recorder.Recorder
}

func newApp(env *config.ConfigEnv, wg *sync.WaitGroup) *App {
	return &App{
		WG:     wg,
		Logger: log.NewLogger(wg, env.Level),
		Env:    *env,
		logDB:  log.NewDB(env.LogDB, wg),
	}
}

// status returns the status of the current recording.
func (app *App) status() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.rec == nil {
		return "none"
	}
	return app.rec.Status().String()
}

func (app *App) run(ctx, recordCtx context.Context, in, out string) error {
	app.Logger.Start(ctx)
	go app.Logger.LogToStdout(ctx)

	if err := app.logDB.Init(ctx); err != nil {
		// Continue even if log database is corrupt.
		time.Sleep(10 * time.Millisecond)
		app.Logger.Error().Src("app").Msgf("could not initialize log database: %v", err)
	} else {
		go app.logDB.SaveLogs(ctx, app.Logger)
		time.Sleep(10 * time.Millisecond)
	}

	app.Logger.Info().Src("app").Msg("Starting..")

	if err := app.Env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("could not prepare environment: %w", err)
	}

	c, err := catalog.Open(app.Env.CatalogDB)
	if err != nil {
		return fmt.Errorf("could not open catalog: %w", err)
	}
	app.catalog = c

	if app.Env.Listen != "" {
		server := web.NewServer(ctx, web.Handlers{
			Logger:  app.Logger,
			LogDB:   app.logDB,
			Catalog: app.catalog,
			Status:  app.status,
		})
		if _, err := server.Start(ctx, app.WG, app.Env.Listen); err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
	}

	_, err = app.record(recordCtx, in, OutputPath(app.Env.OutputDir, in, out))
	return err
}

// OutputPath returns the destination of the replayed recording.
// The name defaults to the base name of the input.
func OutputPath(outputDir, in, out string) string {
	if out == "" {
		out = filepath.Base(in) + ".mp4"
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(outputDir, out)
}

// ErrNoVideoTrack the finished file has no video track.
var ErrNoVideoTrack = errors.New("no video track")

// record replays the input to path, reads back the result and adds it to the catalog.
func (app *App) record(ctx context.Context, in, path string) (*catalog.Recording, error) {
	src, err := OpenSource(in)
	if err != nil {
		return nil, fmt.Errorf("could not open source: %w", err)
	}
	defer src.Close()

	open := mp4writer.Opener(mp4writer.Config{
		MinFreeDisk:       app.Env.MinFreeDiskBytes(),
		DiskCheckInterval: app.Env.DiskCheckDuration(),
		Logger:            app.Logger,
	})
	rec := recorder.NewRecorder(path, open, app.Logger)

	app.mu.Lock()
	app.rec = rec
	app.mu.Unlock()

	app.Logger.Info().Src("app").Msgf("recording %v to %v", in, path)
	if err := Replay(ctx, rec, src, app.Env.RealTime, app.Logger); err != nil {
		return nil, fmt.Errorf("recording failed: %w", err)
	}

	tracks, err := mp4writer.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("could not probe recording: %w", err)
	}
	summary := make([]string, 0, len(tracks))
	hasVideo := false
	for _, t := range tracks {
		hasVideo = hasVideo || t.Handler == "vide"
		summary = append(summary, fmt.Sprintf("%v %v %v samples %v",
			t.Handler, t.Codec, t.SampleCount, t.Duration))
	}
	if !hasVideo {
		return nil, ErrNoVideoTrack
	}
	app.Logger.Info().Src("app").Msgf("finished %v: %v", path, strings.Join(summary, ", "))

	recording, err := app.catalog.Add(path, CatalogTracks(tracks))
	if err != nil {
		return nil, fmt.Errorf("could not add recording to catalog: %w", err)
	}
	return recording, nil
}

// CatalogTracks converts track descriptions to catalog tracks.
func CatalogTracks(tracks []mp4writer.TrackInfo) []catalog.Track {
	out := make([]catalog.Track, len(tracks))
	for i, t := range tracks {
		out[i] = catalog.Track{
			Handler:      t.Handler,
			Codec:        t.Codec,
			SampleCount:  t.SampleCount,
			Duration:     t.Duration,
			Width:        t.Width,
			Height:       t.Height,
			ChannelCount: t.ChannelCount,
			SampleRate:   t.SampleRate,
		}
	}
	return out
}
