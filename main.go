// Package main provides an audio route switcher for voice sessions, running
// against a simulated mobile OS audio subsystem.
//
// Usage:
//
//	audioswitch [-config path/to/config.json]
//
// If -config is not specified, the switcher looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/oszuidwest/zwfm-audioswitch/internal/archive"
	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/config"
	"github.com/oszuidwest/zwfm-audioswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-audioswitch/internal/metrics"
	"github.com/oszuidwest/zwfm-audioswitch/internal/notify"
	"github.com/oszuidwest/zwfm-audioswitch/internal/platform"
	"github.com/oszuidwest/zwfm-audioswitch/internal/switcher"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	sim := platform.New(snap.Platform)
	slog.Info("simulated platform ready", "level", snap.Level, "devices", len(snap.Platform.Devices))

	logPath := snap.LogPath
	if !snap.HasLogPath() {
		logPath = eventlog.DefaultLogPath(snap.WebPort)
	}
	logger, err := eventlog.NewLogger(logPath)
	if err != nil {
		slog.Error("failed to open event log", "path", logPath, "error", err)
		os.Exit(1)
	}

	slog.Info("event log ready", "path", logger.Path())

	notifier := notify.NewRouteNotifier(cfg)
	if snap.HasWebhook() {
		slog.Info("webhook notifications enabled", "oauth2", snap.HasWebhookAuth())
	}

	var archiver *archive.Archiver
	if snap.HasArchive() {
		archiver, err = archive.New(&archive.S3Config{
			Endpoint:        snap.ArchiveEndpoint,
			Bucket:          snap.ArchiveBucket,
			AccessKeyID:     snap.ArchiveAccessKeyID,
			SecretAccessKey: snap.ArchiveSecretAccessKey,
			Prefix:          snap.ArchivePrefix,
		}, archiveResult(logger))
		if err != nil {
			slog.Error("failed to create session archive", "error", err)
			os.Exit(1)
		}
		archiver.Start()
	}

	reg := metrics.NewRegistry()

	sw := switcher.New(sim, sim, snap.Level, switcher.Options{
		Preferred: snap.Preferred,
		Audio:     snap.AudioOptions,
		Hooks:     sessionHooks(logger, notifier, archiver),
	})
	cancelWatch := sim.Watch(sw.HandleDeviceEvent)
	sw.Start(devicesListener(logger))

	srv := NewServer(cfg, sw, sim, notifier, reg, logPath)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	cancelWatch()
	sw.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if archiver != nil {
		archiver.Stop()
	}
	notifier.Wait()

	if err := logger.Close(); err != nil {
		slog.Error("failed to close event log", "error", err)
	}

	slog.Info("shutdown complete")
}

// sessionHooks fans switcher notifications out to the event log, metrics,
// webhook and archive. A nil archiver disables archiving.
func sessionHooks(logger *eventlog.Logger, notifier *notify.RouteNotifier, archiver *archive.Archiver) switcher.Hooks {
	return switcher.Hooks{
		OnActivated: func(r types.SessionReport) {
			logEventError(logger.LogSessionActivated(&r))
			metrics.RecordSessionStart(r.Focus)
			notifier.SessionActivated(r)
		},
		OnDeactivated: func(r types.SessionReport) {
			logEventError(logger.LogSessionDeactivated(&r))
			metrics.RecordSessionEnd(r.Duration().Seconds())
			notifier.SessionDeactivated(r)
			if archiver == nil {
				return
			}
			if err := archiver.Enqueue(r); err != nil {
				slog.Warn("session report not archived", "session_id", r.ID, "error", err)
				metrics.RecordArchiveUpload(err)
				logEventError(logger.LogArchive(r.ID, "", err))
			}
		},
		OnRouteChange: func(sessionID string, c types.RouteChange) {
			logEventError(logger.LogRoute(sessionID, &c))
			metrics.RecordRouteChange(c.Device.Kind, string(c.Reason), c.Applied)
			notifier.RouteChanged(sessionID, c)
		},
		OnFocusChange: func(change audio.FocusChange) {
			logEventError(logger.LogFocusChange(change))
			metrics.RecordFocusChange(change)
		},
	}
}

// devicesListener records availability changes in the event log and metrics.
func devicesListener(logger *eventlog.Logger) switcher.Listener {
	return func(available []audio.Device, selected *audio.Device) {
		logEventError(logger.LogDevices(available, selected))
		metrics.SetAvailableDevices(available)
	}
}

// archiveResult records the outcome of each archive upload.
func archiveResult(logger *eventlog.Logger) archive.ResultFunc {
	return func(sessionID, key string, err error) {
		metrics.RecordArchiveUpload(err)
		logEventError(logger.LogArchive(sessionID, key, err))
	}
}

func logEventError(err error) {
	if err != nil {
		slog.Error("failed to write event log", "error", err)
	}
}
