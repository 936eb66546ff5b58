// Package main is the entry point for the Cadenza menu bar backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cadenza/internal/artwork"
	"cadenza/internal/audio"
	"cadenza/internal/auth"
	"cadenza/internal/config"
	"cadenza/internal/domain/device"
	"cadenza/internal/domain/history"
	"cadenza/internal/domain/player"
	"cadenza/internal/gateway"
	"cadenza/internal/infra/blobstore"
	"cadenza/internal/infra/mpd"
	"cadenza/internal/infra/spotify"
	"cadenza/internal/poller"
	"cadenza/internal/ratelimit"
	"cadenza/internal/transport/socketio"
	"cadenza/internal/version"
)

func main() {
	// Command line flags
	port := flag.String("port", "8890", "HTTP server port")
	dataDir := flag.String("data-dir", "", "Data directory (default: user config dir)")
	pollInterval := flag.Duration("poll-interval", poller.DefaultInterval, "Playback poll interval")
	mpdHost := flag.String("mpd-host", "", "Local MPD host for the sample rate switcher (optional)")
	mpdPort := flag.Int("mpd-port", 6600, "Local MPD port")
	rateCmd := flag.String("rate-cmd", "", "Command run to switch the device sample rate (optional)")
	defaultRate := flag.Int("default-rate", 44100, "Default device sample rate in Hz")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Spotify Menu Bar Companion Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	if *dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			log.Fatal().Err(err).Msg("No data directory available")
		}
		*dataDir = filepath.Join(base, "cadenza")
	}

	log.Info().
		Str("port", *port).
		Str("dataDir", *dataDir).
		Dur("pollInterval", *pollInterval).
		Bool("mpd", *mpdHost != "").
		Msg("Configuration")

	// Persistent state lives in three independent encrypted blobs, each
	// under its own key. Corruption in one never takes down the others.
	tokenBlob := blobstore.New(
		filepath.Join(*dataDir, "token.blob"),
		blobstore.NewFileSealer(filepath.Join(*dataDir, "token.key")),
	)
	historyBlob := blobstore.New(
		filepath.Join(*dataDir, "history.blob"),
		blobstore.NewFileSealer(filepath.Join(*dataDir, "history.key")),
	)
	deviceBlob := blobstore.New(
		filepath.Join(*dataDir, "device.blob"),
		blobstore.NewFileSealer(filepath.Join(*dataDir, "device.key")),
	)

	// Core state
	states := player.NewStore()
	hist := history.NewCache(0)
	hist.Restore(historyBlob)
	devices := device.NewStore(deviceBlob)
	devices.Restore()

	// Auth service; the authorized hook kicks the poller so the UI leaves
	// "Please Authorize" without waiting for the next tick.
	var p *poller.Poller
	authService := auth.NewService(auth.NewStore(tokenBlob), auth.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
	}, auth.WithAuthorizedHook(func() {
		if p != nil {
			p.Kick(0)
		}
	}))

	client := spotify.NewClient(authService.Token)
	governor := ratelimit.NewGovernor()
	defer governor.Stop()
	art := artwork.NewFetcher(filepath.Join(*dataDir, "artwork"))

	pollerOpts := []poller.Option{
		poller.WithInterval(*pollInterval),
		poller.WithArtFetcher(art),
	}

	// Sample rate switcher, wired only when a device command is configured.
	if *rateCmd != "" {
		parts := strings.Fields(*rateCmd)
		switcher := audio.NewSwitcher(audio.NewExecSetter(parts[0], parts[1:]...), *defaultRate)
		if err := switcher.LoadOverrides(filepath.Join(*dataDir, "rate-overrides.json")); err != nil {
			log.Warn().Err(err).Msg("Failed to load sample rate overrides")
		}
		pollerOpts = append(pollerOpts, poller.WithRateSwitcher(switcher))

		if *mpdHost != "" {
			mpdClient := mpd.NewClient(*mpdHost, *mpdPort)
			if err := mpdClient.Connect(); err != nil {
				log.Warn().Err(err).Msg("Local MPD unreachable, continuing without it")
			} else {
				defer mpdClient.Close()
				pollerOpts = append(pollerOpts, poller.WithLocalReader(mpdClient))
			}
		}
	}

	p = poller.New(client, states, hist, governor, authService, pollerOpts...)
	gw := gateway.New(client, states, hist, devices, governor, p)

	socketServer, err := socketio.NewServer(gw, states, hist, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// Every state change is pushed; the governor drives pausing and the
	// transient rate-limit flag.
	states.SetEmit(func(player.State) {
		socketServer.BroadcastState()
	})
	p.SetHistoryChanged(socketServer.BroadcastHistory)
	governor.SetHooks(ratelimit.Hooks{
		Pause:  p.Pause,
		Resume: p.Resume,
		Signal: func(limited bool) {
			socketServer.SetRateLimited(limited)
			states.Rerender()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"authorized": authService.Authorized(),
		})
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		if err := hist.Persist(historyBlob); err != nil {
			log.Error().Err(err).Msg("Failed to persist track history")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+*port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
