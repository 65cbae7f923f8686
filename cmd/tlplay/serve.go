package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tlplay/internal/api"
	"tlplay/internal/otime"
	"tlplay/internal/player"
	"tlplay/internal/server"
	"tlplay/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve <timeline>",
	Short: "Play a timeline and serve its state over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), args[0])
	},
}

var (
	servePort int
	servePlay bool
)

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the configured port")
	serveCmd.Flags().BoolVar(&servePlay, "play", false, "start playing forward immediately")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, path string) error {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	logger.Info().
		Str("version", api.Version).
		Str("timeline", path).
		Msg("starting tlplay server")

	sys, err := newSystem()
	if err != nil {
		return err
	}
	defer sys.Close()

	tl, err := sys.LoadTimeline(ctx, path, nil)
	if err != nil {
		return err
	}

	opts, err := cfg.PlayerOptions()
	if err != nil {
		return err
	}
	p, err := sys.NewPlayer(tl, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	store := sys.Storage()
	if cfg.Player.Resume && store != nil {
		restore(p, store)
	}
	if servePlay {
		p.SetPlayback(player.Forward)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	driver := player.NewDriver(p, logger)
	driverDone := make(chan error, 1)
	go func() { driverDone <- driver.Run(ctx, cfg.Player.TickInterval) }()
	go nullSink(ctx, p)

	srv := server.New(cfg, logger, driver, store)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info().Msg("received shutdown signal")
		case <-ctx.Done():
		}
		cancel()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	cancel()
	<-driverDone

	if store != nil {
		save(p, store)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// nullSink pulls audio at the output rate and discards it, standing in for
// a device so the player's audio clock runs.
func nullSink(ctx context.Context, p *player.Player) {
	audio := p.AudioOptions()
	buf := make([]float32, audio.BufferFrames*audio.Channels)
	period := time.Duration(float64(time.Second) * float64(audio.BufferFrames) / float64(audio.SampleRate))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.FillBuffer(buf)
		}
	}
}

func restore(p *player.Player, store *storage.SQLiteStorage) {
	state, err := store.GetPlaybackState(p.Timeline().Path)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read playback state")
		return
	}
	if state == nil {
		return
	}
	if loop, err := player.ParseLoop(state.Loop); err == nil {
		p.SetLoop(loop)
	}
	p.SetInOutRange(otime.RangeFromFrames(state.InFrame, state.OutFrame-state.InFrame, p.Rate()))
	p.Seek(otime.FromFrame(state.Frame, p.Rate()))
	logger.Info().
		Int64("frame", state.Frame).
		Str("loop", state.Loop).
		Msg("playback state restored")
}

func save(p *player.Player, store *storage.SQLiteStorage) {
	rate := p.Rate()
	inOut := p.InOutRange().Get()
	state := &storage.PlaybackState{
		Timeline: p.Timeline().Path,
		Frame:    p.CurrentTime().Get().Frame(rate),
		InFrame:  inOut.Start.Frame(rate),
		OutFrame: inOut.End().Frame(rate),
		Loop:     p.Loop().Get().String(),
	}
	if err := store.SavePlaybackState(state); err != nil {
		logger.Warn().Err(err).Msg("failed to save playback state")
	}
}
