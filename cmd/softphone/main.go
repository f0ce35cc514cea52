package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/LiveCall/internal/adapters/console"
	"github.com/dkeye/LiveCall/internal/adapters/identity"
	"github.com/dkeye/LiveCall/internal/adapters/mic/device"
	"github.com/dkeye/LiveCall/internal/adapters/rtc"
	"github.com/dkeye/LiveCall/internal/adapters/webm"
	"github.com/dkeye/LiveCall/internal/adapters/wsclient"
	"github.com/dkeye/LiveCall/internal/app/call"
	"github.com/dkeye/LiveCall/internal/app/presence"
	"github.com/dkeye/LiveCall/internal/config"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/dkeye/LiveCall/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("softphone", pflag.ExitOnError)
	flags.String("phone.name", "", "display name")
	flags.String("phone.user_id", "", "user id (skips the identity endpoint together with --phone.name)")
	flags.String("phone.relay_url", "ws://localhost:8080/api/ws/signal", "relay websocket URL")
	flags.String("phone.identity_url", "http://localhost:8080/api/identity", "identity endpoint")
	flags.String("phone.recordings_dir", "./recordings", "where recordings are saved")
	flags.Bool("phone.save_remote_audio", false, "save the partner's audio as Ogg next to recordings")
	flags.Duration("phone.ring_timeout", 45*time.Second, "give up on unanswered calls after this long, 0 waits forever")
	flags.String("log.level", "info", "log level")
	flags.String("log.file", "", "also write logs to this rotated file")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logs, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Warn().Err(err).Str("level", cfg.Log.Level).Msg("bad log level, using info")
	}
	defer logs.Close()
	log.Debug().Str("module", "main").Msg("effective config:\n" + config.Dump(cfg))

	idCtx, idCancel := context.WithTimeout(ctx, 10*time.Second)
	self, err := identity.New(cfg.Phone.IdentityURL).Resolve(idCtx, domain.UserID(cfg.Phone.UserID), cfg.Phone.Name)
	idCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve identity")
	}

	tr := wsclient.New(cfg.Phone.RelayURL, cfg.Phone.ReconnectDelay)
	roster := presence.New(self, tr)

	sinkDir := ""
	if cfg.Phone.SaveRemoteAudio {
		sinkDir = cfg.Phone.RecordingsDir
	}

	var con *console.Console
	machine := call.New(call.Config{
		RingTimeout:  cfg.Phone.RingTimeout,
		TickInterval: cfg.Phone.TickInterval,
	}, call.Deps{
		Transport: tr,
		Media:     rtc.NewEngine(cfg.Phone.ICEServers, device.Capture),
		Presence:  roster,
		Sink:      rtc.NewSink(sinkDir),
		Muxer:     webm.New(),
		Notify:    func(n call.Notice) { con.Notify(n) },
	})
	con = console.New(machine, roster, os.Stdin, os.Stdout, cfg.Phone.RecordingsDir)

	// The transport outlives the machine so its farewell frame is flushed.
	trCtx, trCancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer trCancel()
		return machine.Run(gctx)
	})
	g.Go(func() error {
		return tr.Run(trCtx, machine)
	})
	g.Go(func() error {
		return con.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, console.ErrQuit) {
		log.Error().Err(err).Msg("softphone stopped")
		return
	}
	log.Info().Msg("softphone exited")
}
