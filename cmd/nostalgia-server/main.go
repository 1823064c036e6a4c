// Command nostalgia-server runs the RakNet/MCPE listener.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-envparse"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nostalgia-server/nostalgia/internal/buildinfo"
	"github.com/nostalgia-server/nostalgia/internal/config"
	"github.com/nostalgia-server/nostalgia/internal/game"
	"github.com/nostalgia-server/nostalgia/internal/raklistener"
	"github.com/nostalgia-server/nostalgia/internal/world"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else if x, err := readEnv(pflag.Arg(0)); err == nil {
		e = x
	} else {
		fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
		os.Exit(1)
	}

	var c config.Config
	if err := c.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(c.LogLevel)
	log.Info().Str("version", buildinfo.Version).Msg("starting nostalgia-server")

	listener, err := raklistener.New(c.Addr, c.MOTD, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bind listener")
	}
	log.Info().Stringer("addr", listener.LocalAddr()).Msg("listening")

	if c.MetricsAddr != "" {
		go serveMetrics(c.MetricsAddr, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := game.NewHub(log)
	snapshot := world.NewDemoWorld()
	gameCfg := game.Config{DemoSideEffects: c.DemoSideEffects}

	go listener.Serve(ctx)
	go acceptLoop(ctx, listener, hub, snapshot, gameCfg, log)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	listener.Close()
	hub.Close()
	log.Info().Msg("stopped")
}

func acceptLoop(ctx context.Context, l *raklistener.Listener, hub *game.Hub, snapshot world.Snapshot, gameCfg game.Config, log zerolog.Logger) {
	for {
		peer, err := l.Accept(ctx)
		if err != nil {
			return
		}
		handler := game.NewHandler(peer, hub, snapshot, gameCfg, log)
		go handler.Run(ctx)
	}
}

// serveMetrics exposes the process's VictoriaMetrics default registry —
// every counter internal/raknet and internal/raklistener register there —
// on addr at /metrics. It blocks while serving; on bind or serve failure it
// logs and returns rather than killing the game server.
func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func newLogger(level zerolog.Level) zerolog.Logger {
	var w io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	r := make([]string, 0, len(m))
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
