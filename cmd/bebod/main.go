// Command bebod runs one node of the bebo gossip overlay: it listens
// for peer-link connections, maintains neighbors and the MPR set,
// floods relay messages across the mesh, and serves the local REST API.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SRI-CSL/prism-sub001/pkg/config"
	"github.com/SRI-CSL/prism-sub001/pkg/httpapi"
	"github.com/SRI-CSL/prism-sub001/pkg/overlay"
	"github.com/SRI-CSL/prism-sub001/pkg/store"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "0.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "bebod"
	app.Usage = "bebo gossip overlay node"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "address, a", Value: "0.0.0.0", Usage: "the address to listen on"},
		cli.IntFlag{Name: "port, p", Value: config.DefaultBeboPort, Usage: "the peer-link port to listen on"},
		cli.IntFlag{Name: "http-port, P", Value: config.DefaultHTTPPort, Usage: "the HTTP API port to serve on"},
		cli.IntFlag{Name: "choose, c", Value: 2, Usage: "number of neighbors to choose randomly from the seed list"},
		cli.StringFlag{Name: "seeds, s", Usage: "JSON URL or filename with neighbor seed information"},
		cli.BoolFlag{Name: "debug, d", Usage: "enable debug logging"},
		cli.BoolFlag{Name: "no-mpr, M", Usage: "disable MPR optimization"},
		cli.BoolFlag{Name: "hex-mode, H", Usage: "explain messages as a hex dump instead of attempting CBOR decode"},
	}
	app.ArgsUsage = "[neighbor ...]"
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	address := envOr("ADDRESS", ctx.String("address"))
	port, err := config.GetIntEnv("PORT", ctx.Int("port"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	httpPort, err := config.GetIntEnv("HTTP_PORT", ctx.Int("http-port"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	debug := config.GetBooleanEnv("DEBUG", ctx.Bool("debug"))
	noMPR := config.GetBooleanEnv("NO_MPR", ctx.Bool("no-mpr"))
	hexMode := config.GetBooleanEnv("HEX_MODE", ctx.Bool("hex-mode"))
	v6OK := config.GetBooleanEnv("V6_OK", true)

	host, err := config.Hostify(address, true, true)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	me := config.MyAddresses()
	me[host] = struct{}{}

	log, err := newLogger(debug)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting bebo", zap.String("host", host), zap.String("version", version))

	initialNeighbors, peerNames, err := resolveInitialNeighbors(ctx, host)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	st := store.New()
	ov := overlay.NewServer(overlay.Config{
		Host:    host,
		Port:    port,
		NoMPR:   noMPR,
		HexMode: hexMode,
		Me:      me,
		Version: version,
	}, st, log)

	seedsArg := ctx.String("seeds")
	if v := os.Getenv("SEEDS"); v != "" {
		seedsArg = v
		if !strings.Contains(v, "://") && !strings.HasPrefix(v, "list:") {
			seedsArg = "list:" + v
		}
	}
	if len(initialNeighbors) == 0 && len(peerNames) == 0 && seedsArg != "" {
		seeds, err := overlay.LoadSeeds(seedsArg, host)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		ov.Seeds = seeds
		initialNeighbors = seeds.Choose(ctx.Int("choose"))
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer listener.Close()

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(host, strconv.Itoa(httpPort)),
		Handler: httpapi.New(ov, st, log.Named("httpapi"), version),
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return ov.Run(gctx) })
	g.Go(func() error { return ov.AcceptLoop(gctx, listener) })
	g.Go(func() error { return ov.RunResolver(gctx, peerNames, true, v6OK) })
	g.Go(func() error { ov.Seed(gctx, initialNeighbors); return nil })
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Close()
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}

// resolveInitialNeighbors splits the CLI's positional neighbor
// arguments (or the NEIGHBORS environment variable, if none were
// given) into literal addresses, queued immediately, and hostnames,
// left for the background resolver to resolve repeatedly.
func resolveInitialNeighbors(ctx *cli.Context, host string) (addresses, names []string, err error) {
	args := []string(ctx.Args())
	if len(args) == 0 {
		if v := os.Getenv("NEIGHBORS"); v != "" {
			args = config.ParseNeighborList(v)
		}
	}
	for _, peer := range args {
		if net.ParseIP(peer) != nil || config.IsDigits(peer) {
			addr, err := config.Hostify(peer, true, true)
			if err != nil {
				return nil, nil, err
			}
			addresses = append(addresses, addr)
		} else {
			names = append(names, peer)
		}
	}
	return addresses, names, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}
