// Copyright 2026 The Starling Authors
// This file is part of Starling.
//
// Starling is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Starling is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Starling. If not, see <http://www.gnu.org/licenses/>.

// Command starling-server is the executable driver: argument parsing,
// log sink setup, listener setup, and the bootstrap snapshot load.
// Nothing else in this repository parses flags, prints to stdout, or
// calls os.Exit.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/starlingdb/starling/blocking"
	"github.com/starlingdb/starling/config"
	"github.com/starlingdb/starling/rdb"
	"github.com/starlingdb/starling/replica"
	"github.com/starlingdb/starling/server"
	"github.com/starlingdb/starling/store"
)

func main() {
	app := &cli.App{
		Name:  "starling-server",
		Usage: "an in-memory key/value server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "snapshot directory"},
			&cli.StringFlag{Name: "dbfilename", Value: "dump.rdb", Usage: "snapshot file name"},
			&cli.IntFlag{Name: "port", Value: 6379, Usage: "listening port"},
			&cli.StringFlag{Name: "replicaof", Usage: `primary address, "<host> <port>"`},
			&cli.StringFlag{Name: "config", Usage: "optional TOML config overlay path"},
			&cli.IntFlag{Name: "metrics-port", Value: 9121, Usage: "Prometheus /metrics port, 0 disables it"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	dir := cctx.String("dir")
	dbfilename := cctx.String("dbfilename")
	port := cctx.Int("port")
	replicaof := cctx.String("replicaof")
	metricsPort := cctx.Int("metrics-port")

	if cfgPath := cctx.String("config"); cfgPath != "" {
		overlay, err := config.FromFile(cfgPath)
		if err != nil {
			log.Error("failed to read config overlay", zap.Error(err))
			os.Exit(1)
		}
		if !cctx.IsSet("dir") && overlay.Dir != "" {
			dir = overlay.Dir
		}
		if !cctx.IsSet("dbfilename") && overlay.DBFilename != "" {
			dbfilename = overlay.DBFilename
		}
		if !cctx.IsSet("port") && overlay.Port != 0 {
			port = overlay.Port
		}
		if !cctx.IsSet("replicaof") && overlay.ReplicaOfHost != "" {
			replicaof = fmt.Sprintf("%s %d", overlay.ReplicaOfHost, overlay.ReplicaOfPort)
		}
		if !cctx.IsSet("metrics-port") && overlay.MetricsPort != 0 {
			metricsPort = overlay.MetricsPort
		}
	}

	isReplica := replicaof != ""
	identity, err := server.NewIdentity(isReplica)
	if err != nil {
		log.Error("failed to mint server identity", zap.Error(err))
		os.Exit(1)
	}

	notifier := blocking.New()
	st := store.New(notifier)
	replicas := replica.New()

	snapshotPath := filepath.Join(dir, dbfilename)
	if err := rdb.Read(afero.NewOsFs(), snapshotPath, func(key string, v rdb.Value, expiresAtMs int64) error {
		if expiresAtMs == 0 {
			st.Set(key, []byte(v))
		} else {
			st.SetAbsolute(key, []byte(v), expiresAtMs)
		}
		return nil
	}); err != nil {
		log.Error("failed to load snapshot", zap.String("path", snapshotPath), zap.Error(err))
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Error("failed to bind listener", zap.Int("port", port), zap.Error(err))
		os.Exit(1)
	}
	log.Info("listening", zap.Int("port", port), zap.String("role", identity.Role))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	var conns sync.WaitGroup

	cfg := server.Config{Dir: dir, DBFilename: dbfilename}

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		return acceptLoop(gctx, ln, st, notifier, replicas, identity, cfg, log, &conns)
	})

	if metricsPort > 0 {
		metricsSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", metricsPort),
			Handler: metricsHandler(st),
		}
		g.Go(func() error {
			<-gctx.Done()
			return metricsSrv.Close()
		})
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	if replicaof != "" {
		host, rport, err := parseReplicaOf(replicaof)
		if err != nil {
			log.Error("invalid --replicaof", zap.Error(err))
			os.Exit(1)
		}
		log.Info("configured as replica", zap.String("primary_host", host), zap.Int("primary_port", rport))
	}

	var shutdownErrs error
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		shutdownErrs = multierr.Append(shutdownErrs, err)
	}
	conns.Wait()
	if shutdownErrs != nil {
		log.Error("shutdown completed with errors", zap.Error(shutdownErrs))
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, st *store.Store, notifier *blocking.Notifier, replicas *replica.Registry, identity *server.Identity, cfg server.Config, log *zap.Logger, conns *sync.WaitGroup) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			// A connection parked in a socket read has no ctx to observe;
			// closing it is what unblocks the read during shutdown.
			stop := context.AfterFunc(ctx, func() { nc.Close() })
			defer stop()
			server.Serve(ctx, nc, st, notifier, replicas, identity, cfg, log)
		}()
	}
}

func parseReplicaOf(s string) (string, int, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected \"<host> <port>\", got %q", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", parts[1], err)
	}
	return parts[0], port, nil
}

var storeMetricsOnce sync.Once

// metricsHandler registers the store's cumulative operation counters
// and returns the Prometheus exposition handler. The server and
// replica packages register their own collectors at package init;
// the store deliberately does not import Prometheus, so its counters
// are bridged here.
func metricsHandler(st *store.Store) http.Handler {
	storeMetricsOnce.Do(func() {
		counters := []struct {
			name string
			help string
			read func(store.Stats) uint64
		}{
			{"starling_store_gets_total", "Total GET operations served.", func(s store.Stats) uint64 { return s.Gets }},
			{"starling_store_sets_total", "Total SET operations served.", func(s store.Stats) uint64 { return s.Sets }},
			{"starling_store_incrs_total", "Total INCR operations served.", func(s store.Stats) uint64 { return s.Incrs }},
			{"starling_store_list_pushes_total", "Total LPUSH/RPUSH operations served.", func(s store.Stats) uint64 { return s.ListPushes }},
			{"starling_store_list_pops_total", "Total LPOP operations served.", func(s store.Stats) uint64 { return s.ListPops }},
			{"starling_store_expired_keys_total", "Total keys removed by lazy expiry.", func(s store.Stats) uint64 { return s.ExpiredKeys }},
		}
		for _, c := range counters {
			read := c.read
			prometheus.MustRegister(prometheus.NewCounterFunc(
				prometheus.CounterOpts{Name: c.name, Help: c.help},
				func() float64 { return float64(read(st.Stats())) },
			))
		}
	})
	return promhttp.Handler()
}
