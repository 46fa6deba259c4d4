package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/daemon"
	filbaselog "github.com/filecoin-project/filbase/lib/logging"
	"github.com/filecoin-project/filbase/lib/sectorbuilder"
	"github.com/filecoin-project/filbase/metrics"
	"github.com/filecoin-project/filbase/node"
	"github.com/filecoin-project/filbase/node/config"
	"github.com/filecoin-project/filbase/node/impl"
	"github.com/filecoin-project/filbase/node/repo"
	"github.com/filecoin-project/filbase/proofs"
)

const shutdownTimeout = 30 * time.Second

var daemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "Start the command server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "prover-id",
			Usage: "31 byte prover id as hex; defaults to the stored id, or a random one on first start",
		},
		&cli.StringFlag{
			Name:  "sector-size",
			Usage: "size of the sectors to seal, eg. 1KiB",
			Value: "1024",
		},
		&cli.Uint64Flag{
			Name:  "last-used-id",
			Usage: "sector numbers are allocated above this id",
		},
	},
	Action: func(cctx *cli.Context) error {
		ssize, err := parseSectorSize(cctx.String("sector-size"))
		if err != nil {
			return ShowHelp(cctx, err)
		}

		var flagProver *api.ProverID
		if s := cctx.String("prover-id"); s != "" {
			p, err := proofs.ParseProverID(s)
			if err != nil {
				return ShowHelp(cctx, xerrors.Errorf("--prover-id: %w", err))
			}
			flagProver = &p
		}

		h, err := GetConfig(cctx)
		if err != nil {
			return err
		}
		cfg := h.Get()
		if err := cfg.ExpandPaths(); err != nil {
			return err
		}
		if err := filbaselog.ApplyLevels(cfg.Logging.SubsystemLevels); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()

		r, err := repo.NewFS(cfg.MetadataDir)
		if err != nil {
			return err
		}
		lr, err := r.Lock()
		if err != nil {
			return xerrors.Errorf("locking metadata dir %s: %w", r.Path(), err)
		}
		defer lr.Close() //nolint:errcheck
		log.Infow("opened metadata dir", "path", lr.Path())

		ds, err := lr.Datastore()
		if err != nil {
			return err
		}

		proverID, err := resolveProverID(ctx, ds, flagProver)
		if err != nil {
			return err
		}

		sb, err := sectorbuilder.New(ctx, &sectorbuilder.Config{
			SectorSize:          ssize,
			ProverID:            proverID,
			LastUsedID:          abi.SectorNumber(cctx.Uint64("last-used-id")),
			MaxNumStagedSectors: cfg.MaxNumStagedSectors,
			PoRepPartitions:     cfg.PoRepPartitions,
			PoStPartitions:      cfg.PoStPartitions,
			SealedDir:           cfg.SealedSectorDir,
			StagedDir:           cfg.StagedSectorDir,
		}, ds, proofs.MockProver{})
		if err != nil {
			return xerrors.Errorf("starting sector builder: %w", err)
		}

		srv := daemon.NewServer(impl.NewSectorAPI(sb, proofs.MockVerifier, nil))

		l, err := net.Listen("tcp", cfg.Addr())
		if err != nil {
			return xerrors.Errorf("listening on %s: %w", cfg.Addr(), err)
		}

		metrics.RecordInfo(ctx)

		eg, ectx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return srv.Serve(ctx, l)
		})

		var msrv *http.Server
		if addr := cfg.Metrics.ListenAddress; addr != "" {
			handler, err := metrics.Exporter("filbase")
			if err != nil {
				return err
			}
			msrv = &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}
			eg.Go(func() error {
				log.Infow("serving metrics", "addr", addr)
				if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return xerrors.Errorf("metrics endpoint: %w", err)
				}
				return nil
			})
		}

		go reloadOnHangup(ctx, h)

		shutdownCh := make(chan struct{})
		finishCh := node.MonitorShutdown(shutdownCh, shutdownHandlers(cancel, srv, msrv)...)
		go func() {
			<-ectx.Done()
			close(shutdownCh)
		}()

		<-finishCh
		return eg.Wait()
	},
}

// shutdownHandlers stops the command server, then the metrics endpoint.
// Seals already running are detached from cancel and finish.
func shutdownHandlers(cancel context.CancelFunc, srv *daemon.Server, msrv *http.Server) []node.ShutdownHandler {
	handlers := []node.ShutdownHandler{{
		Component: "command server",
		StopFunc: func(sctx context.Context) error {
			cancel()
			sctx, done := context.WithTimeout(sctx, shutdownTimeout)
			defer done()
			return srv.Shutdown(sctx)
		},
	}}
	if msrv != nil {
		handlers = append(handlers, node.ShutdownHandler{Component: "metrics endpoint", StopFunc: msrv.Shutdown})
	}
	return handlers
}

// reloadOnHangup re-reads the config file on SIGHUP and applies the new log
// levels. Other settings take effect on the next start.
func reloadOnHangup(ctx context.Context, h *config.Handle) {
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			if err := reloadConfig(h); err != nil {
				log.Errorw("reloading config", "error", err)
			}
		}
	}
}

func reloadConfig(h *config.Handle) error {
	if err := h.Reload(); err != nil {
		return err
	}
	return filbaselog.ApplyLevels(h.Get().Logging.SubsystemLevels)
}

// parseSectorSize accepts a byte count or a size like 2KiB.
func parseSectorSize(s string) (abi.SectorSize, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, xerrors.Errorf("parsing sector size %q: %s: %w", s, err, api.ErrInvalidArgument)
	}
	if n <= 0 {
		return 0, xerrors.Errorf("sector size must be positive: %w", api.ErrInvalidArgument)
	}
	ss := abi.SectorSize(n)
	if err := proofs.ValidateSectorSize(ss); err != nil {
		return 0, err
	}
	return ss, nil
}

func resolveProverID(ctx context.Context, ds datastore.Datastore, flag *api.ProverID) (api.ProverID, error) {
	stored, ok, err := sectorbuilder.StoredProverID(ctx, ds)
	if err != nil {
		return api.ProverID{}, xerrors.Errorf("reading stored prover id: %w", err)
	}

	switch {
	case flag != nil:
		if ok && stored != *flag {
			log.Warnw("prover id differs from the one sectors were sealed with", "stored", stored, "flag", *flag)
		}
		return *flag, nil
	case ok:
		return stored, nil
	}

	id, err := proofs.RandomProverID()
	if err != nil {
		return api.ProverID{}, err
	}
	log.Infow("generated prover id", "proverID", id)
	return id, nil
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Manage daemon config",
	Subcommands: []*cli.Command{
		configDefaultCmd,
	},
}

var configDefaultCmd = &cli.Command{
	Name:  "default",
	Usage: "Print default config",
	Action: func(cctx *cli.Context) error {
		cb, err := config.ConfigComment(config.Default())
		if err != nil {
			return err
		}

		_, err = cctx.App.Writer.Write(cb)
		return err
	},
}
