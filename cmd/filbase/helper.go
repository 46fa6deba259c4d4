package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/client"
	"github.com/filecoin-project/filbase/node/config"
)

const (
	metadataContext = "context"
	metadataConfig  = "config"
)

type PrintHelpErr struct {
	Err error
	Ctx *cli.Context
}

func (e *PrintHelpErr) Error() string {
	return e.Err.Error()
}

func (e *PrintHelpErr) Unwrap() error {
	return e.Err
}

func (e *PrintHelpErr) Is(o error) bool {
	_, ok := o.(*PrintHelpErr)
	return ok
}

func ShowHelp(cctx *cli.Context, err error) error {
	return &PrintHelpErr{Err: err, Ctx: cctx}
}

func RunApp(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		if os.Getenv("FILBASE_DEV") != "" {
			log.Warnf("%+v", err)
		} else {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err) // nolint:errcheck
		}
		var phe *PrintHelpErr
		if xerrors.As(err, &phe) {
			_ = cli.ShowCommandHelp(phe.Ctx, phe.Ctx.Command.Name)
		}
		os.Exit(1)
	}
}

// ReqContext returns context for cli execution. Calling it for the first time
// installs SIGTERM handler that will close returned context.
// Not safe for concurrent execution.
func ReqContext(cctx *cli.Context) context.Context {
	if uctx, ok := cctx.App.Metadata[metadataContext]; ok {
		return uctx.(context.Context)
	}

	ctx, done := context.WithCancel(cctx.Context)
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]interface{}{}
	}
	cctx.App.Metadata[metadataContext] = ctx
	return ctx
}

func configDefaultName() string {
	return config.DefaultConfigFile
}

// GetConfig loads the configuration named by --config, once per process.
func GetConfig(cctx *cli.Context) (*config.Handle, error) {
	if h, ok := cctx.App.Metadata[metadataConfig]; ok {
		return h.(*config.Handle), nil
	}

	h, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}

	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]interface{}{}
	}
	cctx.App.Metadata[metadataConfig] = h
	return h, nil
}

// GetClient dials the daemon at the configured address. The caller closes
// the returned client.
func GetClient(cctx *cli.Context) (*client.Client, error) {
	h, err := GetConfig(cctx)
	if err != nil {
		return nil, err
	}
	cfg := h.Get()

	return client.Dial(ReqContext(cctx), cfg.Addr(), cfg.Client)
}
