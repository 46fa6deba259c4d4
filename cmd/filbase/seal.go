package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/filbase/api"
)

var sealCmd = &cli.Command{
	Name:  "seal",
	Usage: "Seal staged sectors and inspect seal results",
	Subcommands: []*cli.Command{
		sealGenerateCmd,
		sealVerifyCmd,
		sealStatusCmd,
	},
}

var sealGenerateCmd = &cli.Command{
	Name:  "generate",
	Usage: "Seal every staged sector that holds data",
	Action: func(cctx *cli.Context) error {
		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		start := time.Now()
		if err := c.SealAllStaged(ReqContext(cctx)); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "sealing finished in %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var sealVerifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Verify a proof of replication",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "sector-size", Value: "1024"},
		&cli.StringFlag{Name: "comm-r", Usage: "32 byte hex", Required: true},
		&cli.StringFlag{Name: "comm-d", Usage: "32 byte hex", Required: true},
		&cli.StringFlag{Name: "comm-r-star", Usage: "32 byte hex", Required: true},
		&cli.StringFlag{Name: "prover-id", Usage: "31 byte hex", Required: true},
		&cli.StringFlag{Name: "sector-id", Usage: "31 byte hex", Required: true},
		&cli.StringFlag{Name: "proof", Usage: "hex", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		req, err := sealVerifyParams{
			SectorSize: cctx.String("sector-size"),
			CommR:      cctx.String("comm-r"),
			CommD:      cctx.String("comm-d"),
			CommRStar:  cctx.String("comm-r-star"),
			ProverID:   cctx.String("prover-id"),
			SectorID:   cctx.String("sector-id"),
			Proof:      cctx.String("proof"),
		}.request()
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		ok, err := c.SealVerify(ReqContext(cctx), req)
		if err != nil {
			return err
		}
		printValid(cctx, ok)
		return nil
	},
}

var sealStatusCmd = &cli.Command{
	Name:  "status",
	Usage: "Print the seal status of a sector",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "sector-id", Required: true},
		&cli.BoolFlag{Name: "wait", Usage: "poll until the sector is sealed or failed"},
		&cli.DurationFlag{Name: "interval", Value: 5 * time.Second, Usage: "poll interval for --wait"},
	},
	Action: func(cctx *cli.Context) error {
		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		ctx := ReqContext(cctx)
		id := cctx.Uint64("sector-id")

		var status api.SealStatus
		if cctx.Bool("wait") {
			status, err = c.WaitSealed(ctx, id, cctx.Duration("interval"))
			if err != nil && status.Code != api.StatusFailed {
				return err
			}
		} else {
			status, err = c.SealStatus(ctx, id)
			if err != nil {
				return err
			}
		}

		w := cctx.App.Writer
		fmt.Fprintf(w, "sector %d: %s\n", id, statusColor(status.Code))
		switch status.Code {
		case api.StatusSealed:
			m := status.Sealed
			fmt.Fprintf(w, "  access:      %s\n", m.SectorAccess)
			fmt.Fprintf(w, "  comm-r:      %s\n", m.CommR)
			fmt.Fprintf(w, "  comm-d:      %s\n", m.CommD)
			fmt.Fprintf(w, "  comm-r-star: %s\n", m.CommRStar)
			fmt.Fprintf(w, "  proof:       %x\n", m.Proof)
			fmt.Fprintf(w, "  pieces:      %d\n", len(m.Pieces))
		case api.StatusFailed:
			fmt.Fprintf(w, "  error: %s\n", status.Error)
		}
		return nil
	},
}

func statusColor(code api.SealStatusCode) string {
	switch code {
	case api.StatusSealed:
		return color.GreenString(code.String())
	case api.StatusFailed:
		return color.RedString(code.String())
	case api.StatusSealing:
		return color.YellowString(code.String())
	default:
		return code.String()
	}
}
