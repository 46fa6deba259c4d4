package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var postCmd = &cli.Command{
	Name:  "post",
	Usage: "Generate and verify proofs of space-time",
	Subcommands: []*cli.Command{
		postGenerateCmd,
		postVerifyCmd,
	},
}

var postGenerateCmd = &cli.Command{
	Name:  "generate",
	Usage: "Prove the sealed sectors with the given replica commitments",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "comm-rs",
			Usage:    "comma separated 32 byte replica commitments as hex",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "challenge-seed",
			Usage:    "32 byte challenge seed as hex",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		commRs, err := parseCommitments(cctx.String("comm-rs"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		if len(commRs) == 0 {
			return ShowHelp(cctx, xerrors.New("--comm-rs must name at least one commitment"))
		}
		seed, err := parseChallengeSeed(cctx.String("challenge-seed"))
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		resp, err := c.PostGenerate(ReqContext(cctx), commRs, seed)
		if err != nil {
			return err
		}

		w := cctx.App.Writer
		for i, p := range resp.Proofs {
			fmt.Fprintf(w, "proof %d: %s\n", i, hex.EncodeToString(p))
		}
		if len(resp.Faults) > 0 {
			fmt.Fprintf(w, "faults: %s\n", color.RedString("%v", resp.Faults))
		}
		return nil
	},
}

var postVerifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Verify a proof of space-time",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "sector-size",
			Value: "1024",
		},
		&cli.UintFlag{
			Name:  "proof-partitions",
			Usage: "partition count the proofs were generated with; defaults to the number of proofs",
		},
		&cli.StringFlag{
			Name:     "comm-rs",
			Usage:    "comma separated 32 byte replica commitments as hex",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "challenge-seed",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "proofs",
			Usage:    "comma separated proofs as hex",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "faults",
			Usage: "comma separated faulty sector numbers",
		},
	},
	Action: func(cctx *cli.Context) error {
		req, err := postVerifyParams{
			SectorSize:      cctx.String("sector-size"),
			ProofPartitions: cctx.Uint("proof-partitions"),
			CommRs:          cctx.String("comm-rs"),
			ChallengeSeed:   cctx.String("challenge-seed"),
			Proofs:          cctx.String("proofs"),
			Faults:          cctx.String("faults"),
		}.request()
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		ok, err := c.PostVerify(ReqContext(cctx), req)
		if err != nil {
			return err
		}
		printValid(cctx, ok)
		return nil
	},
}

func printValid(cctx *cli.Context, ok bool) {
	if ok {
		fmt.Fprintln(cctx.App.Writer, color.GreenString("valid"))
		return
	}
	fmt.Fprintln(cctx.App.Writer, color.RedString("invalid"))
}
