package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var pieceCmd = &cli.Command{
	Name:  "piece",
	Usage: "Stage and retrieve pieces",
	Subcommands: []*cli.Command{
		pieceAddCmd,
		pieceReadCmd,
	},
}

var pieceAddCmd = &cli.Command{
	Name:      "add",
	Usage:     "Stage the contents of a file under a key",
	ArgsUsage: "<key> <path>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "amount",
			Usage: "number of bytes to stage; defaults to the whole file",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected <key> <path>"))
		}
		key := cctx.Args().Get(0)

		// the daemon resolves the path, which may run in another directory
		path, err := filepath.Abs(cctx.Args().Get(1))
		if err != nil {
			return err
		}

		var amount *uint64
		if cctx.IsSet("amount") {
			a := cctx.Uint64("amount")
			amount = &a
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		sid, err := c.PieceAdd(ReqContext(cctx), key, amount, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "piece %s staged in sector %d\n", key, sid)
		return nil
	},
}

var pieceReadCmd = &cli.Command{
	Name:      "read",
	Usage:     "Read a piece back out of its sealed sector",
	ArgsUsage: "<key>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the piece to a file instead of stdout",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected <key>"))
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		data, err := c.PieceRead(ReqContext(cctx), cctx.Args().First())
		if err != nil {
			return err
		}

		if out := cctx.String("output"); out != "" {
			return os.WriteFile(out, data, 0644)
		}
		_, err = cctx.App.Writer.Write(data)
		return err
	},
}
