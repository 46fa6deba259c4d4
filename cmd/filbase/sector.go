package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/filbase/api"
)

var sectorCmd = &cli.Command{
	Name:  "sector",
	Usage: "Inspect sectors",
	Subcommands: []*cli.Command{
		sectorSizeCmd,
		sectorListSealedCmd,
		sectorListStagedCmd,
	},
}

var sectorSizeCmd = &cli.Command{
	Name:      "size",
	Usage:     "Print the number of user bytes that fit in a sector of the given size",
	ArgsUsage: "<sector size>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, fmt.Errorf("expected exactly one argument"))
		}
		ss, err := parseSectorSize(cctx.Args().First())
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		n, err := c.SectorSize(ReqContext(cctx), uint64(ss))
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, n)
		return nil
	},
}

var sectorListSealedCmd = &cli.Command{
	Name:  "list-sealed",
	Usage: "List sealed sectors",
	Action: func(cctx *cli.Context) error {
		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		sectors, err := c.SealedSectors(ReqContext(cctx))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tCommR\tCommD\tPieces\tData\tAccess")
		for _, s := range sectors {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				s.SectorID, s.CommR, s.CommD, pieceKeys(s.Pieces),
				humanize.IBytes(pieceBytes(s.Pieces)), s.SectorAccess)
		}
		return tw.Flush()
	},
}

var sectorListStagedCmd = &cli.Command{
	Name:  "list-staged",
	Usage: "List staged sectors",
	Action: func(cctx *cli.Context) error {
		c, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		sectors, err := c.StagedSectors(ReqContext(cctx))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tStatus\tPieces\tData\tAccess")
		for _, s := range sectors {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				s.SectorID, statusColor(s.Status.Code), pieceKeys(s.Pieces),
				humanize.IBytes(pieceBytes(s.Pieces)), s.SectorAccess)
		}
		return tw.Flush()
	},
}

func pieceKeys(pieces []api.PieceMetadata) string {
	if len(pieces) == 0 {
		return "-"
	}
	return strings.Join(lo.Map(pieces, func(p api.PieceMetadata, _ int) string {
		return p.Key
	}), ",")
}

func pieceBytes(pieces []api.PieceMetadata) uint64 {
	return lo.SumBy(pieces, func(p api.PieceMetadata) uint64 {
		return p.NumBytes
	})
}
