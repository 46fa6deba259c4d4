package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/filecoin-project/filbase/build"
)

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 8000, 10000, 20000, 30000, 60000,
)

var workMillisecondsDistribution = view.Distribution(
	10, 50, 100, 250, 500, 1000, 2000, 5000, 10_000, 30_000, 60_000, 2*60_000, 5*60_000, 10*60_000, 30*60_000, 60*60_000,
)

var bytesDistribution = view.Distribution(127, 1016, 8128, 65024, 1<<20, 8<<20, 64<<20, 256<<20)

// Tags
var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")

	Command, _ = tag.NewKey("command")
	Result, _  = tag.NewKey("result")
)

// Measures
var (
	Info = stats.Int64("info", "Arbitrary counter to tag filbase info to", stats.UnitDimensionless)

	RequestDuration   = stats.Float64("server/request_duration_ms", "Duration of command requests", stats.UnitMilliseconds)
	ConnectionsOpened = stats.Int64("server/connections_opened", "Counter of accepted connections", stats.UnitDimensionless)
	ConnectionsClosed = stats.Int64("server/connections_closed", "Counter of closed connections", stats.UnitDimensionless)
	FramingErrors     = stats.Int64("server/framing_errors", "Counter of connections dropped on a bad frame", stats.UnitDimensionless)

	PieceBytesStaged = stats.Int64("sectorbuilder/piece_bytes", "Size of pieces added to staged sectors", stats.UnitBytes)
	SectorsSealed    = stats.Int64("sectorbuilder/sectors_sealed", "Counter of sealed sectors", stats.UnitDimensionless)
	SealFailures     = stats.Int64("sectorbuilder/seal_failures", "Counter of sectors that failed to seal", stats.UnitDimensionless)
	SealDuration     = stats.Float64("sectorbuilder/seal_ms", "Duration of sealing one sector", stats.UnitMilliseconds)
	PoStDuration     = stats.Float64("sectorbuilder/post_ms", "Duration of post generation", stats.UnitMilliseconds)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "filbase node information",
		Measure:     Info,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}
	RequestDurationView = &view.View{
		Measure:     RequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Command, Result},
	}
	ConnectionsOpenedView = &view.View{
		Measure:     ConnectionsOpened,
		Aggregation: view.Count(),
	}
	ConnectionsClosedView = &view.View{
		Measure:     ConnectionsClosed,
		Aggregation: view.Count(),
	}
	FramingErrorsView = &view.View{
		Measure:     FramingErrors,
		Aggregation: view.Count(),
	}
	PieceBytesStagedView = &view.View{
		Measure:     PieceBytesStaged,
		Aggregation: bytesDistribution,
	}
	SectorsSealedView = &view.View{
		Measure:     SectorsSealed,
		Aggregation: view.Count(),
	}
	SealFailuresView = &view.View{
		Measure:     SealFailures,
		Aggregation: view.Count(),
	}
	SealDurationView = &view.View{
		Measure:     SealDuration,
		Aggregation: workMillisecondsDistribution,
	}
	PoStDurationView = &view.View{
		Measure:     PoStDuration,
		Aggregation: workMillisecondsDistribution,
	}
)

var views = []*view.View{
	InfoView,
	RequestDurationView,
	ConnectionsOpenedView,
	ConnectionsClosedView,
	FramingErrorsView,
	PieceBytesStagedView,
	SectorsSealedView,
	SealFailuresView,
	SealDurationView,
	PoStDurationView,
}

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	return views
}()

// RecordInfo tags the info measure with the running version.
func RecordInfo(ctx context.Context) {
	ctx, _ = tag.New(ctx,
		tag.Upsert(Version, build.BuildVersion),
		tag.Upsert(Commit, build.CurrentCommit),
	)
	stats.Record(ctx, Info.M(1))
}

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}
