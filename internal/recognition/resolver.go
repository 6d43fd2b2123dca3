package recognition

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/apperrors"
	"faceattend/internal/metrics"
)

// DefaultThreshold is the similarity percentage a comparison must reach to count as a match.
const DefaultThreshold = 90.0

// Oracle compares a probe image with one stored reference image.
type Oracle interface {
	Compare(ctx context.Context, probe []byte, referenceKey string, threshold float64) (bool, error)
}

// Result is the outcome of a resolution: Matched is false for NoMatch.
type Result struct {
	Matched  bool
	Identity Identity
	// Comparisons is the number of oracle calls made.
	Comparisons int
}

// Resolver maps a probe image to an enrolled identity by pairwise comparison.
type Resolver struct {
	oracle    Oracle
	threshold float64
	logger    *zap.Logger
}

// NewResolver builds a resolver; threshold <= 0 falls back to DefaultThreshold.
func NewResolver(oracle Oracle, threshold float64, logger *zap.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{oracle: oracle, threshold: threshold, logger: logger}
}

// Threshold returns the configured similarity threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Resolve walks the roster in SortRoster order and returns the first identity the
// oracle reports as matching. An oracle failure aborts with ResolverUnavailable;
// it is never treated as a non-match.
func (r *Resolver) Resolve(ctx context.Context, probe []byte, roster []Reference) (Result, error) {
	start := time.Now()
	defer func() { metrics.ResolutionDuration.Observe(time.Since(start).Seconds()) }()

	if len(probe) == 0 {
		return Result{}, apperrors.Validation("probe image is empty")
	}

	ordered := SortRoster(roster)
	var res Result
	for _, ref := range ordered {
		if err := ctx.Err(); err != nil {
			metrics.Resolutions.WithLabelValues("unavailable").Inc()
			return Result{}, apperrors.ResolverUnavailable(err)
		}

		res.Comparisons++
		ok, err := r.oracle.Compare(ctx, probe, ref.Key, r.threshold)
		if err != nil {
			metrics.OracleComparisons.WithLabelValues("error").Inc()
			metrics.Resolutions.WithLabelValues("unavailable").Inc()
			r.logger.Warn("face comparison failed",
				zap.String("reference", ref.Key),
				zap.Int("comparisons", res.Comparisons),
				zap.Error(err))
			return Result{}, apperrors.ResolverUnavailable(err)
		}
		if ok {
			metrics.OracleComparisons.WithLabelValues("match").Inc()
			metrics.Resolutions.WithLabelValues("matched").Inc()
			res.Matched = true
			res.Identity = ref.Identity
			return res, nil
		}
		metrics.OracleComparisons.WithLabelValues("no_match").Inc()
	}

	metrics.Resolutions.WithLabelValues("no_match").Inc()
	return res, nil
}

// SortRoster returns a copy ordered by student name, then key. Blob listings are
// not guaranteed stable, so resolution never depends on their order.
func SortRoster(roster []Reference) []Reference {
	out := make([]Reference, len(roster))
	copy(out, roster)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Identity.Name != out[j].Identity.Name {
			return out[i].Identity.Name < out[j].Identity.Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}
