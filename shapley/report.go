package shapley

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/stats"
)

type pieceSummary struct {
	id   board.PieceID
	stat stats.Statistic
}

// summaries returns per-piece statistics sorted by descending contribution,
// ties broken by id.
func (s *Simulator) summaries() []pieceSummary {
	s.mu.RLock()
	sums := lo.Map(s.ids, func(id board.PieceID, _ int) pieceSummary {
		return pieceSummary{id: id, stat: s.acc.Stat(id)}
	})
	s.mu.RUnlock()
	sort.SliceStable(sums, func(i, j int) bool {
		mi, mj := sums[i].stat.Mean(), sums[j].stat.Mean()
		if mi == mj {
			return sums[i].id < sums[j].id
		}
		return mi > mj
	})
	return sums
}

// ContributionStats renders a table of every piece's estimate.
func (s *Simulator) ContributionStats() string {
	var ss strings.Builder
	fmt.Fprintf(&ss, "%-8s%-8s%-24s%-16s%-10s%-8s\n", "Piece", "Col", "Shape", "Contribution", "Stdev", "Count")
	sums := s.summaries()
	for _, ps := range sums {
		p, _ := s.ref.Piece(ps.id)
		contrib := fmt.Sprintf("%.3f±%.3f", ps.stat.Mean(), stats.Z99*ps.stat.StandardError())
		fmt.Fprintf(&ss, "%-8d%-8d%-24s%-16s%-10.3f%-8d\n",
			ps.id, p.Col, p.Shape.String(), contrib, ps.stat.Stdev(), ps.stat.Iterations())
	}
	total := lo.SumBy(sums, func(ps pieceSummary) float64 { return ps.stat.Mean() })
	fh := s.FinalHeights()
	fmt.Fprintf(&ss, "Sum of contributions: %.3f; mean final height: %.3f; reference height: %d\n",
		total, fh.Mean(), s.ref.StackHeight())
	fmt.Fprintf(&ss, "Iterations: %d (intervals are 99%% confidence)\n", s.TotalIterations())
	return ss.String()
}

// ShortDetails is a one-line summary of the top n pieces.
func (s *Simulator) ShortDetails(n int) string {
	var ss strings.Builder
	sums := s.summaries()
	if len(sums) > n {
		sums = sums[:n]
	}
	for idx, ps := range sums {
		fmt.Fprintf(&ss, "%d) #%d (%.2f)  ", idx+1, ps.id, ps.stat.Mean())
	}
	fmt.Fprintf(&ss, "; iters = %d", s.TotalIterations())
	return ss.String()
}
