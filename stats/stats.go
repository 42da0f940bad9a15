// Package stats holds the running statistics the simulator keeps per piece.
package stats

import "math"

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running sample summary. Push and Reset need a pointer; the
// accessors work on copies too. The mean is the exact sum divided by
// the count, so integer-valued samples average without drift; the variance
// uses Welford's algorithm.
type Statistic struct {
	count int
	sum   float64
	last  float64

	// For Welford's algorithm:
	oldM float64
	newM float64
	oldS float64
	newS float64
}

func (s *Statistic) Push(val float64) {
	s.last = val
	s.sum += val
	s.count++
	if s.count == 1 {
		s.oldM = val
		s.newM = val
		s.oldS = 0
	} else {
		s.newM = s.oldM + (val-s.oldM)/float64(s.count)
		s.newS = s.oldS + (val-s.oldM)*(val-s.newM)
		s.oldM = s.newM
		s.oldS = s.newS
	}
}

// Mean is 0 for an empty statistic.
func (s Statistic) Mean() float64 {
	if s.count == 0 {
		return 0.0
	}
	return s.sum / float64(s.count)
}

func (s Statistic) Sum() float64 {
	return s.sum
}

func (s Statistic) Variance() float64 {
	if s.count <= 1 {
		return 0.0
	}
	return s.newS / float64(s.count-1)
}

func (s Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s Statistic) Last() float64 {
	return s.last
}

// StandardError returns the standard error of the mean.
func (s Statistic) StandardError() float64 {
	if s.count == 0 {
		return 0.0
	}
	return math.Sqrt(s.Variance() / float64(s.count))
}

func (s Statistic) Iterations() int {
	return s.count
}

func (s *Statistic) Reset() {
	*s = Statistic{}
}
