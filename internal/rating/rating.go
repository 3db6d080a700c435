// Package rating computes profile points from a match record.
// Performance is the non-losing percentage, a draw being worth a
// third of a win. Points approach 1000 as games and performance grow.
package rating

import "math"

// Default weights. Points for common records then look like:
//
//	perf \ games |   5  10  50 100 200 1000
//	-------------+-------------------------
//	        0.00 | 123 220 514 556 559 560
//	        0.50 | 233 330 624 666 669 670
//	        1.00 | 563 660 954 996 999 1000
const (
	DefaultW1 = 0.44
	DefaultW2 = 0.56
)

// Math holds normalized weights (w1 + w2 = 1).
type Math struct {
	w1, w2 float64
}

func New(w1, w2 float64) Math {
	return Math{w1: w1, w2: w2}
}

func Default() Math {
	return New(DefaultW1, DefaultW2)
}

// Score maps a performance ratio and game count onto [0, 1).
func (m Math) Score(perf float64, games int32) float64 {
	return m.w2 + m.w1*perf*perf + m.w2*(-math.Exp(-float64(games)*0.05))
}

// Points returns the integer points for a win/draw/loss record.
func (m Math) Points(wins, draws, losses int32) int32 {
	games := wins + draws + losses
	perf := 0.0
	if games > 0 {
		perf = (float64(wins) + 0.333*float64(draws)) / float64(games)
	}
	return int32(1000 * m.Score(perf, games))
}

var divisionThresholds = [4]int32{250, 450, 600, 750}

// Division is a step function of points onto divisions 0 through 4.
func Division(points int32) int32 {
	for division, threshold := range divisionThresholds {
		if points < threshold {
			return int32(division)
		}
	}
	return 4
}
