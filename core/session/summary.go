package session

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the movements finished during a session.
type Summary struct {
	Movements int
	Mean      time.Duration
	StdDev    time.Duration
	Max       time.Duration
	Total     time.Duration
}

func (s Summary) String() string {
	if s.Movements == 0 {
		return "no movements"
	}
	return fmt.Sprintf("%d movements, total %.2fs, mean %.2fs, stddev %.2fs, max %.2fs",
		s.Movements, s.Total.Seconds(), s.Mean.Seconds(), s.StdDev.Seconds(), s.Max.Seconds())
}

func summarize(durations []time.Duration) Summary {
	if len(durations) == 0 {
		return Summary{}
	}
	secs := make([]float64, len(durations))
	for i, d := range durations {
		secs[i] = d.Seconds()
	}
	sum := Summary{
		Movements: len(secs),
		Max:       seconds(floats.Max(secs)),
		Total:     seconds(floats.Sum(secs)),
	}
	if len(secs) == 1 {
		sum.Mean = durations[0]
		return sum
	}
	mean, std := stat.MeanStdDev(secs, nil)
	sum.Mean = seconds(mean)
	sum.StdDev = seconds(std)
	return sum
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
