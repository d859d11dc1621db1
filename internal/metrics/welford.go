// Package metrics holds running statistics over timetable results.
package metrics

import "math"

// RideTimeStats accumulates ride times with Welford's online algorithm, so
// a direction's mean is known without keeping its entries around
type RideTimeStats struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// Add records one ride time in minutes.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (s *RideTimeStats) Add(minutes int) {
	v := float64(minutes)
	s.count++
	delta := v - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (v - s.mean)
}

// Count returns the number of ride times seen
func (s *RideTimeStats) Count() int {
	return s.count
}

// Mean returns the mean ride time, 0 when empty
func (s *RideTimeStats) Mean() float64 {
	return s.mean
}

// StdDev returns the population standard deviation; 0 below two samples
func (s *RideTimeStats) StdDev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count))
}

// Less reports whether s has a strictly lower mean than other. An empty
// accumulator is never less.
func (s *RideTimeStats) Less(other *RideTimeStats) bool {
	if s.count == 0 {
		return false
	}
	if other.count == 0 {
		return true
	}
	return s.mean < other.mean
}
