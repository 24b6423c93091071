package timetagger

import (
	"fmt"
	"math"
	"sort"
)

// Histogram accumulates time tags into one histogram per experiment.
// Arm events are assigned to experiments round robin: arm event j belongs to
// experiment j % numExperiments.
type Histogram struct {
	numExperiments int
	edges          []float64
	counts         [][]float64
}

// NewHistogram creates a histogram with numBins uniform bins of binWidth
// starting at zero.
func NewHistogram(numExperiments int, binWidth float64, numBins int) (*Histogram, error) {
	if binWidth <= 0 || math.IsNaN(binWidth) || math.IsInf(binWidth, 0) {
		return nil, &ConfigError{Field: "bin width", Value: binWidth, Reason: "must be positive"}
	}
	if numBins < 1 {
		return nil, &ConfigError{Field: "number of bins", Value: numBins, Reason: "must be at least 1"}
	}
	return NewHistogramWithEdges(numExperiments, linspace(0, float64(numBins)*binWidth, numBins+1))
}

// NewHistogramWithEdges creates a histogram with explicit bin edges.
func NewHistogramWithEdges(numExperiments int, edges []float64) (*Histogram, error) {
	if numExperiments < 1 {
		return nil, &ConfigError{Field: "number of experiments", Value: numExperiments, Reason: "must be at least 1"}
	}
	if len(edges) < 2 {
		return nil, &ConfigError{Field: "bin edges", Value: len(edges), Reason: "at least two edges are needed"}
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, &ConfigError{Field: "bin edges", Value: fmt.Sprint(edges), Reason: "must be strictly increasing"}
		}
	}

	h := &Histogram{
		numExperiments: numExperiments,
		edges:          append([]float64{}, edges...),
		counts:         make([][]float64, numExperiments),
	}
	for i := range h.counts {
		h.counts[i] = make([]float64, len(edges)-1)
	}
	return h, nil
}

func linspace(start, stop float64, num int) []float64 {
	values := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	values[num-1] = stop
	return values
}

// BinTags adds the tags of a sequence of arm events to the histograms. The
// first arm event goes to experiment 0.
func (h *Histogram) BinTags(newTags [][]float64) {
	for i := 0; i < h.numExperiments; i++ {
		for j := i; j < len(newTags); j += h.numExperiments {
			for _, tag := range newTags[j] {
				if bin, ok := h.bin(tag); ok {
					h.counts[i][bin]++
				}
			}
		}
	}
}

// bin returns the bin of value. Bins are closed on the left; the last one
// is closed on both sides.
func (h *Histogram) bin(value float64) (int, bool) {
	last := len(h.edges) - 1
	if math.IsNaN(value) || value < h.edges[0] || value > h.edges[last] {
		return 0, false
	}
	if value == h.edges[last] {
		return last - 1, true
	}
	k := sort.Search(len(h.edges), func(i int) bool { return h.edges[i] > value })
	return k - 1, true
}

func (h *Histogram) NumExperiments() int {
	return h.numExperiments
}

func (h *Histogram) Edges() []float64 {
	return append([]float64{}, h.edges...)
}

// Experiment returns a copy of the counts of experiment i.
func (h *Histogram) Experiment(i int) []float64 {
	return append([]float64{}, h.counts[i]...)
}

// Counts returns a copy of all counts, one row per experiment.
func (h *Histogram) Counts() [][]float64 {
	counts := make([][]float64, len(h.counts))
	for i := range h.counts {
		counts[i] = h.Experiment(i)
	}
	return counts
}

// Total returns the number of binned tags.
func (h *Histogram) Total() float64 {
	total := 0.0
	for _, row := range h.counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

func (h *Histogram) Reset() {
	for _, row := range h.counts {
		for k := range row {
			row[k] = 0
		}
	}
}
