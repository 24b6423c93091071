package main

import (
	"errors"
	"testing"
	"time"

	timetagger "github.com/next-exp/timetagger_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	arms []int64
	tags int
	err  error
}

func (r *recordingWriter) WriteArms(arms []int64, tags [][]float64) error {
	if r.err != nil {
		return r.err
	}
	r.arms = append(r.arms, arms...)
	for _, group := range tags {
		r.tags += len(group)
	}
	return nil
}

func testRunConfig(t *testing.T) timetagger.Configuration {
	t.Helper()
	config, err := LoadConfiguration("")
	require.NoError(t, err)
	config.FabricMHz = 100
	config.Stride = 0
	config.StrideTimeout = 0.001
	config.NumReads = 3
	config.ArmsPerRead = 20
	config.Multiples = 4
	config.BinWidth = 1e-7
	config.NumBins = 100
	config.NumExperiments = 2
	return config
}

func newTestRun(t *testing.T, config timetagger.Configuration) (*timetagger.TimeTagStream, *timetagger.Histogram) {
	t.Helper()
	device, err := timetagger.NewSimulatedDevice(simulatorConfig(config))
	require.NoError(t, err)
	worker := timetagger.NewWorker(device)
	t.Cleanup(worker.Stop)

	stream, err := timetagger.NewTimeTagStream(worker, device,
		timetagger.FixedClock{FabricMHz: config.FabricMHz}, config.StreamConfig())
	require.NoError(t, err)

	hist, err := timetagger.NewHistogram(config.NumExperiments, config.BinWidth, config.NumBins)
	require.NoError(t, err)
	return stream, hist
}

func TestAcquire(t *testing.T) {
	config := testRunConfig(t)
	stream, hist := newTestRun(t, config)
	out := &recordingWriter{}

	var summary runSummary
	err := stream.Run(func(s *timetagger.TimeTagStream) error {
		var err error
		summary, err = acquire(s, hist, out, config)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Reads)
	assert.Equal(t, config.NumReads*config.ArmsPerRead, summary.Arms)
	assert.Len(t, out.arms, summary.Arms)
	assert.Equal(t, summary.Tags, out.tags)
	// every simulated tag falls inside the histogram range
	assert.Equal(t, float64(summary.Tags), hist.Total())

	require.NoError(t, flush(stream, hist, out, &summary))
	totArms, totTags := stream.Totals()
	assert.Equal(t, int(totArms), summary.Arms)
	assert.Equal(t, int(totTags), summary.Tags)
	assert.Equal(t, 0, stream.Buffered())
}

func TestAcquireWithoutWriter(t *testing.T) {
	config := testRunConfig(t)
	config.NumReads = 1
	stream, hist := newTestRun(t, config)

	err := stream.Run(func(s *timetagger.TimeTagStream) error {
		summary, err := acquire(s, hist, nil, config)
		assert.Equal(t, config.ArmsPerRead, summary.Arms)
		return err
	})
	require.NoError(t, err)
}

func TestAcquireWriterError(t *testing.T) {
	config := testRunConfig(t)
	stream, hist := newTestRun(t, config)
	failure := errors.New("disk full")

	err := stream.Run(func(s *timetagger.TimeTagStream) error {
		_, err := acquire(s, hist, &recordingWriter{err: failure}, config)
		return err
	})
	assert.ErrorIs(t, err, failure)
}

func TestAcquireAfterReadoutStopped(t *testing.T) {
	config := testRunConfig(t)
	stream, hist := newTestRun(t, config)

	var summary runSummary
	err := stream.Run(func(s *timetagger.TimeTagStream) error {
		var err error
		summary, err = acquire(s, hist, nil, config)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, flush(stream, hist, nil, &summary))

	// no timeout: reads fail instead of returning partial data
	config.ReadTimeout = 0
	start := time.Now()
	_, err = acquire(stream, hist, nil, config)
	assert.ErrorIs(t, err, timetagger.ErrReadoutNotActive)
	assert.Less(t, time.Since(start), time.Second)
}
