package main

import (
	"fmt"

	timetagger "github.com/next-exp/timetagger_go/pkg"
)

type armWriter interface {
	WriteArms(arms []int64, tags [][]float64) error
}

type runSummary struct {
	Reads int
	Arms  int
	Tags  int
}

// acquire reads configuration.NumReads chunks of arm events from stream,
// bins them and hands them to out (which may be nil). The stream must be
// running.
func acquire(stream *timetagger.TimeTagStream, hist *timetagger.Histogram, out armWriter,
	config timetagger.Configuration) (runSummary, error) {
	var summary runSummary
	timeout := timetagger.Seconds(config.ReadTimeout)

	for i := 0; i < config.NumReads; i++ {
		arms, tags, err := stream.Read(config.ArmsPerRead, config.Multiples, timeout)
		if err != nil {
			return summary, fmt.Errorf("error in read %d: %w", i, err)
		}
		if err := consume(arms, tags, hist, out, &summary); err != nil {
			return summary, err
		}
		if config.Verbosity > 1 {
			message := fmt.Sprintf("Read %d: %d arm events, %d buffered", i, len(arms), stream.Buffered())
			logger.Info(message, "acquire")
		}
	}
	return summary, nil
}

// flush returns whatever is left in the stream, ignoring alignment.
func flush(stream *timetagger.TimeTagStream, hist *timetagger.Histogram, out armWriter,
	summary *runSummary) error {
	arms, tags, err := stream.Read(0, 1, 0)
	if err != nil {
		return fmt.Errorf("error flushing stream: %w", err)
	}
	return consume(arms, tags, hist, out, summary)
}

func consume(arms []int64, tags [][]float64, hist *timetagger.Histogram, out armWriter,
	summary *runSummary) error {
	hist.BinTags(tags)
	if out != nil {
		if err := out.WriteArms(arms, tags); err != nil {
			return err
		}
	}
	summary.Reads++
	summary.Arms += len(arms)
	for _, t := range tags {
		summary.Tags += len(t)
	}
	return nil
}
