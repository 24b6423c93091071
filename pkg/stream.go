package timetagger

import (
	"fmt"
	"time"
)

// TimeTagStream is one configured stream of time tags. It converts the raw
// tags to seconds, groups them by arm event and buffers them between reads.
type TimeTagStream struct {
	worker   *Worker
	cfg      StreamConfig
	settings DeviceSettings
	readout  ReadoutConfig

	// seconds per raw tag tick
	conversionFactor float64

	// arm events received but not yet returned
	arms []int64
	tags [][]float64

	totArms int64
	totTags int64
}

// NewTimeTagStream validates cfg, programs the device with it and returns a
// stream reading through w. The device is configured only here.
func NewTimeTagStream(w *Worker, dev Device, cal Calibration, cfg StreamConfig) (*TimeTagStream, error) {
	if w == nil || dev == nil || cal == nil {
		return nil, &ConfigError{Field: "stream", Value: nil, Reason: "worker, device and calibration are required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table, ok := cal.(interface{ HasChannel(int) bool }); ok && !table.HasChannel(cfg.Channel) {
		return nil, &ConfigError{Field: "channel", Value: cfg.Channel, Reason: "no clock calibration"}
	}

	s := &TimeTagStream{
		worker:           w,
		cfg:              cfg,
		settings:         deviceSettings(cfg, cal),
		readout:          cfg.readout(),
		conversionFactor: ConversionFactor(cal, cfg.Channel, cfg.Interpolation),
	}

	if err := dev.SetThreshold(s.settings.Threshold); err != nil {
		return nil, &TransportError{Op: "set threshold", Err: err}
	}
	if err := dev.SetDeadTime(s.settings.DeadTimeCycles); err != nil {
		return nil, &TransportError{Op: "set dead time", Err: err}
	}
	if err := dev.SetConfig(s.settings.Config); err != nil {
		return nil, &TransportError{Op: "set config", Err: err}
	}

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Stream on channel %d: threshold %d ADC units, dead time %d cycles, %.6g s per tick",
			cfg.Channel, s.settings.Threshold, s.settings.DeadTimeCycles, s.conversionFactor)
		logger.Info(message, "stream")
	}
	return s, nil
}

// Start begins a readout with the stream's configuration.
func (s *TimeTagStream) Start() error {
	return s.worker.StartReadout(s.readout)
}

// Stop ends the readout.
func (s *TimeTagStream) Stop() {
	s.worker.StopReadout()
}

// Run starts a readout, calls fn and stops the readout on every way out of
// fn, panics included.
func (s *TimeTagStream) Run(fn func(*TimeTagStream) error) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("error starting readout: %w", err)
	}
	defer s.Stop()
	return fn(s)
}

// Read returns up to nArms arm events and their tags in seconds.
//
// With nArms == 0 it returns everything available right away and empties the
// buffer, whatever multiples says. With nArms > 0 it waits until nArms arm
// events are buffered or the timeout elapses (timeout <= 0 waits without
// limit), and the number returned is always a multiple of multiples; the
// extra arm events stay buffered for the next call. If the readout has ended,
// a read with a timeout returns what is buffered right away and a read
// without one fails with ErrReadoutNotActive.
func (s *TimeTagStream) Read(nArms int, multiples int, timeout time.Duration) ([]int64, [][]float64, error) {
	if nArms < 0 {
		return nil, nil, &ConfigError{Field: "n_arms", Value: nArms, Reason: "must not be negative"}
	}
	if multiples < 1 {
		return nil, nil, &ConfigError{Field: "multiples", Value: multiples, Reason: "must be at least 1"}
	}

	if nArms == 0 {
		batches, rel := s.worker.Read(false, 0)
		s.parse(batches)
		if rel != nil {
			return nil, nil, remote(rel)
		}
		return s.take(len(s.arms))
	}

	start := time.Now()
	for {
		var batches []Batch
		var rel *RelayedError
		if timeout > 0 {
			remaining := timeout - time.Since(start)
			if remaining > 0 {
				batches, rel = s.worker.Read(true, remaining)
			} else {
				batches, rel = s.worker.Read(false, 0)
			}
		} else {
			batches, rel = s.worker.Read(true, 0)
		}

		// Data delivered with an error is kept
		s.parse(batches)
		if rel != nil {
			return nil, nil, remote(rel)
		}

		if len(s.arms) >= nArms {
			arms, tags, _ := s.take(nArms)
			return s.align(arms, tags, multiples)
		}
		if timeout > 0 && time.Since(start) >= timeout {
			arms, tags, _ := s.take(len(s.arms))
			return s.align(arms, tags, multiples)
		}
		if s.worker.ReadoutState() != ReadoutActive && len(batches) == 0 {
			// Nothing more will arrive
			if timeout <= 0 {
				return nil, nil, ErrReadoutNotActive
			}
			arms, tags, _ := s.take(len(s.arms))
			return s.align(arms, tags, multiples)
		}
	}
}

// parse converts and regroups batches into the buffer.
func (s *TimeTagStream) parse(batches []Batch) {
	for _, b := range batches {
		s.totArms += int64(len(b.Arms))
		s.totTags += sum(b.Arms)

		tags := make([]float64, len(b.Tags))
		for i, t := range b.Tags {
			tags[i] = float64(t) * s.conversionFactor
		}

		tagIdx := int64(0)
		for _, nTags := range b.Arms {
			s.arms = append(s.arms, nTags)
			s.tags = append(s.tags, tags[tagIdx:tagIdx+nTags:tagIdx+nTags])
			tagIdx += nTags
		}
	}
}

func (s *TimeTagStream) take(n int) ([]int64, [][]float64, error) {
	arms := s.arms[:n:n]
	tags := s.tags[:n:n]
	if n == len(s.arms) {
		s.arms = nil
		s.tags = nil
	} else {
		s.arms = s.arms[n:]
		s.tags = s.tags[n:]
	}
	return arms, tags, nil
}

// align puts the arm events beyond the last multiple back in front of the
// buffer.
func (s *TimeTagStream) align(arms []int64, tags [][]float64, multiples int) ([]int64, [][]float64, error) {
	extras := len(arms) % multiples
	if extras == 0 {
		return arms, tags, nil
	}
	keep := len(arms) - extras
	s.arms = append(append([]int64{}, arms[keep:]...), s.arms...)
	s.tags = append(append([][]float64{}, tags[keep:]...), s.tags...)
	return arms[:keep:keep], tags[:keep:keep], nil
}

func remote(rel *RelayedError) error {
	return &RemoteError{Diagnostic: rel.Diagnostic, Err: rel.Err}
}

// Totals returns the number of arm events and tags received since the
// stream was created.
func (s *TimeTagStream) Totals() (arms int64, tags int64) {
	return s.totArms, s.totTags
}

// Buffered returns the number of arm events waiting in the buffer.
func (s *TimeTagStream) Buffered() int {
	return len(s.arms)
}

func (s *TimeTagStream) ConversionFactor() float64 {
	return s.conversionFactor
}

func (s *TimeTagStream) Settings() DeviceSettings {
	return s.settings
}

func (s *TimeTagStream) Config() StreamConfig {
	return s.cfg
}
