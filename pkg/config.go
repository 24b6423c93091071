package timetagger

import (
	"math"
	"time"
)

const (
	// Approximate size of one ADC step in volts
	VoltsPerLSB = 18.89e-6
	// The ADC sample clock runs 8x faster than the fabric clock
	SampleClockFactor = 8
	MaxInterpolation  = 7

	DefaultStride        = 100
	DefaultStrideTimeout = time.Second
)

type Configuration struct {
	Verbosity        int     `json:"verbosity"`
	FileOut          string  `json:"file_out"`
	WriteData        bool    `json:"write_data"`
	CompressionLevel int     `json:"compression_level"`
	NoDB             bool    `json:"no_db"`
	Host             string  `json:"host"`
	User             string  `json:"user"`
	Passwd           string  `json:"pass"`
	DBName           string  `json:"dbname"`
	FabricMHz        float64 `json:"fabric_mhz"`
	Channel          int     `json:"channel"`
	Threshold        float64 `json:"threshold"`
	DeadTime         float64 `json:"dead_time"`
	Interpolation    int     `json:"interpolation"`
	ADCSamples       int     `json:"adc_samples"`
	SampleFilter     bool    `json:"sample_filter"`
	Slope            bool    `json:"slope"`
	Invert           bool    `json:"invert"`
	Stride           int     `json:"stride"`
	StrideTimeout    float64 `json:"stride_timeout"`
	NumReads         int     `json:"num_reads"`
	ArmsPerRead      int     `json:"arms_per_read"`
	Multiples        int     `json:"multiples"`
	ReadTimeout      float64 `json:"read_timeout"`
	NumExperiments   int     `json:"num_experiments"`
	BinWidth         float64 `json:"bin_width"`
	NumBins          int     `json:"num_bins"`
	SimArmRate       float64 `json:"sim_arm_rate"`
	SimTagsPerArm    float64 `json:"sim_tags_per_arm"`
	SimArmMemSize    int     `json:"sim_arm_mem_size"`
	SimTagMemSize    int     `json:"sim_tag_mem_size"`
	SimSeed          int64   `json:"sim_seed"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

// SetConfiguration replaces the package configuration. It is not
// synchronized: call it before creating workers and streams.
func SetConfiguration(config Configuration) {
	configuration = config
}

// StreamConfig returns the stream settings held in the run configuration.
func (c Configuration) StreamConfig() StreamConfig {
	return StreamConfig{
		Channel:         c.Channel,
		ThresholdVolts:  c.Threshold,
		DeadTimeSeconds: c.DeadTime,
		Interpolation:   c.Interpolation,
		ADCSamples:      c.ADCSamples,
		SampleFilter:    c.SampleFilter,
		Slope:           c.Slope,
		Invert:          c.Invert,
		Stride:          c.Stride,
		StrideTimeout:   Seconds(c.StrideTimeout),
	}
}

// Seconds converts a float number of seconds as found in JSON files.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// StreamConfig holds the user-facing settings of a time tag stream.
type StreamConfig struct {
	Channel         int
	ThresholdVolts  float64
	DeadTimeSeconds float64
	Interpolation   int
	ADCSamples      int
	SampleFilter    bool
	Slope           bool
	Invert          bool
	Stride          int
	StrideTimeout   time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Channel:         0,
		ThresholdVolts:  100e-3,
		DeadTimeSeconds: 50e-9,
		Interpolation:   4,
		ADCSamples:      1,
		SampleFilter:    false,
		Slope:           false,
		Invert:          true,
		Stride:          DefaultStride,
		StrideTimeout:   DefaultStrideTimeout,
	}
}

func (c StreamConfig) Validate() error {
	if c.Channel < 0 {
		return &ConfigError{Field: "channel", Value: c.Channel, Reason: "must not be negative"}
	}
	if c.ThresholdVolts < 0 || math.IsNaN(c.ThresholdVolts) {
		return &ConfigError{Field: "threshold", Value: c.ThresholdVolts, Reason: "must not be negative"}
	}
	if c.DeadTimeSeconds < 0 || math.IsNaN(c.DeadTimeSeconds) {
		return &ConfigError{Field: "dead time", Value: c.DeadTimeSeconds, Reason: "must not be negative"}
	}
	if c.ADCSamples < 1 {
		return &ConfigError{Field: "adc samples", Value: c.ADCSamples, Reason: "must be at least 1"}
	}
	return c.readout().Validate()
}

func (c StreamConfig) readout() ReadoutConfig {
	return ReadoutConfig{
		Channel:       c.Channel,
		Interpolation: c.Interpolation,
		Stride:        c.Stride,
		StrideTimeout: c.StrideTimeout,
	}
}

// DeviceSettings are the StreamConfig values in device units. They are
// computed once when a stream is built and never change afterwards.
type DeviceSettings struct {
	Threshold      int
	DeadTimeCycles int
	Config         DeviceConfig
}

func deviceSettings(c StreamConfig, cal Calibration) DeviceSettings {
	deadTimeUS := c.DeadTimeSeconds / 1e-6
	return DeviceSettings{
		Threshold:      int(c.ThresholdVolts / VoltsPerLSB),
		DeadTimeCycles: cal.US2Cycles(deadTimeUS, c.Channel),
		Config: DeviceConfig{
			Filter:        boolToInt(c.SampleFilter),
			Slope:         boolToInt(c.Slope),
			Interpolation: c.Interpolation,
			SamplesPerTag: c.ADCSamples,
			Invert:        boolToInt(c.Invert),
		},
	}
}

// ConversionFactor returns the seconds per raw tag tick for the given
// interpolation bits.
func ConversionFactor(cal Calibration, ch int, interpolation int) float64 {
	oneCycle := cal.Cycles2US(1, ch)
	return 1e-6 * oneCycle / float64(int(1)<<interpolation) / SampleClockFactor
}

// ReadoutConfig is what the worker needs for one readout. It is copied into
// the readout when it starts.
type ReadoutConfig struct {
	Channel       int
	Interpolation int
	Stride        int
	StrideTimeout time.Duration
}

func (c ReadoutConfig) Validate() error {
	if c.Interpolation < 0 || c.Interpolation > MaxInterpolation {
		return &ConfigError{Field: "interpolation", Value: c.Interpolation, Reason: "must be between 0 and 7"}
	}
	if c.Stride < 0 {
		return &ConfigError{Field: "stride", Value: c.Stride, Reason: "must not be negative"}
	}
	if c.StrideTimeout <= 0 {
		return &ConfigError{Field: "stride timeout", Value: c.StrideTimeout, Reason: "must be positive"}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
