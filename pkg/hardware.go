package timetagger

import "math"

// Region names a readable memory of the time tagger.
type Region string

const (
	RegionArm  Region = "ARM"
	RegionTag0 Region = "TAG0"
)

// AllPending asks ReadMemory for everything currently queued in a region.
const AllPending = -1

// Device is the register-level contract of the time tagger block.
//
// ReadMemory on RegionArm returns the number of tags collected in each arm
// event since the last read. On RegionTag0 it returns exactly length raw
// timestamps, or everything pending when length is AllPending.
type Device interface {
	ReadMemory(region Region, length int) ([]int64, error)
	ArmQty() (int, error)
	TagQty() (int, error)
	ArmMemSize() int
	TagMemSize() int
	SetThreshold(adcUnits int) error
	SetDeadTime(cycles int) error
	SetConfig(cfg DeviceConfig) error
}

// DeviceConfig is the bundle written with Device.SetConfig.
type DeviceConfig struct {
	Filter        int
	Slope         int
	Interpolation int
	SamplesPerTag int
	Invert        int
}

// Calibration converts between fabric clock cycles and microseconds for a
// readout channel.
type Calibration interface {
	Cycles2US(cycles float64, ch int) float64
	US2Cycles(us float64, ch int) int
}

// FixedClock is a Calibration with the same fabric clock on every channel.
type FixedClock struct {
	FabricMHz float64
}

func (c FixedClock) Cycles2US(cycles float64, ch int) float64 {
	return cycles / c.FabricMHz
}

func (c FixedClock) US2Cycles(us float64, ch int) int {
	return int(math.Round(us * c.FabricMHz))
}

// ClockTable is a per-channel Calibration, usually loaded from the database.
type ClockTable map[int]float64

// Cycles2US returns 0 for a channel without calibration, see HasChannel.
func (t ClockTable) Cycles2US(cycles float64, ch int) float64 {
	if !t.HasChannel(ch) {
		return 0
	}
	return cycles / t[ch]
}

// US2Cycles returns 0 for a channel without calibration, see HasChannel.
func (t ClockTable) US2Cycles(us float64, ch int) int {
	if !t.HasChannel(ch) {
		return 0
	}
	return int(math.Round(us * t[ch]))
}

// HasChannel reports whether a fabric frequency is known for ch.
func (t ClockTable) HasChannel(ch int) bool {
	f, ok := t[ch]
	return ok && f > 0
}
