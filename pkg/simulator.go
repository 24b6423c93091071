package timetagger

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

type SimulatorConfig struct {
	ArmRate    float64 // arm events per second
	TagsPerArm float64 // mean number of tags per arm event
	TagWindow  int64   // raw ticks spanned by one arm event
	ArmMemSize int
	TagMemSize int
	Seed       int64
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		ArmRate:    1000,
		TagsPerArm: 3,
		TagWindow:  1 << 16,
		ArmMemSize: 1 << 14,
		TagMemSize: 1 << 16,
		Seed:       1,
	}
}

// SimulatedDevice is a Device that produces arm events at a fixed rate with
// a Poisson number of tags each. Like the real memories, the queues saturate
// at capacity-1.
type SimulatedDevice struct {
	mu  sync.Mutex
	cfg SimulatorConfig
	rng *rand.Rand
	now func() time.Time

	start     time.Time
	generated int64
	arms      []int64
	tags      []int64
	failNext  error

	Threshold      int
	DeadTimeCycles int
	Config         DeviceConfig
}

func NewSimulatedDevice(cfg SimulatorConfig) (*SimulatedDevice, error) {
	if cfg.ArmRate < 0 || cfg.TagsPerArm < 0 {
		return nil, &ConfigError{Field: "simulator rate", Value: cfg.ArmRate, Reason: "rates must not be negative"}
	}
	if cfg.ArmMemSize < 2 || cfg.TagMemSize < 2 {
		return nil, &ConfigError{Field: "simulator memory size", Value: cfg.ArmMemSize, Reason: "must be at least 2"}
	}
	if cfg.TagWindow < 1 {
		cfg.TagWindow = 1
	}
	return &SimulatedDevice{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		now:   time.Now,
		start: time.Now(),
	}, nil
}

// FailNext makes the next device access return err.
func (d *SimulatedDevice) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

func (d *SimulatedDevice) takeFailure() error {
	err := d.failNext
	d.failNext = nil
	return err
}

// advance generates the arm events due since the last call.
func (d *SimulatedDevice) advance() {
	elapsed := d.now().Sub(d.start).Seconds()
	due := int64(elapsed * d.cfg.ArmRate)
	for ; d.generated < due; d.generated++ {
		if len(d.arms) >= d.cfg.ArmMemSize-1 {
			// memory full, events are lost
			continue
		}
		n := d.poisson(d.cfg.TagsPerArm)
		if room := int64(d.cfg.TagMemSize-1) - int64(len(d.tags)); n > room {
			n = room
		}
		times := make([]int64, n)
		for i := range times {
			times[i] = d.rng.Int63n(d.cfg.TagWindow)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		d.arms = append(d.arms, n)
		d.tags = append(d.tags, times...)
	}
}

// poisson draws from a Poisson distribution (Knuth).
func (d *SimulatedDevice) poisson(mean float64) int64 {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k := int64(0)
	p := d.rng.Float64()
	for p > limit {
		k++
		p *= d.rng.Float64()
	}
	return k
}

func (d *SimulatedDevice) ReadMemory(region Region, length int) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure(); err != nil {
		return nil, err
	}
	d.advance()

	switch region {
	case RegionArm:
		arms := d.arms
		d.arms = nil
		return arms, nil
	case RegionTag0:
		if length == AllPending {
			length = len(d.tags)
		}
		if length < 0 || length > len(d.tags) {
			return nil, fmt.Errorf("requested %d tags, %d pending", length, len(d.tags))
		}
		tags := append([]int64{}, d.tags[:length]...)
		d.tags = d.tags[length:]
		return tags, nil
	default:
		return nil, fmt.Errorf("unknown memory region %q", region)
	}
}

func (d *SimulatedDevice) ArmQty() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure(); err != nil {
		return 0, err
	}
	d.advance()
	return len(d.arms), nil
}

func (d *SimulatedDevice) TagQty() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure(); err != nil {
		return 0, err
	}
	d.advance()
	return len(d.tags), nil
}

func (d *SimulatedDevice) ArmMemSize() int {
	return d.cfg.ArmMemSize
}

func (d *SimulatedDevice) TagMemSize() int {
	return d.cfg.TagMemSize
}

func (d *SimulatedDevice) SetThreshold(adcUnits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Threshold = adcUnits
	return nil
}

func (d *SimulatedDevice) SetDeadTime(cycles int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DeadTimeCycles = cycles
	return nil
}

func (d *SimulatedDevice) SetConfig(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Config = cfg
	return nil
}
