package timetagger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogger(slogLogger{log: slog.New(slog.NewTextHandler(io.Discard, nil))})
	os.Exit(m.Run())
}

// fakeDevice is a Device fed by the test. Raw tags are consecutive integers
// so the order of delivery can be checked.
type fakeDevice struct {
	mu sync.Mutex

	arms    []int64
	tags    []int64
	nextTag int64

	armMem int
	tagMem int
	// reported depths, -1 means the real queue length
	armQty int
	tagQty int

	failNext  error
	panicNext bool

	threshold int
	deadTime  int
	config    DeviceConfig
	setErr    error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{armMem: 1024, tagMem: 4096, armQty: -1, tagQty: -1}
}

// emit queues arm events with the given tag counts, all at once.
func (d *fakeDevice) emit(counts ...int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range counts {
		d.arms = append(d.arms, n)
		for k := int64(0); k < n; k++ {
			d.tags = append(d.tags, d.nextTag)
			d.nextTag++
		}
	}
}

func (d *fakeDevice) failWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

func (d *fakeDevice) panicOnNextCall() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panicNext = true
}

func (d *fakeDevice) reportDepths(arm, tag int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armQty = arm
	d.tagQty = tag
}

func (d *fakeDevice) check() error {
	if d.panicNext {
		d.panicNext = false
		panic("bus error")
	}
	err := d.failNext
	d.failNext = nil
	return err
}

func (d *fakeDevice) ReadMemory(region Region, length int) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	switch region {
	case RegionArm:
		arms := d.arms
		d.arms = nil
		return arms, nil
	case RegionTag0:
		if length == AllPending {
			length = len(d.tags)
		}
		if length > len(d.tags) {
			return nil, fmt.Errorf("short read: %d > %d", length, len(d.tags))
		}
		tags := append([]int64{}, d.tags[:length]...)
		d.tags = d.tags[length:]
		return tags, nil
	}
	return nil, fmt.Errorf("bad region %s", region)
}

func (d *fakeDevice) ArmQty() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if d.armQty >= 0 {
		return d.armQty, nil
	}
	return len(d.arms), nil
}

func (d *fakeDevice) TagQty() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if d.tagQty >= 0 {
		return d.tagQty, nil
	}
	return len(d.tags), nil
}

func (d *fakeDevice) ArmMemSize() int { return d.armMem }
func (d *fakeDevice) TagMemSize() int { return d.tagMem }

func (d *fakeDevice) SetThreshold(adcUnits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = adcUnits
	return d.setErr
}

func (d *fakeDevice) SetDeadTime(cycles int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadTime = cycles
	return d.setErr
}

func (d *fakeDevice) SetConfig(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return d.setErr
}

func newTestWorker(t *testing.T, dev Device) *Worker {
	t.Helper()
	w := NewWorker(dev)
	t.Cleanup(w.Stop)
	return w
}

// fastReadout drains on every poll iteration.
func fastReadout() ReadoutConfig {
	return ReadoutConfig{Channel: 0, Interpolation: 4, Stride: 0, StrideTimeout: time.Millisecond}
}

// readArms collects batches until n arm events arrived.
func readArms(t *testing.T, w *Worker, n int) []Batch {
	t.Helper()
	var batches []Batch
	got := 0
	deadline := time.Now().Add(5 * time.Second)
	for got < n {
		require.True(t, time.Now().Before(deadline), "timed out with %d of %d arm events", got, n)
		bs, rel := w.Read(true, 100*time.Millisecond)
		require.Nil(t, rel)
		for _, b := range bs {
			got += len(b.Arms)
		}
		batches = append(batches, bs...)
	}
	return batches
}
