package timetagger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newManualSimulator returns a simulator whose clock only moves when the
// returned function is called.
func newManualSimulator(t *testing.T, cfg SimulatorConfig) (*SimulatedDevice, func(time.Duration)) {
	t.Helper()
	d, err := NewSimulatedDevice(cfg)
	require.NoError(t, err)
	now := time.Unix(0, 0)
	d.start = now
	d.now = func() time.Time { return now }
	return d, func(step time.Duration) { now = now.Add(step) }
}

func TestSimulatorGeneratesAtRate(t *testing.T) {
	d, step := newManualSimulator(t, DefaultSimulatorConfig())

	qty, err := d.ArmQty()
	require.NoError(t, err)
	assert.Zero(t, qty)

	step(10 * time.Millisecond)
	qty, err = d.ArmQty()
	require.NoError(t, err)
	assert.Equal(t, 10, qty)

	arms, err := d.ReadMemory(RegionArm, AllPending)
	require.NoError(t, err)
	require.Len(t, arms, 10)

	tags, err := d.ReadMemory(RegionTag0, int(sum(arms)))
	require.NoError(t, err)
	require.Len(t, tags, int(sum(arms)))

	// tags of one arm event are sorted and inside the window
	offset := int64(0)
	for _, n := range arms {
		group := tags[offset : offset+n]
		for i := range group {
			assert.GreaterOrEqual(t, group[i], int64(0))
			assert.Less(t, group[i], DefaultSimulatorConfig().TagWindow)
			if i > 0 {
				assert.LessOrEqual(t, group[i-1], group[i])
			}
		}
		offset += n
	}

	qty, err = d.TagQty()
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestSimulatorSaturates(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.ArmMemSize = 8
	d, step := newManualSimulator(t, cfg)

	step(time.Second)
	qty, err := d.ArmQty()
	require.NoError(t, err)
	assert.Equal(t, cfg.ArmMemSize-1, qty)

	tagQty, err := d.TagQty()
	require.NoError(t, err)
	assert.Less(t, tagQty, cfg.TagMemSize)
}

func TestSimulatorTagRequests(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.TagsPerArm = 5
	d, step := newManualSimulator(t, cfg)
	step(5 * time.Millisecond)

	pending, err := d.TagQty()
	require.NoError(t, err)

	_, err = d.ReadMemory(RegionTag0, pending+1)
	assert.Error(t, err)

	tags, err := d.ReadMemory(RegionTag0, AllPending)
	require.NoError(t, err)
	assert.Len(t, tags, pending)

	_, err = d.ReadMemory(Region("TAG9"), AllPending)
	assert.Error(t, err)
}

func TestSimulatorFailNext(t *testing.T) {
	d, _ := newManualSimulator(t, DefaultSimulatorConfig())
	injected := errors.New("unreachable")
	d.FailNext(injected)

	_, err := d.ArmQty()
	assert.ErrorIs(t, err, injected)
	_, err = d.ArmQty()
	assert.NoError(t, err)
}

func TestSimulatorValidation(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.ArmRate = -1
	_, err := NewSimulatedDevice(cfg)
	assert.Error(t, err)

	cfg = DefaultSimulatorConfig()
	cfg.TagMemSize = 1
	_, err = NewSimulatedDevice(cfg)
	assert.Error(t, err)
}

func TestSimulatorThroughStream(t *testing.T) {
	d, err := NewSimulatedDevice(DefaultSimulatorConfig())
	require.NoError(t, err)
	w := newTestWorker(t, d)

	s, err := NewTimeTagStream(w, d, FixedClock{FabricMHz: 100}, testStreamConfig())
	require.NoError(t, err)
	assert.Equal(t, 5293, d.Threshold)

	err = s.Run(func(s *TimeTagStream) error {
		arms, tags, err := s.Read(50, 10, 5*time.Second)
		if err != nil {
			return err
		}
		assert.Len(t, arms, 50)
		for j, group := range tags {
			assert.Len(t, group, int(arms[j]))
		}
		return nil
	})
	require.NoError(t, err)
}
