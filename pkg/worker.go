package timetagger

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/constraints"
)

// PollInterval is how long the polling goroutine sleeps when a poll
// iteration did not drain the device.
const PollInterval = 100 * time.Microsecond

// Batch is the result of one drain: the tag count of every arm event and the
// raw tags of all of them, in order. sum(Arms) == len(Tags).
type Batch struct {
	Arms []int64
	Tags []int64
}

func (b Batch) Empty() bool {
	return len(b.Arms) == 0 && len(b.Tags) == 0
}

type WorkerStats struct {
	Readouts uint64
	Drains   uint64
	Batches  uint64
	Arms     uint64
	Tags     uint64
	Errors   uint64
}

// readout is one acquisition session. Each readout owns its queues so a
// consumer left over from a previous readout never sees new data.
type readout struct {
	cfg      ReadoutConfig
	data     *queue[Batch]
	errs     *queue[*RelayedError]
	done     chan struct{}
	setupErr *RelayedError
}

func newReadout(cfg ReadoutConfig) *readout {
	return &readout{
		cfg:  cfg,
		data: newQueue[Batch](),
		errs: newQueue[*RelayedError](),
		done: make(chan struct{}),
	}
}

// Worker streams time tags from a Device using a persistent polling
// goroutine.
//
// The goroutine lives from Start to Stop and runs any number of readouts.
// All lifecycle calls block until the requested transition has been
// observed.
type Worker struct {
	dev Device
	lc  *lifecycle

	// copied from the package configuration by Start
	verbosity int

	// ctrl serializes lifecycle calls
	ctrl sync.Mutex
	wg   sync.WaitGroup

	mu      sync.Mutex
	current *readout

	readouts atomic.Uint64
	drains   atomic.Uint64
	batches  atomic.Uint64
	arms     atomic.Uint64
	tags     atomic.Uint64
	failures atomic.Uint64
}

// NewWorker creates a worker for dev and starts its polling goroutine.
func NewWorker(dev Device) *Worker {
	w := &Worker{
		dev: dev,
		lc:  newLifecycle(),
	}
	w.Start()
	return w
}

// Start starts the polling goroutine. A running worker is stopped first.
// The verbosity of the package configuration is read here, later changes
// take effect on the next Start.
func (w *Worker) Start() {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()

	if ws, _ := w.lc.states(); ws != WorkerStopped {
		w.stop()
	}

	w.verbosity = configuration.Verbosity
	w.lc.setWorker(WorkerStarting)
	w.wg.Add(1)
	go w.loop()

	w.lc.waitUntil(func(ws WorkerState, _ ReadoutState) bool {
		return ws == WorkerRunning
	})
	if w.verbosity > 0 {
		logger.Info("Stream worker started", "worker")
	}
}

// Stop stops the current readout, if any, and the polling goroutine.
func (w *Worker) Stop() {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()
	w.stop()
}

func (w *Worker) stop() {
	if !w.lc.transitionWorker(WorkerStopping, WorkerStarting, WorkerRunning) {
		return
	}
	w.stopReadout()
	w.lc.waitUntil(func(ws WorkerState, _ ReadoutState) bool {
		return ws == WorkerStopped
	})
	w.wg.Wait()
	if w.verbosity > 0 {
		logger.Info("Stream worker stopped", "worker")
	}
}

// StartReadout stops any previous readout and starts a new one with cfg.
// It returns once the readout is active. If the readout fails while
// starting, the failure is returned.
func (w *Worker) StartReadout(cfg ReadoutConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	w.ctrl.Lock()
	defer w.ctrl.Unlock()

	if ws, _ := w.lc.states(); ws != WorkerRunning {
		return ErrWorkerNotRunning
	}
	w.stopReadout()

	r := newReadout(cfg)
	w.mu.Lock()
	w.current = r
	w.mu.Unlock()

	w.lc.setReadout(ReadoutStarting)
	_, rs := w.lc.waitUntil(func(_ WorkerState, rs ReadoutState) bool {
		return rs != ReadoutStarting
	})
	if rs == ReadoutIdle && r.setupErr != nil {
		return r.setupErr
	}
	if w.verbosity > 0 {
		message := fmt.Sprintf("Readout started on channel %d (interp %d, stride %d, stride timeout %v)",
			cfg.Channel, cfg.Interpolation, cfg.Stride, cfg.StrideTimeout)
		logger.Info(message, "worker")
	}
	return nil
}

// StopReadout stops the current readout and waits until it has finished.
func (w *Worker) StopReadout() {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()
	w.stopReadout()
}

func (w *Worker) stopReadout() {
	w.lc.transitionReadout(ReadoutStopping, ReadoutStarting, ReadoutActive)
	w.lc.waitUntil(func(_ WorkerState, rs ReadoutState) bool {
		return rs == ReadoutIdle
	})
}

func (w *Worker) State() WorkerState {
	ws, _ := w.lc.states()
	return ws
}

func (w *Worker) ReadoutState() ReadoutState {
	_, rs := w.lc.states()
	return rs
}

func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Readouts: w.readouts.Load(),
		Drains:   w.drains.Load(),
		Batches:  w.batches.Load(),
		Arms:     w.arms.Load(),
		Tags:     w.tags.Load(),
		Errors:   w.failures.Load(),
	}
}

// Read returns every batch queued by the current readout and at most one
// pending error.
//
// With block set, Read waits until a batch is available, the timeout expires
// (timeout <= 0 means no limit) or the readout ends. When an error is
// returned, every batch queued before the failure is returned with it.
func (w *Worker) Read(block bool, timeout time.Duration) ([]Batch, *RelayedError) {
	r := w.currentReadout()
	if r == nil {
		return nil, nil
	}

	var batches []Batch
	if block {
		batches = r.data.wait(timeout, r.done)
	} else {
		batches = r.data.popAll()
	}

	rel, ok := r.errs.tryPop()
	if !ok {
		return batches, nil
	}
	// The failure is pushed before its sentinel batch, so whatever was
	// queued before it is visible now.
	batches = append(batches, r.data.popAll()...)
	return batches, rel
}

func (w *Worker) currentReadout() *readout {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Worker) loop() {
	defer w.wg.Done()
	w.lc.transitionWorker(WorkerRunning, WorkerStarting)

	for {
		ws, rs := w.lc.waitUntil(func(ws WorkerState, rs ReadoutState) bool {
			return ws != WorkerRunning || rs == ReadoutStarting || rs == ReadoutStopping
		})
		if ws != WorkerRunning {
			break
		}
		r := w.currentReadout()
		if rs == ReadoutStopping || r == nil {
			// cancelled before it was picked up
			w.lc.setReadout(ReadoutIdle)
			continue
		}
		w.runReadout(r)
	}

	// A readout requested while shutting down never runs
	w.lc.transitionReadout(ReadoutIdle, ReadoutStarting, ReadoutStopping)
	w.lc.setWorker(WorkerStopped)
}

func (w *Worker) runReadout(r *readout) {
	defer close(r.done)
	w.readouts.Add(1)

	if stack, err := protect("readout setup", w.discardPending); err != nil {
		r.setupErr = w.relay(r, err, stack)
		w.lc.setReadout(ReadoutIdle)
		return
	}
	if !w.lc.transitionReadout(ReadoutActive, ReadoutStarting) {
		w.lc.setReadout(ReadoutIdle)
		return
	}

	lastDrain := time.Now()
	for w.ReadoutState() == ReadoutActive {
		drained := false
		stack, err := protect("drain", func() error {
			var err error
			drained, err = w.poll(r, time.Now(), &lastDrain)
			return err
		})
		if err != nil {
			w.relay(r, err, stack)
			break
		}
		if !drained {
			time.Sleep(PollInterval)
		}
	}

	w.lc.setReadout(ReadoutIdle)
	if w.verbosity > 0 {
		message := fmt.Sprintf("Readout on channel %d finished", r.cfg.Channel)
		logger.Info(message, "worker")
	}
}

// discardPending empties both memories so a new readout starts clean.
func (w *Worker) discardPending() error {
	if _, err := w.dev.ReadMemory(RegionArm, AllPending); err != nil {
		return &TransportError{Op: "ARM discard", Err: err}
	}
	if _, err := w.dev.ReadMemory(RegionTag0, AllPending); err != nil {
		return &TransportError{Op: "TAG0 discard", Err: err}
	}
	return nil
}

// poll runs one iteration of the drain policy. It reports whether the
// device was drained.
func (w *Worker) poll(r *readout, now time.Time, lastDrain *time.Time) (bool, error) {
	armQty, err := w.dev.ArmQty()
	if err != nil {
		return false, &TransportError{Op: "ARM depth", Err: err}
	}
	if armQty <= r.cfg.Stride && now.Sub(*lastDrain) <= r.cfg.StrideTimeout {
		return false, nil
	}
	*lastDrain = now

	if size := w.dev.ArmMemSize(); armQty == size-1 {
		return true, &OverflowError{Region: RegionArm, Depth: armQty, Capacity: size}
	}

	arms, err := w.dev.ReadMemory(RegionArm, AllPending)
	if err != nil {
		return true, &TransportError{Op: "ARM read", Err: err}
	}
	w.drains.Add(1)
	if len(arms) == 0 {
		return true, nil
	}

	tagQty, err := w.dev.TagQty()
	if err != nil {
		return true, &TransportError{Op: "TAG0 depth", Err: err}
	}
	if size := w.dev.TagMemSize(); tagQty == size-1 {
		return true, &OverflowError{Region: RegionTag0, Depth: tagQty, Capacity: size}
	}

	for _, n := range arms {
		if n < 0 {
			return true, &TransportError{Op: "ARM read", Err: fmt.Errorf("negative tag count %d", n)}
		}
	}
	nTags := sum(arms)
	tags, err := w.dev.ReadMemory(RegionTag0, int(nTags))
	if err != nil {
		return true, &TransportError{Op: "TAG0 read", Err: err}
	}
	if int64(len(tags)) != nTags {
		return true, &TransportError{Op: "TAG0 read", Err: fmt.Errorf("got %d tags, expected %d", len(tags), nTags)}
	}

	r.data.push(Batch{Arms: arms, Tags: tags})
	w.batches.Add(1)
	w.arms.Add(uint64(len(arms)))
	w.tags.Add(uint64(nTags))
	if w.verbosity > 2 {
		message := fmt.Sprintf("Drained %d arms, %d tags", len(arms), nTags)
		logger.Info(message, "worker")
	}
	return true, nil
}

// relay hands a readout failure to the reader: the error first, then an
// empty batch so a blocked reader wakes up.
func (w *Worker) relay(r *readout, err error, stack []byte) *RelayedError {
	diagnostic := fmt.Sprintf("%v\n\n%s", err, stack)
	logger.Error(fmt.Sprintf("readout on channel %d failed: %v", r.cfg.Channel, err))
	if w.verbosity > 1 {
		logger.Error(diagnostic)
	}
	rel := &RelayedError{Err: err, Diagnostic: diagnostic}
	r.errs.push(rel)
	r.data.push(Batch{})
	w.failures.Add(1)
	return rel
}

// protect runs fn, turning panics and foreign errors into TransportErrors.
// The returned stack belongs to the failure point when fn panicked.
func protect(op string, fn func() error) (stack []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &TransportError{Op: op, Err: fmt.Errorf("panic: %v", p)}
			stack = debug.Stack()
		}
	}()

	err = fn()
	if err == nil {
		return nil, nil
	}
	var overflow *OverflowError
	var transport *TransportError
	if !errors.As(err, &overflow) && !errors.As(err, &transport) {
		err = &TransportError{Op: op, Err: err}
	}
	return debug.Stack(), err
}

func sum[T constraints.Integer](values []T) T {
	var total T
	for _, v := range values {
		total += v
	}
	return total
}
