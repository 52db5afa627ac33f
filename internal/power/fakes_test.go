package power_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/resource"
)

type lockCall struct {
	op       string
	handle   resource.Handle
	duration time.Duration
	list     resource.List
}

type fakeLocker struct {
	mu         sync.Mutex
	next       resource.Handle
	held       map[resource.Handle]resource.List
	calls      []lockCall
	acquireErr error
	releaseErr error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[resource.Handle]resource.List)}
}

func (f *fakeLocker) Acquire(_ context.Context, h resource.Handle, d time.Duration, list resource.List) (resource.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, lockCall{op: "acquire", handle: h, duration: d, list: list.Clone()})
	if f.acquireErr != nil {
		return resource.InvalidHandle, f.acquireErr
	}

	if _, ok := f.held[h]; !ok || !h.Valid() {
		f.next++
		h = f.next
	}
	if d == 0 {
		f.held[h] = list.Clone()
	}

	return h, nil
}

func (f *fakeLocker) Release(_ context.Context, h resource.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, lockCall{op: "release", handle: h})
	if f.releaseErr != nil {
		return f.releaseErr
	}
	delete(f.held, h)

	return nil
}

func (f *fakeLocker) ops() []lockCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]lockCall, len(f.calls))
	copy(out, f.calls)

	return out
}

func (f *fakeLocker) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeLocker) heldCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.held)
}

type actionCall struct {
	op   string
	id   resource.ActionID
	list resource.List
}

type fakeActor struct {
	calls      []actionCall
	performErr error
}

func (f *fakeActor) PerformHintAction(_ context.Context, id resource.ActionID, list resource.List) error {
	f.calls = append(f.calls, actionCall{op: "perform", id: id, list: list})
	return f.performErr
}

func (f *fakeActor) UndoHintAction(_ context.Context, id resource.ActionID) error {
	f.calls = append(f.calls, actionCall{op: "undo", id: id})
	return nil
}

type fakeGovernor struct {
	name string
	err  error
}

func (f *fakeGovernor) ScalingGovernor() (string, error) {
	return f.name, f.err
}

type fakeNodes struct {
	values    map[string]string
	readFail  map[string]bool
	writeFail map[string]bool
	writes    []string
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{
		values:    make(map[string]string),
		readFail:  make(map[string]bool),
		writeFail: make(map[string]bool),
	}
}

func (f *fakeNodes) ReadNode(path string) (string, error) {
	if f.readFail[path] {
		return "", fmt.Errorf("read %s: permission denied", path)
	}
	v, ok := f.values[path]
	if !ok {
		return "", fmt.Errorf("read %s: no such file", path)
	}

	return v + "\n", nil
}

func (f *fakeNodes) WriteNode(path, value string) error {
	f.writes = append(f.writes, path+"="+value)
	if f.writeFail[path] {
		return fmt.Errorf("write %s: permission denied", path)
	}
	f.values[path] = value

	return nil
}

type fakeLaunch struct {
	handle  resource.Handle
	active  bool
	cleared int
}

func (f *fakeLaunch) LaunchHandle() (resource.Handle, bool) { return f.handle, f.active }

func (f *fakeLaunch) ClearLaunch() {
	f.active = false
	f.handle = resource.InvalidHandle
	f.cleared++
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []power.Outcome
	modes    [][2]bool
}

func (o *recordingObserver) HintHandled(_ power.Hint, outcome power.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ModesChanged(sustained, vr bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes = append(o.modes, [2]bool{sustained, vr})
}

func (o *recordingObserver) last() power.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.outcomes) == 0 {
		return ""
	}
	return o.outcomes[len(o.outcomes)-1]
}

type harness struct {
	arbiter  *power.Arbiter
	locker   *fakeLocker
	actor    *fakeActor
	governor *fakeGovernor
	nodes    *fakeNodes
	launch   *fakeLaunch
	clock    *fakeClock
	observer *recordingObserver
}

func newHarness(governor string, opts ...power.Option) *harness {
	h := &harness{
		locker:   newFakeLocker(),
		actor:    &fakeActor{},
		governor: &fakeGovernor{name: governor},
		nodes:    newFakeNodes(),
		launch:   &fakeLaunch{},
		clock:    &fakeClock{now: time.Unix(1000, 0)},
		observer: &recordingObserver{},
	}

	base := []power.Option{
		power.WithLaunchMode(h.launch),
		power.WithClock(h.clock),
		power.WithObserver(h.observer),
		power.WithLogger(nopLogger()),
	}
	h.arbiter = power.New(h.locker, h.actor, h.governor, h.nodes, append(base, opts...)...)

	return h
}
