// Package runner implements the per-probe scheduler: jittered start,
// interval-paced ticks, retry/timeout policy, and the validator pipeline,
// wrapping each outcome into a probe.Result recorded against the cluster
// store.
package runner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/mcastellin/uptime-gossip/internal/target"
	"github.com/mcastellin/uptime-gossip/internal/validator"
)

// sleepSlice bounds every cooperative sleep so cancellation is observed
// within one second, per the scheduling model.
const sleepSlice = time.Second

// Store is the subset of clusterstore.Store a runner needs.
type Store interface {
	UpdateProbeDescriptor(name string, tags map[string]string, now time.Time) error
	RecordResult(name string, now time.Time, result probe.Result) error
}

// Runner schedules and executes one probe descriptor on its own cadence
// until Cancel is called.
type Runner struct {
	store  Store
	log    *zap.Logger
	nowFn  func() time.Time

	mu   sync.Mutex
	desc probe.Descriptor

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Runner for desc, bound to store and logging through log.
// Call Start to begin its scheduling loop.
func New(desc probe.Descriptor, store Store, log *zap.Logger) *Runner {
	return &Runner{desc: desc, store: store, log: log, nowFn: time.Now, done: make(chan struct{})}
}

// Update replaces the in-flight descriptor; it takes effect from the next
// scheduled tick, without restarting the runner.
func (r *Runner) Update(desc probe.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.desc = desc
}

func (r *Runner) descriptor() probe.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desc
}

// Start launches the scheduling loop in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.loop(ctx)
}

// Cancel stops the runner; it returns once the loop has exited.
func (r *Runner) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	desc := r.descriptor()
	if err := r.store.UpdateProbeDescriptor(desc.Name, desc.Tags, r.nowFn()); err != nil {
		r.log.Error("updating probe descriptor", zap.String("probe", desc.Name), zap.Error(err))
	}

	if !cooperativeSleep(ctx, jitter(desc.Policy.Interval)) {
		return
	}

	next := r.nowFn()
	for {
		r.tick(ctx)

		desc = r.descriptor()
		next = next.Add(desc.Policy.Interval)
		wait := next.Sub(r.nowFn())
		if !cooperativeSleep(ctx, wait) {
			return
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	desc := r.descriptor()
	start := r.nowFn()

	tgt, err := target.FromSpec(desc.Target)
	if err != nil {
		r.log.Error("building target", zap.String("probe", desc.Name), zap.Error(err))
		return
	}

	validators := make(map[string]validator.Validator, len(desc.Validators))
	for field, kind := range desc.Validators {
		v, err := validator.FromKind(kind)
		if err != nil {
			r.log.Error("building validator", zap.String("probe", desc.Name), zap.String("field", field), zap.Error(err))
			continue
		}
		validators[field] = v
	}

	result := runSession(ctx, desc.Policy, tgt, validators, start)

	if err := r.store.RecordResult(desc.Name, r.nowFn(), result); err != nil {
		r.log.Error("recording result", zap.String("probe", desc.Name), zap.Error(err))
	}
}

// runSession executes the attempt/retry loop for one scheduled tick,
// honoring ctx cancellation and the per-attempt timeout.
func runSession(ctx context.Context, policy probe.Policy, tgt target.Target, validators map[string]validator.Validator, start time.Time) probe.Result {
	var (
		attempts    int
		pass        bool
		message     string
		validations map[string]probe.ValidationResult
	)

	for n := 1; n <= policy.Retries+1; n++ {
		attempts = n
		if ctx.Err() != nil {
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		sample, err := tgt.Run(attemptCtx)
		cancel()

		if err != nil {
			pass = false
			message = err.Error()
			validations = nil
			continue
		}

		validations = make(map[string]probe.ValidationResult, len(validators))
		pass = true
		for field, v := range validators {
			result := v.Validate(field, sample[field])
			validations[field] = result
			if !result.Pass {
				pass = false
			}
		}
		if pass {
			message = ""
			break
		}
		message = "one or more validators failed"
	}

	return probe.Result{
		StartTime:   start,
		Duration:    time.Since(start),
		Attempts:    attempts,
		Pass:        pass,
		Message:     message,
		Validations: validations,
	}
}

// jitter returns a random duration uniform in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// cooperativeSleep sleeps for d in slices no larger than sleepSlice, so a
// ctx cancellation is observed within one second. Returns false if ctx was
// cancelled before the sleep completed.
func cooperativeSleep(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		slice := d
		if slice > sleepSlice {
			slice = sleepSlice
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		d -= slice
	}
	return ctx.Err() == nil
}
