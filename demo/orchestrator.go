package demo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pyama86/bellhop/domain/entity"
)

type Outcome string

const (
	// OutcomeWin: enough incidents were generated and none is left
	// outstanding.
	OutcomeWin Outcome = "win"
	// OutcomeTimeout: the hard wall-clock ceiling was hit first.
	OutcomeTimeout Outcome = "timeout"
)

type Config struct {
	// MaxOutstanding caps incidents in flight; adds beyond it are refused.
	MaxOutstanding int
	// MinIncidents must have been created before the run can be won.
	MinIncidents int
	Timeout      time.Duration
	Tick         time.Duration
	Seed         int64
}

// Hooks are the injected callbacks through which the orchestrator mutates
// the caller's world. All of them run on the scheduler goroutine, one at
// a time.
type Hooks struct {
	OnAdd     func(*entity.Incident)
	OnAck     func(*entity.Incident)
	OnResolve func(*entity.Incident)
	PlayAlert func(entity.Severity)
	OnFinish  func(Outcome)
}

var demoAlarms = []string{
	"API-Latency-Critical",
	"DB-Connections-Critical",
	"Ingest-Error-Rate",
	"Queue-Depth-Warning",
	"Cert-Expiry-Warn",
	"Cache-Hit-Rate-Info",
	"Network-Saturation-Info",
}

// Orchestrator is a scripted driver for the incident state machine. It
// exercises the same entity transitions as the real pipeline through
// timer-scheduled synthetic events, on a single cooperative scheduler.
type Orchestrator struct {
	cfg   Config
	hooks Hooks

	mu        sync.Mutex
	running   bool
	finished  bool
	sched     *Scheduler
	rng       *rand.Rand
	startedAt time.Time
	incidents []*entity.Incident
	created   int
}

func NewOrchestrator(cfg Config, hooks Hooks) *Orchestrator {
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 5
	}
	if cfg.MinIncidents <= 0 {
		cfg.MinIncidents = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Orchestrator{
		cfg:   cfg,
		hooks: hooks,
	}
}

// Start begins the sequence. Calling Start while a run is in progress is
// a no-op; it reports whether a new run was started.
func (o *Orchestrator) Start() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	o.finished = false
	o.sched = NewScheduler()
	o.rng = rand.New(rand.NewSource(o.cfg.Seed))
	o.startedAt = time.Now()
	o.incidents = nil
	o.created = 0

	// A couple of staggered openers, then the repeating action.
	o.sched.After(o.cfg.Tick/2, o.addIncident)
	o.sched.After(o.cfg.Tick, o.addIncident)
	o.sched.Every(o.cfg.Tick, o.step)
	o.sched.After(o.cfg.Timeout, func() { o.finish(OutcomeTimeout) })

	go o.sched.Run()
	return true
}

// Stop cancels every pending action without signaling an outcome. No
// callback fires after Stop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	sched := o.sched
	o.mu.Unlock()
	sched.Stop()
}

// Incidents returns a snapshot of the incident list.
func (o *Orchestrator) Incidents() []entity.Incident {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]entity.Incident, 0, len(o.incidents))
	for _, incident := range o.incidents {
		out = append(out, *incident)
	}
	return out
}

// step is the repeating action: pick a weighted random mutation, leaning
// toward new incidents and acks early in the run and toward resolution
// near the end, then check the win condition.
func (o *Orchestrator) step() {
	late := time.Since(o.startedAt) > o.cfg.Timeout/2

	roll := o.rng.Float64()
	switch {
	case !late && roll < 0.5, late && roll < 0.2:
		o.addIncident()
	case !late && roll < 0.8, late && roll < 0.4:
		o.ackRandom()
	default:
		o.resolveRandom()
	}

	o.checkWin()
}

func (o *Orchestrator) addIncident() {
	o.mu.Lock()
	if o.outstandingLocked() >= o.cfg.MaxOutstanding {
		o.mu.Unlock()
		return
	}
	name := demoAlarms[o.rng.Intn(len(demoAlarms))]
	ev := &entity.AlarmEvent{
		AlarmName:       name,
		AlarmARN:        "arn:aws:cloudwatch:demo:000000000000:alarm/" + name,
		NewStateValue:   entity.AlarmStateAlarm,
		NewStateReason:  "Synthetic demo alarm",
		StateChangeTime: uuid.NewString(),
		AWSAccountID:    "000000000000",
	}
	incident := entity.NewIncident("demo", ev, "demo-responder", time.Now())
	o.incidents = append(o.incidents, incident)
	o.created++
	o.mu.Unlock()

	if o.hooks.OnAdd != nil {
		o.hooks.OnAdd(incident)
	}
	if o.hooks.PlayAlert != nil {
		o.hooks.PlayAlert(incident.Severity)
	}
}

func (o *Orchestrator) ackRandom() {
	o.mu.Lock()
	incident := o.pickLocked(entity.IncidentStateTriggered)
	if incident == nil {
		o.mu.Unlock()
		return
	}
	if err := incident.Acknowledge("demo", time.Now()); err != nil {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if o.hooks.OnAck != nil {
		o.hooks.OnAck(incident)
	}
}

func (o *Orchestrator) resolveRandom() {
	o.mu.Lock()
	incident := o.pickLocked(entity.IncidentStateTriggered, entity.IncidentStateAcked)
	if incident == nil {
		o.mu.Unlock()
		return
	}
	if err := incident.Resolve("demo", time.Now()); err != nil {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if o.hooks.OnResolve != nil {
		o.hooks.OnResolve(incident)
	}
}

func (o *Orchestrator) pickLocked(states ...entity.IncidentState) *entity.Incident {
	var candidates []*entity.Incident
	for _, incident := range o.incidents {
		for _, state := range states {
			if incident.State == state {
				candidates = append(candidates, incident)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[o.rng.Intn(len(candidates))]
}

func (o *Orchestrator) outstandingLocked() int {
	n := 0
	for _, incident := range o.incidents {
		if incident.Outstanding() {
			n++
		}
	}
	return n
}

func (o *Orchestrator) checkWin() {
	o.mu.Lock()
	won := o.created >= o.cfg.MinIncidents && o.outstandingLocked() == 0
	o.mu.Unlock()
	if won {
		o.finish(OutcomeWin)
	}
}

// finish cancels all pending actions and signals completion exactly once.
func (o *Orchestrator) finish(outcome Outcome) {
	o.mu.Lock()
	if o.finished || !o.running {
		o.mu.Unlock()
		return
	}
	o.finished = true
	o.running = false
	sched := o.sched
	o.mu.Unlock()

	sched.Stop()
	if o.hooks.OnFinish != nil {
		o.hooks.OnFinish(outcome)
	}
}
