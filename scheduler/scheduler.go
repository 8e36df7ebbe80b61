// Package scheduler
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/db"
	"github.com/futarchyhub/coordinator-backend/metrics"
	"github.com/futarchyhub/coordinator-backend/types"
)

// Runner holds the collaborator calls a tick delegates to. The handler
// implements it; the scheduler only decides when and whether to call.
type Runner interface {
	CrankTWAP(ctx context.Context, p *types.Proposal) error
	RecordPrice(ctx context.Context, p *types.Proposal) error
	RecordSpotPrice(ctx context.Context, p *types.Proposal) error
	FinalizeProposal(ctx context.Context, proposalID uint64) error
}

type Config struct {
	DB      db.Client
	Logger  *zap.Logger
	Metrics *metrics.Provider

	CrankInterval time.Duration
	PriceInterval time.Duration
	SpotInterval  time.Duration
}

type task struct {
	info types.TaskInfo

	stop     chan struct{}
	stopOnce sync.Once
	timer    *time.Timer

	// inFlight guards against a tick overlapping its predecessor when a
	// collaborator call outruns the interval.
	inFlight int32
}

func (t *task) cancel() {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.timer != nil {
			t.timer.Stop()
		}
	})
}

// Scheduler is the process-wide registry of proposal tasks. One Scheduler is
// built in the composition root and shared by reference; there are no package
// globals.
type Scheduler struct {
	cfg    Config
	db     db.Client
	logger *zap.Logger

	runner Runner

	mu    sync.Mutex
	tasks map[string]*task
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		db:     cfg.DB,
		logger: cfg.Logger,
		tasks:  make(map[string]*task),
	}
}

// SetRunner attaches the tick delegate. Must be called before any task is
// scheduled.
func (s *Scheduler) SetRunner(r Runner) {
	s.runner = r
}

// register adds a task under its deterministic id. Registering an existing id
// is a no-op: proposal creation cascades into several registration calls, and
// restart logic re-runs registration against already-scheduled work.
func (s *Scheduler) register(info types.TaskInfo) (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[info.ID]; ok {
		return nil, false
	}
	t := &task{info: info, stop: make(chan struct{})}
	s.tasks[info.ID] = t
	s.updateGauge()
	return t, true
}

// ScheduleTWAPCranking registers the periodic crank task. Cranking always
// implies price recording, so that task is registered alongside.
func (s *Scheduler) ScheduleTWAPCranking(proposalID uint64) {
	info := types.TaskInfo{
		ID:         types.TaskID(types.TaskTWAPCrank, proposalID),
		Type:       types.TaskTWAPCrank,
		ProposalID: proposalID,
		Periodic:   true,
		Interval:   s.cfg.CrankInterval,
	}
	if t, ok := s.register(info); ok {
		go s.runPeriodic(t, s.runner.CrankTWAP)
	}
	s.SchedulePriceRecording(proposalID)
}

func (s *Scheduler) SchedulePriceRecording(proposalID uint64) {
	info := types.TaskInfo{
		ID:         types.TaskID(types.TaskPriceRecord, proposalID),
		Type:       types.TaskPriceRecord,
		ProposalID: proposalID,
		Periodic:   true,
		Interval:   s.cfg.PriceInterval,
	}
	if t, ok := s.register(info); ok {
		go s.runPeriodic(t, s.runner.RecordPrice)
	}
}

func (s *Scheduler) ScheduleSpotPriceRecording(proposalID uint64) {
	info := types.TaskInfo{
		ID:         types.TaskID(types.TaskSpotPriceRecord, proposalID),
		Type:       types.TaskSpotPriceRecord,
		ProposalID: proposalID,
		Periodic:   true,
		Interval:   s.cfg.SpotInterval,
	}
	if t, ok := s.register(info); ok {
		go s.runPeriodic(t, s.runner.RecordSpotPrice)
	}
}

// ScheduleProposalFinalization arms the one-shot finalize task at runAt (unix
// seconds). A target already in the past fires immediately instead of arming
// a negative-delay timer.
func (s *Scheduler) ScheduleProposalFinalization(proposalID uint64, runAt int64) {
	info := types.TaskInfo{
		ID:         types.TaskID(types.TaskProposalFinalize, proposalID),
		Type:       types.TaskProposalFinalize,
		ProposalID: proposalID,
		RunAt:      runAt,
	}
	t, ok := s.register(info)
	if !ok {
		return
	}
	delay := time.Duration(runAt-time.Now().Unix()) * time.Second
	if delay <= 0 {
		go s.fireFinalize(t)
		return
	}
	s.mu.Lock()
	if _, live := s.tasks[info.ID]; live {
		t.timer = time.AfterFunc(delay, func() { s.fireFinalize(t) })
	}
	s.mu.Unlock()
}

func (s *Scheduler) runPeriodic(t *task, tick func(ctx context.Context, p *types.Proposal) error) {
	ticker := time.NewTicker(t.info.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			s.periodicTick(t, tick)
		}
	}
}

// periodicTick runs one guarded tick. Every failure path logs and returns; a
// background timer has no caller to propagate an error to.
func (s *Scheduler) periodicTick(t *task, tick func(ctx context.Context, p *types.Proposal) error) {
	lgr := s.logger.With(zap.String("task", t.info.ID))
	if !atomic.CompareAndSwapInt32(&t.inFlight, 0, 1) {
		lgr.Warn("previous tick still in flight, skipping")
		return
	}
	defer atomic.StoreInt32(&t.inFlight, 0)

	ctx := context.Background()
	proposal, err := s.db.ProposalByID(ctx, t.info.ProposalID)
	if err != nil {
		lgr.Warn("cannot load proposal, cancelling its tasks", zap.Error(err))
		s.CancelProposalTasks(t.info.ProposalID)
		return
	}
	if time.Now().Unix() >= proposal.FinalizedAt {
		// A timer must not outlive its subject. The one-shot finalize task
		// stays armed.
		s.cancelPeriodicTasks(t.info.ProposalID)
		return
	}

	start := time.Now()
	err = tick(ctx, proposal)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordTick(string(t.info.Type), time.Since(start), err)
	}
	if err != nil {
		lgr.Error("tick failed", zap.Error(err))
	}
}

// fireFinalize runs the one-shot finalize and then tears down every task for
// the proposal, whether or not the finalize call succeeded. A failed attempt
// must not leave the crank loop running forever.
func (s *Scheduler) fireFinalize(t *task) {
	lgr := s.logger.With(zap.String("task", t.info.ID))
	start := time.Now()
	err := s.runner.FinalizeProposal(context.Background(), t.info.ProposalID)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordTick(string(t.info.Type), time.Since(start), err)
	}
	if err != nil {
		lgr.Error("finalize task failed", zap.Error(err))
	}
	s.CancelProposalTasks(t.info.ProposalID)
}

// CancelTask removes one task by id and stops its timer. Unknown ids are
// ignored.
func (s *Scheduler) CancelTask(taskID string) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if ok {
		delete(s.tasks, taskID)
		s.updateGauge()
	}
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

func (s *Scheduler) cancelPeriodicTasks(proposalID uint64) {
	s.CancelTask(types.TaskID(types.TaskTWAPCrank, proposalID))
	s.CancelTask(types.TaskID(types.TaskPriceRecord, proposalID))
	s.CancelTask(types.TaskID(types.TaskSpotPriceRecord, proposalID))
}

// CancelProposalTasks removes every task belonging to one proposal.
func (s *Scheduler) CancelProposalTasks(proposalID uint64) {
	s.cancelPeriodicTasks(proposalID)
	s.CancelTask(types.TaskID(types.TaskProposalFinalize, proposalID))
}

// StopAll cancels every registered task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*task)
	s.updateGauge()
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// ActiveTasks lists the registry, sorted by task id.
func (s *Scheduler) ActiveTasks() []types.TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]types.TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, t.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// updateGauge is called with s.mu held.
func (s *Scheduler) updateGauge() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetActiveTasks(len(s.tasks))
	}
}
