// Package lifecycle
package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/external"
	"github.com/futarchyhub/coordinator-backend/metrics"
	"github.com/futarchyhub/coordinator-backend/monitor"
	"github.com/futarchyhub/coordinator-backend/types"
)

// ProposalSource is the slice of the monitor the service consumes.
type ProposalSource interface {
	Bus() *monitor.Bus
	TrackedProposals() []*types.MonitoredProposal
}

type Config struct {
	Source     ProposalSource
	Settlement external.SettlementClient
	Metrics    *metrics.Provider

	Logger *zap.Logger
}

// Service arms one settlement timer per tracked proposal at its end time and
// drives the finalize -> redeem-liquidity -> deposit-back sequence when it
// fires. A removal emission before the timer fires cancels it: someone else
// already finalized, and a second settlement attempt must not race the first.
type Service struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(cfg Config) *Service {
	return &Service{
		cfg:    cfg,
		logger: cfg.Logger,
		timers: make(map[string]*time.Timer),
	}
}

// Run consumes monitor emissions until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	id, events := s.cfg.Source.Bus().Subscribe(64)
	defer s.cfg.Source.Bus().Unsubscribe(id)

	// Proposals the monitor already tracks (startup backfill) get timers too.
	for _, p := range s.cfg.Source.TrackedProposals() {
		s.arm(p)
	}

	s.logger.Info("Start lifecycle service...")
	for {
		select {
		case <-ctx.Done():
			s.disarmAll()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case monitor.EventProposalAdded:
				s.arm(ev.Proposal)
			case monitor.EventProposalRemoved:
				s.disarm(ev.Proposal.Address)
			}
		}
	}
}

func (s *Service) arm(p *types.MonitoredProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[p.Address]; ok {
		return
	}
	delay := time.Duration(p.EndTime-time.Now().Unix()) * time.Second
	if delay < 0 {
		delay = 0
	}
	proposal := *p
	s.timers[p.Address] = time.AfterFunc(delay, func() {
		s.settle(&proposal)
	})
	s.logger.Info("Settlement timer armed",
		zap.String("proposal", p.Address),
		zap.Duration("delay", delay))
}

func (s *Service) disarm(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[address]; ok {
		timer.Stop()
		delete(s.timers, address)
		s.logger.Info("Settlement timer cancelled", zap.String("proposal", address))
	}
}

func (s *Service) disarmAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for address, timer := range s.timers {
		timer.Stop()
		delete(s.timers, address)
	}
}

// ArmedProposals lists the proposals with a live settlement timer.
func (s *Service) ArmedProposals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addresses := make([]string, 0, len(s.timers))
	for address := range s.timers {
		addresses = append(addresses, address)
	}
	return addresses
}

// settle runs the three settlement steps, logging each outcome on its own. A
// skipped step is normal operation, not a failure, and a failed step does not
// stop the later ones.
func (s *Service) settle(p *types.MonitoredProposal) {
	s.mu.Lock()
	delete(s.timers, p.Address)
	s.mu.Unlock()

	lgr := s.logger.With(zap.String("method", "settle"), zap.String("proposal", p.Address))
	ctx := context.Background()

	steps := []struct {
		name string
		call func(context.Context, string) (*external.StepResult, error)
	}{
		{name: "finalize", call: s.cfg.Settlement.FinalizeProposal},
		{name: "redeemLiquidity", call: s.cfg.Settlement.RedeemLiquidity},
		{name: "depositBack", call: s.cfg.Settlement.DepositBack},
	}
	for _, step := range steps {
		result, err := step.call(ctx, p.Address)
		switch {
		case err != nil:
			lgr.Error("settlement step failed", zap.String("step", step.name), zap.Error(err))
			s.recordStep(step.name, "error")
		case result.Skipped:
			lgr.Info("settlement step skipped",
				zap.String("step", step.name),
				zap.String("reason", result.Reason))
			s.recordStep(step.name, "skipped")
		default:
			lgr.Info("settlement step done",
				zap.String("step", step.name),
				zap.String("signature", result.Signature))
			s.recordStep(step.name, "ok")
		}
	}
}

func (s *Service) recordStep(step, result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSettlementStep(step, result)
	}
}
