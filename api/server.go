// Package api
package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/labstack/echo"
	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/cache"
	"github.com/futarchyhub/coordinator-backend/cfg"
	"github.com/futarchyhub/coordinator-backend/db"
	"github.com/futarchyhub/coordinator-backend/handler"
	"github.com/futarchyhub/coordinator-backend/lifecycle"
	"github.com/futarchyhub/coordinator-backend/metrics"
	"github.com/futarchyhub/coordinator-backend/monitor"
	"github.com/futarchyhub/coordinator-backend/scheduler"
	"github.com/futarchyhub/coordinator-backend/types"
)

type Server struct {
	authorizationSecret string

	dbClient    db.Client
	cacheClient cache.Client
	moderator   handler.IModerator
	sched       *scheduler.Scheduler
	watcher     *monitor.Monitor
	settlement  *lifecycle.Service
	metrics     *metrics.Provider

	logger *zap.Logger
}

func (s *Server) SetSecret(secret string) *Server {
	s.authorizationSecret = secret
	return s
}

func (s *Server) SetLogger(logger *zap.Logger) *Server {
	s.logger = logger
	return s
}

func (s *Server) SetStorage(db db.Client) *Server {
	s.dbClient = db
	return s
}

func (s *Server) SetCache(cache cache.Client) *Server {
	s.cacheClient = cache
	return s
}

func (s *Server) SetModerator(moderator handler.IModerator) *Server {
	s.moderator = moderator
	return s
}

func (s *Server) SetScheduler(sched *scheduler.Scheduler) *Server {
	s.sched = sched
	return s
}

func (s *Server) SetMonitor(watcher *monitor.Monitor) *Server {
	s.watcher = watcher
	return s
}

func (s *Server) SetLifecycle(svc *lifecycle.Service) *Server {
	s.settlement = svc
	return s
}

func (s *Server) SetMetrics(provider *metrics.Provider) *Server {
	s.metrics = provider
	return s
}

func (s *Server) authorized(c echo.Context) bool {
	return c.Request().Header.Get("Authorization") == s.authorizationSecret
}

func (s *Server) Ping(c echo.Context) error {
	type pingStat struct {
		Version string `json:"version"`
	}
	stats := &pingStat{Version: cfg.ServerVersion}
	return OK.SetData(stats).Build(c)
}

func (s *Server) ServerStatus(c echo.Context) error {
	ctx := context.Background()
	status, err := s.cacheClient.ServerStatus(ctx)
	if err != nil {
		s.logger.Error("cannot get cache, return default instead")
		status = &types.CoordinatorStatus{
			Status:        "ONLINE",
			AppVersion:    cfg.ServerVersion,
			MonitorStatus: "ONLINE",
		}
	}
	return OK.SetData(status).Build(c)
}

func (s *Server) UpdateServerStatus(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "UpdateServerStatus"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	var status *types.CoordinatorStatus
	if err := c.Bind(&status); err != nil {
		lgr.Error("cannot bind server status", zap.Error(err))
		return Invalid.Build(c)
	}
	ctx := context.Background()
	if err := s.cacheClient.UpdateServerStatus(ctx, status); err != nil {
		lgr.Error("cannot update server status", zap.Error(err))
		return Invalid.Build(c)
	}
	return OK.SetData(nil).Build(c)
}

func (s *Server) ActiveTasks(c echo.Context) error {
	return OK.SetData(s.sched.ActiveTasks()).Build(c)
}

func (s *Server) Proposals(c echo.Context) error {
	ctx := context.Background()
	proposals, err := s.dbClient.Proposals(ctx)
	if err != nil {
		s.logger.Warn("cannot get proposals from storage", zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(proposals).Build(c)
}

func (s *Server) Proposal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return Invalid.Build(c)
	}
	proposal, err := s.moderator.GetProposal(context.Background(), id)
	if err != nil {
		if errors.Is(err, types.ErrProposalNotFound) {
			return NotFound.Build(c)
		}
		s.logger.Warn("cannot get proposal", zap.Uint64("id", id), zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(proposal).Build(c)
}

func (s *Server) CreateProposal(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "CreateProposal"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	var params handler.CreateProposalParams
	if err := c.Bind(&params); err != nil {
		lgr.Error("cannot bind proposal params", zap.Error(err))
		return Invalid.Build(c)
	}
	proposal, err := s.moderator.CreateProposal(context.Background(), params)
	if err != nil {
		lgr.Error("cannot create proposal", zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(proposal).Build(c)
}

func (s *Server) FinalizeProposal(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "FinalizeProposal"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return Invalid.Build(c)
	}
	status, err := s.moderator.FinalizeProposalByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, types.ErrProposalNotFound) {
			return NotFound.Build(c)
		}
		lgr.Error("cannot finalize proposal", zap.Uint64("id", id), zap.Error(err))
		return InternalServer.Build(c)
	}
	type finalizeResult struct {
		ID     uint64 `json:"id"`
		Status string `json:"status"`
	}
	return OK.SetData(&finalizeResult{ID: id, Status: status.String()}).Build(c)
}

func (s *Server) ExecuteProposal(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "ExecuteProposal"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return Invalid.Build(c)
	}
	type executeParams struct {
		Signer string `json:"signer"`
	}
	var params executeParams
	if err := c.Bind(&params); err != nil {
		lgr.Error("cannot bind execute params", zap.Error(err))
		return Invalid.Build(c)
	}
	proposal, err := s.moderator.ExecuteProposal(context.Background(), id, params.Signer)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrProposalNotFound):
			return NotFound.Build(c)
		case errors.Is(err, types.ErrInvalidState):
			return Invalid.Build(c)
		}
		lgr.Error("cannot execute proposal", zap.Uint64("id", id), zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(proposal).Build(c)
}

func (s *Server) PricePoints(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return Invalid.Build(c)
	}
	limit, err := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}
	points, err := s.dbClient.PricePoints(context.Background(), id, limit)
	if err != nil {
		s.logger.Warn("cannot get price points", zap.Uint64("id", id), zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(points).Build(c)
}

func (s *Server) TWAPObservations(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return Invalid.Build(c)
	}
	limit, err := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}
	observations, err := s.dbClient.TWAPObservations(context.Background(), id, limit)
	if err != nil {
		s.logger.Warn("cannot get observations", zap.Uint64("id", id), zap.Error(err))
		return InternalServer.Build(c)
	}
	return OK.SetData(observations).Build(c)
}

func (s *Server) TrackedProposals(c echo.Context) error {
	return OK.SetData(s.watcher.TrackedProposals()).Build(c)
}

func (s *Server) ArmedSettlements(c echo.Context) error {
	return OK.SetData(s.settlement.ArmedProposals()).Build(c)
}

func (s *Server) AddTrackedModerator(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "AddTrackedModerator"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	type moderatorParams struct {
		Address string `json:"address"`
	}
	var params moderatorParams
	if err := c.Bind(&params); err != nil || params.Address == "" {
		return Invalid.Build(c)
	}
	s.watcher.AddModerator(params.Address)
	return OK.SetData(nil).Build(c)
}

func (s *Server) RemoveTrackedModerator(c echo.Context) error {
	lgr := s.logger.With(zap.String("method", "RemoveTrackedModerator"))
	if !s.authorized(c) {
		lgr.Warn("Cannot authorization request")
		return Unauthorized.Build(c)
	}
	address := c.Param("address")
	if address == "" {
		return Invalid.Build(c)
	}
	s.watcher.RemoveModerator(address)
	return OK.SetData(nil).Build(c)
}
