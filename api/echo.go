// Package api
package api

import (
	"fmt"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/futarchyhub/coordinator-backend/cfg"
)

type restDefinition struct {
	method      string
	path        string
	fn          func(c echo.Context) error
	middlewares []echo.MiddlewareFunc
}

func bind(gr *echo.Group, srv *Server) {
	apis := []restDefinition{
		{
			method: echo.GET,
			path:   "/ping",
			fn:     srv.Ping,
		},
		{
			method: echo.GET,
			path:   "/status",
			fn:     srv.ServerStatus,
		},
		{
			method: echo.PUT,
			path:   "/status",
			fn:     srv.UpdateServerStatus,
		},
		{
			method: echo.GET,
			path:   "/tasks",
			fn:     srv.ActiveTasks,
		},
		{
			method: echo.GET,
			path:   "/proposals",
			fn:     srv.Proposals,
		},
		{
			method: echo.POST,
			path:   "/proposals",
			fn:     srv.CreateProposal,
		},
		{
			method: echo.GET,
			path:   "/proposals/:id",
			fn:     srv.Proposal,
		},
		{
			method: echo.PUT,
			path:   "/proposals/:id/finalize",
			fn:     srv.FinalizeProposal,
		},
		{
			method: echo.PUT,
			path:   "/proposals/:id/execute",
			fn:     srv.ExecuteProposal,
		},
		{
			method: echo.GET,
			path:   "/proposals/:id/prices",
			fn:     srv.PricePoints,
		},
		{
			method: echo.GET,
			path:   "/proposals/:id/twap",
			fn:     srv.TWAPObservations,
		},
		{
			method: echo.GET,
			path:   "/tracked/proposals",
			fn:     srv.TrackedProposals,
		},
		{
			method: echo.GET,
			path:   "/tracked/settlements",
			fn:     srv.ArmedSettlements,
		},
		{
			method: echo.POST,
			path:   "/tracked/moderators",
			fn:     srv.AddTrackedModerator,
		},
		{
			method: echo.DELETE,
			path:   "/tracked/moderators/:address",
			fn:     srv.RemoveTrackedModerator,
		},
	}
	for _, api := range apis {
		gr.Add(api.method, api.path, api.fn, api.middlewares...)
	}
}

func Start(srv *Server, cfg cfg.CoordinatorConfig) {
	e := echo.New()

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Gzip())

	v1Gr := e.Group("/api/v1")
	bind(v1Gr, srv)

	if srv.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(srv.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	fmt.Println("API server", cfg.Port)
	if err := e.Start(cfg.Port); err != nil {
		panic("cannot start echo server")
	}
}
