// Package http exposes the read-only status API: recent events, single
// events, their triggers, plus /metrics and /healthz.
package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skywatch/transient-gateway/internal/metrics"
	"github.com/skywatch/transient-gateway/internal/store"
)

type Server struct{ e *echo.Echo }

func NewServer(st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	v1 := e.Group("/v1")
	v1.GET("/events", listEventsHandler(st))
	v1.GET("/events/:id", getEventHandler(st))
	v1.GET("/events/:id/triggers", listTriggersHandler(st))

	return &Server{e: e}
}

func listEventsHandler(st *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		events, err := st.RecentEvents(c.Request().Context(), limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, events)
	}
}

func getEventHandler(st *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ev, err := st.Get(c.Request().Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func listTriggersHandler(st *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if _, err := st.Get(c.Request().Context(), id); errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		} else if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		trgs, err := st.TriggersForEvent(c.Request().Context(), id)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, trgs)
	}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.e }
