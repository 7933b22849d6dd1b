// Package control implements the engine's HTTP control surface: a small
// echo-based API for transport control (play/pause/stop/record and the
// time range), session load/save, band diagnostics, and a server-sent-events
// notification stream, plus a Prometheus /metrics endpoint. It has no
// route that edits the band or adds a talker.
//
// Grounded on the teacher's httpcontroller package: a Server struct
// wrapping *echo.Echo, handler methods taking echo.Context, JSON
// responses via c.JSON, and routes registered from a declarative table
// (routeConfig in the teacher; routeTable here) rather than scattered
// e.GET calls.
package control

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/events"
	"github.com/gndl/talkgraph/internal/history"
	"github.com/gndl/talkgraph/internal/logging"
	"github.com/gndl/talkgraph/internal/player"
	"github.com/gndl/talkgraph/internal/session"
)

// Server wraps the echo engine and the session it controls.
type Server struct {
	Echo      *echo.Echo
	session   *session.Session
	notify    *events.Bus
	chunkSize int
	channels  int
	logger    *slog.Logger
	auth      *Auth
	stream    *eventStream
	history   *history.Log // nil unless settings.History.Enabled
}

type routeConfig struct {
	Method  string
	Path    string
	Handler echo.HandlerFunc
}

// New builds a control server over the given session. notify is the
// notification bus whose events are streamed over /api/v1/events and
// /api/v1/events/ws. chunkSize and channels size any band loaded via
// /api/v1/session/load, and the mixer rebuilt for it, to match the
// running player's audio format. settings.Control.Auth governs whether
// transport/session/band routes require authentication.
func New(sess *session.Session, notify *events.Bus, settings *conf.Settings, chunkSize, channels int) *Server {
	stream := newEventStream()
	notify.Subscribe("control-ws-stream", stream.broadcast)

	logger := logging.ForService("control")
	hist, err := history.Open(settings)
	if err != nil {
		logger.Warn("history logging disabled", "error", err)
		hist = nil
	}

	s := &Server{
		Echo:      echo.New(),
		session:   sess,
		notify:    notify,
		chunkSize: chunkSize,
		channels:  channels,
		logger:    logger,
		auth:      NewAuth(settings),
		stream:    stream,
		history:   hist,
	}
	s.Echo.HideBanner = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.Logger())

	for _, r := range s.routes() {
		s.Echo.Add(r.Method, r.Path, r.Handler)
	}
	return s
}

func (s *Server) routes() []routeConfig {
	auth := s.auth.RequireAuth
	return []routeConfig{
		{Method: http.MethodGet, Path: "/metrics", Handler: echo.WrapHandler(promhttp.Handler())},
		{Method: http.MethodGet, Path: "/api/v1/status", Handler: s.handleStatus},
		{Method: http.MethodPost, Path: "/api/v1/transport/play", Handler: auth(s.handlePlay)},
		{Method: http.MethodPost, Path: "/api/v1/transport/record", Handler: auth(s.handleRecord)},
		{Method: http.MethodPost, Path: "/api/v1/transport/pause", Handler: auth(s.handlePause)},
		{Method: http.MethodPost, Path: "/api/v1/transport/stop", Handler: auth(s.handleStop)},
		{Method: http.MethodPost, Path: "/api/v1/transport/time-range", Handler: auth(s.handleSetTimeRange)},
		{Method: http.MethodPost, Path: "/api/v1/session/save", Handler: auth(s.handleSave)},
		{Method: http.MethodPost, Path: "/api/v1/session/load", Handler: auth(s.handleLoad)},
		{Method: http.MethodGet, Path: "/api/v1/band/diagnostics", Handler: s.handleDiagnostics},
		{Method: http.MethodGet, Path: "/api/v1/events", Handler: s.handleEvents},
		{Method: http.MethodGet, Path: "/api/v1/events/ws", Handler: s.stream.handle},
		{Method: http.MethodPost, Path: "/login", Handler: s.auth.handleAuthLogin},
		{Method: http.MethodGet, Path: "/api/v1/auth/:provider", Handler: s.auth.handleAuthProvider},
		{Method: http.MethodGet, Path: "/api/v1/auth/:provider/callback", Handler: s.auth.handleAuthCallback},
		{Method: http.MethodGet, Path: "/logout", Handler: s.auth.handleAuthLogout},
	}
}

// Start runs the server, blocking until it is shut down or fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting control surface", "addr", addr)
	return s.Echo.Start(addr)
}

// Close releases the history database connection, if one was opened.
func (s *Server) Close() error {
	if s.history == nil {
		return nil
	}
	return s.history.Close()
}

func (s *Server) handleStatus(c echo.Context) error {
	state, tick := s.session.Player.CurrentState()
	return c.JSON(http.StatusOK, map[string]any{
		"state": state.String(),
		"tick":  tick,
		"path":  s.session.Path,
	})
}

func (s *Server) handlePlay(c echo.Context) error {
	s.session.Player.Send(player.Order{Kind: player.OrderPlay})
	s.recordEvent(c, "play")
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleRecord(c echo.Context) error {
	s.session.Player.Send(player.Order{Kind: player.OrderRecord})
	s.recordEvent(c, "record")
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handlePause(c echo.Context) error {
	s.session.Player.Send(player.Order{Kind: player.OrderPause})
	s.recordEvent(c, "pause")
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleStop(c echo.Context) error {
	s.session.Player.Send(player.Order{Kind: player.OrderStop})
	s.recordEvent(c, "stop")
	return c.NoContent(http.StatusAccepted)
}

// recordEvent logs kind to the history database, if configured. History is
// an audit convenience, never a reason to fail a transport/session request.
func (s *Server) recordEvent(c echo.Context, kind string) {
	if s.history == nil {
		return
	}
	_, tick := s.session.Player.CurrentState()
	if err := s.history.Record(c.Request().Context(), kind, s.session.Path, tick); err != nil {
		s.logger.Warn("history record failed", "kind", kind, "error", err)
	}
}

type timeRangeRequest struct {
	StartTick int64 `json:"start_tick"`
	EndTick   int64 `json:"end_tick"`
}

func (s *Server) handleSetTimeRange(c echo.Context) error {
	var req timeRangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.session.SetTimeRange(req.StartTick, req.EndTick)
	s.recordEvent(c, "time-range")
	return c.NoContent(http.StatusAccepted)
}

type saveRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSave(c echo.Context) error {
	var req saveRequest
	_ = c.Bind(&req)
	var err error
	if req.Path == "" {
		err = s.session.Save()
	} else {
		err = s.session.SaveAs(req.Path)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.notify.Publish(events.NotificationSessionSaved, map[string]any{"path": s.session.Path})
	s.recordEvent(c, "save")
	return c.NoContent(http.StatusOK)
}

type loadRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleLoad(c echo.Context) error {
	var req loadRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	s.session.Player.Send(player.Order{
		Kind: player.OrderLoadBand,
		Load: func() error {
			b, mixerSpecs, err := session.Load(req.Path, s.chunkSize)
			if err != nil {
				return err
			}
			m, err := session.SelectMixer(b, mixerSpecs, s.channels, s.chunkSize)
			if err != nil {
				return err
			}
			s.session.Band = b
			s.session.Path = req.Path
			s.session.Player.SetMixer(m)
			return nil
		},
	})
	s.notify.Publish(events.NotificationSessionLoaded, map[string]any{"path": req.Path})
	s.recordEvent(c, "load")
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleDiagnostics(c echo.Context) error {
	diags, err := s.session.Band.Validate()
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	out := make([]map[string]any, 0, len(diags))
	for _, d := range diags {
		out = append(out, map[string]any{"talker_id": d.TalkerID, "message": d.Message})
	}
	return c.JSON(http.StatusOK, out)
}

// handleEvents streams notifications as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	name := c.RealIP() + ":" + c.Request().RemoteAddr
	ch := make(chan events.Notification, 32)
	s.notify.Subscribe(name, func(n events.Notification) {
		select {
		case ch <- n:
		default:
		}
	})
	defer s.notify.Unsubscribe(name)

	for {
		select {
		case n := <-ch:
			if _, err := w.Write(sseFrame(n)); err != nil {
				return nil
			}
			w.Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func sseFrame(n events.Notification) []byte {
	return []byte("event: " + string(n.Kind) + "\ndata: " + n.ID + "\n\n")
}
