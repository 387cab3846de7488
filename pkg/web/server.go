// Package web serves the live status dashboard: a JSON snapshot of
// the runtime state, a ring of recent bus events, and a websocket
// stream pushing every event as it happens.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/hub"
	"github.com/botronka/botronka/pkg/state"
)

const eventRingSize = 500

// eventView is the wire form of a bus event for the dashboard.
type eventView struct {
	Origin  string         `json:"origin"`
	Tag     string         `json:"tag"`
	Payload map[string]any `json:"payload"`
	Time    string         `json:"time"`
}

// stateView is the wire form of the runtime snapshot.
type stateView struct {
	FacePresent bool    `json:"face_present"`
	TrustLevel  string  `json:"trust_level"`
	DistanceCM  float64 `json:"distance_cm"`
	HasDistance bool    `json:"has_distance"`

	AudioMode    string `json:"audio_mode"`
	MicMuted     bool   `json:"mic_muted"`
	TTSPlaying   bool   `json:"tts_playing"`
	LLMThinking  bool   `json:"llm_thinking"`
	RobotMoving  bool   `json:"robot_moving"`
	BuzzerActive bool   `json:"buzzer_active"`
	WakeActive   bool   `json:"wake_active"`

	LastUserText  string `json:"last_user_text"`
	LastReplyText string `json:"last_reply_text"`
	LastCommand   string `json:"last_command"`
}

func makeStateView(s state.Snapshot, now time.Time) stateView {
	return stateView{
		FacePresent:   s.FacePresent,
		TrustLevel:    s.Trust.String(),
		DistanceCM:    s.DistanceCM,
		HasDistance:   s.HasDistance,
		AudioMode:     s.Audio.Mode.String(),
		MicMuted:      s.Audio.MicMuted,
		TTSPlaying:    s.Audio.TTSPlaying,
		LLMThinking:   s.Audio.LLMThinking,
		RobotMoving:   s.Audio.RobotMoving,
		BuzzerActive:  s.Audio.BuzzerActive,
		WakeActive:    s.WakeActive(now),
		LastUserText:  s.Audio.LastUserText,
		LastReplyText: s.Audio.LastReplyText,
		LastCommand:   s.Audio.LastCommand,
	}
}

// Server is the dashboard. It is a bus worker: every event lands in
// the ring buffer and is pushed to websocket clients.
type Server struct {
	app   *fiber.App
	addr  string
	bus   *bus.Bus
	store *state.Store

	eventsHub *hub.Hub

	ringMu sync.RWMutex
	ring   []eventView

	stopOnce sync.Once
}

// NewServer builds the dashboard server listening on addr.
func NewServer(addr string, b *bus.Bus, store *state.Store) *Server {
	s := &Server{
		addr:      addr,
		bus:       b,
		store:     store,
		eventsHub: hub.New("events"),
		ring:      make([]eventView, 0, eventRingSize),
	}
	// Started here, not in Run: the dispatcher restarts a panicked
	// worker's Run, and the hub loop must not accumulate per restart.
	go s.eventsHub.Run()

	app := fiber.New(fiber.Config{
		AppName:               "Botronka Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/events", s.handleEvents)
	api.Post("/events", s.handleIngest)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Name implements bus.Worker.
func (s *Server) Name() string { return "web" }

// OnEvent implements bus.Worker.
func (s *Server) OnEvent(e bus.Event) {
	view := eventView{
		Origin:  e.Origin,
		Tag:     e.Tag,
		Payload: e.Payload,
		Time:    e.Time.Format(time.RFC3339Nano),
	}

	s.ringMu.Lock()
	if len(s.ring) >= eventRingSize {
		s.ring = s.ring[1:]
	}
	s.ring = append(s.ring, view)
	s.ringMu.Unlock()

	s.eventsHub.BroadcastJSON(view)
}

// Run implements bus.Worker: serve until Stop shuts the app down.
func (s *Server) Run() {
	log.Info("dashboard listening", "addr", s.addr)
	if err := s.app.Listen(s.addr); err != nil {
		log.Error("dashboard server stopped", "err", err)
	}
}

// Stop implements bus.Worker.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.eventsHub.Stop()
		if err := s.app.Shutdown(); err != nil {
			log.Warn("dashboard shutdown failed", "err", err)
		}
	})
}

var _ bus.Worker = (*Server)(nil)
