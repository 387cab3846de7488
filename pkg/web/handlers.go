package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/hub"
)

// ingestTags lists the event tags external collaborators (the vision
// process in particular) may publish through the HTTP API.
var ingestTags = map[string]bool{
	bus.TagVisionIdentity: true,
	bus.TagVisionError:    true,
	bus.TagRegisterResult: true,
	bus.TagDistanceCM:     true,
}

// handleState returns the current runtime snapshot.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(makeStateView(s.store.Snapshot(), time.Now()))
}

// handleEvents returns the recent event ring, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.ringMu.RLock()
	out := make([]eventView, len(s.ring))
	copy(out, s.ring)
	s.ringMu.RUnlock()
	return c.JSON(out)
}

// handleIngest lets an out-of-process collaborator publish onto the
// bus. Only the collaborator-owned tags are accepted.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var in struct {
		Origin  string         `json:"origin"`
		Tag     string         `json:"tag"`
		Payload map[string]any `json:"payload"`
	}
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event body")
	}
	if !ingestTags[in.Tag] {
		return fiber.NewError(fiber.StatusForbidden, "tag not accepted over HTTP")
	}
	origin := in.Origin
	if origin == "" {
		origin = "external"
	}
	s.bus.Publish(origin, in.Tag, in.Payload)
	return c.SendStatus(fiber.StatusAccepted)
}

// handleEventsWS streams live events. The recent ring is replayed
// first so a fresh client sees context immediately.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.ringMu.RLock()
	backlog := make([]eventView, len(s.ring))
	copy(backlog, s.ring)
	s.ringMu.RUnlock()

	for _, view := range backlog {
		if err := c.WriteJSON(view); err != nil {
			c.Close()
			return
		}
	}

	hub.NewClient(s.eventsHub, c).Run()
}
