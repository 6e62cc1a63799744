package controller

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"gympulse/risk"
)

const (
	writeWait      = 10 * time.Second
	subscriberSize = 32
)

// AlertHub fans risk alert events out to the staff connected for each gym.
type AlertHub struct {
	mu     sync.RWMutex
	subs   map[uint]map[chan risk.AlertEvent]struct{}
	Logger logrus.FieldLogger
}

func NewAlertHub(logger logrus.FieldLogger) *AlertHub {
	return &AlertHub{
		subs:   make(map[uint]map[chan risk.AlertEvent]struct{}),
		Logger: logger,
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *AlertHub) Publish(_ context.Context, event risk.AlertEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.GymID] {
		select {
		case ch <- event:
		default:
			h.Logger.WithField("gym_id", event.GymID).Warn("alert subscriber is slow, event dropped")
		}
	}
}

func (h *AlertHub) Subscribe(gymID uint) (<-chan risk.AlertEvent, func()) {
	ch := make(chan risk.AlertEvent, subscriberSize)
	h.mu.Lock()
	if h.subs[gymID] == nil {
		h.subs[gymID] = make(map[chan risk.AlertEvent]struct{})
	}
	h.subs[gymID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[gymID], ch)
		if len(h.subs[gymID]) == 0 {
			delete(h.subs, gymID)
		}
		h.mu.Unlock()
	}
}

// HandleAlertsWS streams alert events of the caller's gym until the client
// disconnects.
func (h *AlertHub) HandleAlertsWS(c *websocket.Conn) {
	defer c.Close()

	gym, _ := c.Locals("gymID").(uint)
	events, unsubscribe := h.Subscribe(gym)
	defer unsubscribe()

	// The reader only detects the close; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event := <-events:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(event); err != nil {
				h.Logger.WithError(err).WithField("gym_id", gym).Debug("alert stream closed")
				return
			}
		}
	}
}
