package hub

import (
	"context"

	"github.com/zorak1103/ha-backup-source/internal/backup"
	"github.com/zorak1103/ha-backup-source/internal/homeassistant"
)

// publishLoop writes pending renders to Home Assistant until the hub stops.
func (h *Hub) publishLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.pubSignal:
			for {
				id, rendered, ok := h.nextPending()
				if !ok {
					break
				}
				h.publish(id, rendered)
				if h.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (h *Hub) nextPending() (string, backup.Rendered, bool) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	if len(h.pubOrder) == 0 {
		return "", backup.Rendered{}, false
	}
	id := h.pubOrder[0]
	h.pubOrder = h.pubOrder[1:]
	rendered := h.pending[id]
	delete(h.pending, id)
	return id, rendered, true
}

func (h *Hub) publish(entityID string, rendered backup.Rendered) {
	ctx, cancel := context.WithTimeout(h.ctx, h.publishTimeout)
	defer cancel()

	_, err := h.client.SetState(ctx, entityID, homeassistant.StateUpdate{
		State:      rendered.State,
		Attributes: rendered.Attributes,
	})
	h.metrics.observePublish(entityID, err)
	if err != nil {
		h.logger.Warn("Failed to publish backup entity state", "entity", entityID, "error", err)
		return
	}
	h.logger.Trace("Published backup entity state", "entity", entityID, "state", rendered.State)
}
