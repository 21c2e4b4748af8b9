package hub

import (
	"context"
	"maps"
)

// EntityStatus is a snapshot of one backup entity.
type EntityStatus struct {
	EntityID       string         `json:"entity_id"`
	UniqueID       string         `json:"unique_id,omitempty"`
	Platform       string         `json:"platform"`
	Name           string         `json:"name"`
	State          string         `json:"state"`
	Attributes     map[string]any `json:"attributes"`
	Sources        []string       `json:"sources"`
	SelectedSource string         `json:"selected_source,omitempty"`
	SelectedIndex  int            `json:"selected_index"`
}

// Entities returns a snapshot of every backup entity, in configuration order.
// Before Start it returns an empty list.
func (h *Hub) Entities(ctx context.Context) ([]EntityStatus, error) {
	var out []EntityStatus
	err := h.do(ctx, func() {
		out = make([]EntityStatus, 0, len(h.managed))
		for _, m := range h.managed {
			adapter := m.binding.Adapter()
			rendered := adapter.Render()
			sources := m.entity.Sources()
			idx := m.entity.SelectedIndex()

			status := EntityStatus{
				EntityID:      adapter.EntityID(),
				UniqueID:      m.entity.UniqueID(),
				Platform:      adapter.Platform(),
				Name:          m.entity.Name(),
				State:         rendered.State,
				Attributes:    maps.Clone(rendered.Attributes),
				Sources:       sources,
				SelectedIndex: idx,
			}
			if idx >= 0 && idx < len(sources) {
				status.SelectedSource = sources[idx]
			}
			out = append(out, status)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
