// internal/hub/sweep.go
package hub

import (
	"context"
	"time"

	"github.com/erilali/gameroom/internal/message"
)

// runSweeper removes idle rooms every sweep interval until ctx is cancelled.
func (h *Hub) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep closes every room idle past the registry timeout, tells its members why and returns
// how many rooms were removed.
func (h *Hub) Sweep() int {
	swept := h.rooms.Sweep()
	for _, snap := range swept {
		members := append(snap.Players, snap.Spectators...)
		h.deliverEvent(members, message.Event{
			Type: message.EventRoomClosed,
			Data: map[string]interface{}{
				"room_id": snap.ID,
				"reason":  "timeout",
			},
		})
		if h.chat != nil {
			h.chat.ClearRoom(snap.ID)
		}
		h.events.PublishRoom(snap.ID, "timeout")
		h.metrics.RoomsSwept.Inc()
		h.logger.Infof("Room %s (%s) closed after %s idle", snap.ID, snap.Game, time.Since(snap.LastActivity).Round(time.Second))
	}
	if len(swept) > 0 {
		h.refreshRoomGauge()
	}
	return len(swept)
}
