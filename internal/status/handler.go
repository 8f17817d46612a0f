package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// parseContextFilter reads ?contexts=id1,id2. A nil result accepts all.
func parseContextFilter(r *http.Request) map[capture.ContextID]bool {
	q := r.URL.Query().Get("contexts")
	if q == "" {
		return nil
	}
	filter := make(map[capture.ContextID]bool)
	for _, id := range strings.Split(q, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter[capture.ContextID(id)] = true
		}
	}
	return filter
}

// SSEHandler streams status events as server-sent events.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		filter := parseContextFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.ContextID] {
					continue
				}
				data, err := json.Marshal(evt.View)
				if err != nil {
					slog.Debug("status event marshal failed", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

// WebSocketHandler streams status events as WebSocket text frames. Frames
// sent by the client are read and discarded; a close frame or read error
// ends the stream.
func WebSocketHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := parseContextFilter(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("status websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.ContextID] {
					continue
				}
				data, err := json.Marshal(evt.View)
				if err != nil {
					slog.Debug("status event marshal failed", "error", err)
					continue
				}
				if err := wsutil.WriteServerText(conn, data); err != nil {
					slog.Debug("status websocket write failed", "subscriber", id, "error", err)
					return
				}
			}
		}
	}
}
