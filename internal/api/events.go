/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/telemetry"
)

const pingInterval = 15 * time.Second

// handleEvents streams bus events as JSON text frames. ?types= narrows the
// stream to a comma separated list of event types.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	wanted := parseEventTypes(r.URL.Query().Get("types"))
	sub := a.bus.Subscribe(events.EventAll)
	defer a.bus.Unsubscribe(events.EventAll, sub)

	// Reading is only needed to notice the client going away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "bus closed")
				return
			}
			typ, _ := payload["type"].(string)
			if len(wanted) > 0 {
				if _, ok := wanted[events.EventType(typ)]; !ok {
					continue
				}
			}
			if err := writeEvent(ctx, conn, events.EventType(typ), payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// writeEvent sends one event. In-process values such as the track
// metadata and its cover are left out.
func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	body := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "metadata" || k == "type" {
			continue
		}
		body[k] = v
	}
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": body,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) map[events.EventType]struct{} {
	if raw == "" {
		return nil
	}
	out := make(map[events.EventType]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out[events.EventType(part)] = struct{}{}
	}
	return out
}
