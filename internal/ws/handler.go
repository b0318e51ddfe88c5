package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/dashboard"
	"github.com/DoyleJ11/seetheplay/internal/hub"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/internal/types"
)

const writeTimeout = 3 * time.Second

var validate = validator.New()

// Handler pushes session snapshots to a browser and accepts its UI commands.
func Handler(h *hub.Hub, outboxSize int, logger *zap.Logger) http.HandlerFunc {
	log := logger.Sugar().Named("ws")
	if outboxSize <= 0 {
		outboxSize = 8
	}

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		d, err := h.Get(r.Context(), code)
		if err != nil || d == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.Snapshot, outboxSize)
		clientID := uuid.NewString()

		d.Session.Post(session.Join{ClientID: clientID, Outbox: out})
		defer d.Session.Post(session.Leave{ClientID: clientID})
		log.Debugw("browser joined", "session", code, "client", clientID)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				state, lineup := snap.State, snap.Lineup
				msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &state, Lineup: &lineup}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// The session dropped us as a slow reader or shut down.
			conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debugw("browser read ended", "session", code, "error", err)
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			if err := validate.Struct(cm); err != nil {
				writeError(r.Context(), conn, "invalid command")
				continue
			}

			if err := dispatch(r.Context(), d, cm); err != nil {
				writeError(r.Context(), conn, err.Error())
			}
		}
	}
}

func dispatch(ctx context.Context, d *dashboard.Dashboard, m types.ClientMessage) error {
	switch m.Type {
	case "select_player":
		d.Session.Post(session.SelectPlayer{PlayerID: m.PlayerID})
		return nil
	case "trigger_scenario":
		_, err := d.Scenarios.Trigger(ctx, m.Scenario)
		return err
	case "ask":
		_, err := d.Assistant.Ask(ctx, m.Question)
		return err
	default:
		return errors.New("unknown type")
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: msg})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
