package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"weighgate/internal/engine"
	"weighgate/internal/model"
)

// Minimal subscription protocol over WebSocket to stream weighing events
// to station clients that cannot hold an SSE connection.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Topic     string         `json:"topic"`
	Variables map[string]any `json:"variables"`
}

// WeighWSHandler handles /v1/weigh/ws
func (s *Server) WeighWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Track subscriptions: id -> orderID and channel
	type sub struct {
		orderID string
		ch      chan SSEEvent
	}
	subs := map[string]sub{}

	// Read loop
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// Write helper. The keepalive and fanout goroutines write alongside
	// the read loop; gorilla allows one writer at a time.
	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	// Expect connection_init first
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			// Start keepalive
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			oid := ""
			if pl.Variables != nil {
				if v, ok := pl.Variables["orderId"].(string); ok {
					oid = v
				}
			}
			if oid == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"orderId required"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			// The order must exist in the caller's tenant.
			pr := s.getPrincipal(r)
			if _, err := s.Store.GetOrder(r.Context(), pr.Tenant, oid); err != nil {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"order not found"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			// Topic filter: weighEvents (all) or overrides only
			topic := pl.Topic
			if topic == "" {
				topic = "weighEvents"
			}
			ch := s.Broker.Subscribe(oid)
			subs[msg.ID] = sub{orderID: oid, ch: ch}
			// Fanout goroutine
			go func(id string, c chan SSEEvent, topic string) {
				for evt := range c {
					if topic == "overrides" && !strings.HasSuffix(evt.Type, ".overridden") {
						continue
					}
					payload, _ := json.Marshal(map[string]any{"event": evt.Type, "data": evt.Data})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, topic)
		case "analyze":
			// Interactive weighing: the client streams its current
			// bag/packaging entry and gets the verdict back.
			var req model.AnalyzeRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil || req.OrderID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"orderId required"}`)})
				continue
			}
			pr := s.getPrincipal(r)
			o, err := s.Store.GetOrder(r.Context(), pr.Tenant, req.OrderID)
			if err != nil {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"order not found"}`)})
				continue
			}
			actual, res, ok, err := s.analyzeEntry(r, pr.Tenant, o, req.WeighEntry)
			if err != nil {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"analyze failed"}`)})
				continue
			}
			out := map[string]any{
				"orderId":       o.ID,
				"actualGrams":   engine.RoundGrams(actual),
				"expectedGrams": o.ExpectedG,
				"ok":            ok,
			}
			if ok {
				out["status"] = res.Status
				out["message"] = res.Message
				out["deltaGrams"] = engine.RoundGrams(res.DeltaGrams)
				if len(res.Suspects) > 0 {
					out["suspects"] = res.Suspects
				}
			}
			payload, _ := json.Marshal(out)
			_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: payload})
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.orderID, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	// Cleanup
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.orderID, s0.ch)
		delete(subs, id)
	}
}
