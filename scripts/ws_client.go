// Package main runs a demo WebSocket client for weighing events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body []byte) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a product and an order for it
	resp, err := post(base, "/v1/products", []byte(`{"name":"Coffee Beans 1kg","weightGrams":1000,"price":18.5}`))
	if err != nil {
		log.Fatal(err)
	}
	var product struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	resp, err = post(base, "/v1/orders", []byte(fmt.Sprintf(`{"lines":[{"productId":%q,"quantity":2}]}`, product.ID)))
	if err != nil {
		log.Fatal(err)
	}
	var order struct {
		ID        string `json:"id"`
		ExpectedG int64  `json:"expectedGrams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Order ID: %s expected %dg", order.ID, order.ExpectedG)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/weigh/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to this order's weighing events
	payload := map[string]any{
		"topic":     "weighEvents",
		"variables": map[string]any{"orderId": order.ID},
	}
	pl, _ := json.Marshal(payload)
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger an event by committing a weighing
	time.Sleep(500 * time.Millisecond)
	weigh := []byte(`{"bags":[{"id":"bag1","weightGrams":2000}]}`)
	wresp, err := post(base, fmt.Sprintf("/v1/orders/%s/weigh", order.ID), weigh)
	if err == nil {
		log.Printf("weigh status: %s", wresp.Status)
		_ = wresp.Body.Close()
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
