// Package main runs a demo WebSocket client for the dispatch feed.
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

const demoAssignment = `{
  "affinityNoise": false,
  "teams": [
    {"id": "T1", "name": "North crew", "location": {"lat": 40.75, "lng": -73.99}, "skills": ["plumbing"]},
    {"id": "T2", "name": "South crew", "location": {"lat": 40.70, "lng": -74.01}, "skills": ["electrical"]}
  ],
  "jobs": [
    {"id": "J1", "title": "Leak", "location": {"lat": 40.76, "lng": -73.98}, "requirements": ["plumbing"]},
    {"id": "J2", "title": "Outage", "location": {"lat": 40.71, "lng": -74.00}, "requirements": ["electrical"]}
  ]
}`

func post(base, path string, body []byte) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "dispatcher")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	log.Printf("POST %s -> %s", path, resp.Status)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "dispatcher")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// empty teamId: whole tenant dispatch topic
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{}`)}); err != nil {
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

	time.Sleep(300 * time.Millisecond)
	post(base, "/v1/optimize/assignment", []byte(demoAssignment))

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
