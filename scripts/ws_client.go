// Package main runs a demo WebSocket client for batch optimization events.
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

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	tenant := os.Getenv("TENANT")
	if tenant == "" {
		tenant = "t_demo"
	}
	start, end := "2025-03-10", "2025-03-11"
	if len(os.Args) == 3 {
		start, end = os.Args[1], os.Args[2]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/tenants/" + tenant + "/routes/batch-optimize/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1"}); err != nil {
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
			if m.Type == "next" && bytes.Contains(m.Payload, []byte(`"batch.completed"`)) {
				return
			}
		}
	}()

	// Trigger a batch run once the subscription is registered
	time.Sleep(500 * time.Millisecond)
	body := []byte(fmt.Sprintf(`{"startDate":%q,"endDate":%q}`, start, end))
	req, _ := http.NewRequest(http.MethodPost, base+"/tenants/"+tenant+"/routes/batch-optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var sum struct {
		BatchID      string `json:"batchId"`
		GroupCount   int    `json:"groupCount"`
		FailedGroups int    `json:"failedGroups"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&sum)
	_ = resp.Body.Close()
	log.Printf("batch %s: status=%d groups=%d failed=%d", sum.BatchID, resp.StatusCode, sum.GroupCount, sum.FailedGroups)

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
