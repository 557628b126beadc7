package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eleven-am/tutor-backend/internal/quality"
	"github.com/gorilla/websocket"
)

// quality-watch prints every message an observer receives. With
// SIMULATE_PARTICIPANT set it also streams synthetic updates for that
// participant so alerts and throttling can be watched end to end.
func main() {
	baseURL := os.Getenv("QUALITY_URL")
	if baseURL == "" {
		baseURL = "ws://localhost:8080/v1/quality"
	}
	sessionID := os.Getenv("SESSION_ID")
	if sessionID == "" {
		sessionID = "sess_demo"
	}

	observer := dial(baseURL + "/observe")
	defer observer.Close()
	fmt.Println("[WATCH] Observing", baseURL)

	if participant := os.Getenv("SIMULATE_PARTICIPANT"); participant != "" {
		q := url.Values{"session_id": {sessionID}, "participant_id": {participant}}
		producer := dial(baseURL + "/ws?" + q.Encode())
		defer producer.Close()
		go simulate(producer, sessionID)
		fmt.Printf("[WATCH] Simulating %s in %s\n", participant, sessionID)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("[WATCH] Shutting down...")
		observer.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := observer.ReadMessage()
		if err != nil {
			fmt.Printf("[WATCH] Read error: %v\n", err)
			return
		}

		var msg quality.OutboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Printf("[WATCH] Unmarshal error: %v\n", err)
			continue
		}

		switch msg.Type {
		case quality.MessageTypeAlert:
			for _, a := range msg.Alerts {
				fmt.Printf("[ALERT] %s/%s %s %s: %s\n", msg.SessionID, msg.ParticipantID, a.Severity, a.Kind, a.Message)
			}
		default:
			fmt.Printf("[UPDATE] %s/%s %s\n", msg.SessionID, msg.ParticipantID, string(data))
		}
	}
}

func dial(target string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("[WATCH] Dial failed: %v, status=%d, body=%s\n", err, resp.StatusCode, string(body))
		}
		log.Fatal("dial:", err)
	}
	return conn
}

func simulate(conn *websocket.Conn, sessionID string) {
	grades := []quality.Grade{quality.GradeExcellent, quality.GradeGood, quality.GradeFair, quality.GradePoor}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		grade := grades[rand.Intn(len(grades))]
		update := quality.UpdateMessage{
			SessionID: sessionID,
			Metrics: quality.ParticipantState{
				Latency:    quality.Ptr(float64(20 + rand.Intn(400))),
				PacketLoss: quality.Ptr(rand.Float64() * 8),
				Quality:    &grade,
			},
			Timestamp: time.Now().UnixMilli(),
		}
		data, err := json.Marshal(update)
		if err != nil {
			fmt.Printf("[WATCH] Marshal error: %v\n", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			fmt.Printf("[WATCH] WriteMessage error: %v\n", err)
			return
		}
	}
}
