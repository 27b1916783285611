// Package telemetry publishes live acquisition status to an MQTT broker so an
// operator console elsewhere in the lab can follow a recording. It is
// optional; with no broker configured the session runs without it.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/record"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

// Options configures the emitter.
type Options struct {
	Broker      string // host:port
	ClientID    string
	TopicPrefix string // e.g. "fpe/acquisition"
}

// Emitter publishes schedule transitions and recorder statistics.
type Emitter struct {
	opts   Options
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewEmitter creates an emitter. Connect must be called before publishing.
func NewEmitter(opts Options) *Emitter {
	return &Emitter{
		opts:      opts,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.opts.Broker))
	opts.SetClientID(e.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.opts.Broker,
			"client_id", e.opts.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.opts.Broker)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.opts.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

type eventMessage struct {
	SessionID string    `json:"session_id"`
	TrialID   int       `json:"trial_id"`
	Gesture   string    `json:"gesture,omitempty"`
	State     string    `json:"state"`
	OffsetNs  int64     `json:"offset_ns"`
	Wall      time.Time `json:"wall"`
}

// PublishEvent publishes one scheduler transition.
func (e *Emitter) PublishEvent(sessionID string, ev schedule.Event) error {
	msg := eventMessage{
		SessionID: sessionID,
		TrialID:   ev.TrialID,
		Gesture:   ev.Gesture,
		State:     ev.State.String(),
		OffsetNs:  ev.At.Nanoseconds(),
		Wall:      ev.Wall,
	}
	return e.publishJSON(e.opts.TopicPrefix+"/events", 1, false, msg)
}

type stateMessage struct {
	SessionID string    `json:"session_id"`
	TrialID   int       `json:"trial_id"`
	Gesture   string    `json:"gesture,omitempty"`
	State     string    `json:"state"`
	Wall      time.Time `json:"wall"`
}

// PublishState publishes the schedule's current state as a retained message,
// so a console attaching mid-run sees where the recording stands without
// waiting for the next transition.
func (e *Emitter) PublishState(sessionID string, ev schedule.Event) error {
	msg := stateMessage{
		SessionID: sessionID,
		TrialID:   ev.TrialID,
		Gesture:   ev.Gesture,
		State:     ev.State.String(),
		Wall:      ev.Wall,
	}
	return e.publishJSON(e.opts.TopicPrefix+"/state", 0, true, msg)
}

type statsMessage struct {
	SessionID string `json:"session_id"`
	Stream    string `json:"stream"`
	Captured  uint64 `json:"captured"`
	Dropped   uint64 `json:"dropped"`
	Buffered  int    `json:"buffered"`
	Healthy   bool   `json:"healthy"`
}

// PublishStats publishes one stream's recorder statistics.
func (e *Emitter) PublishStats(sessionID, stream string, st record.Stats) error {
	msg := statsMessage{
		SessionID: sessionID,
		Stream:    stream,
		Captured:  st.Captured,
		Dropped:   st.Dropped,
		Buffered:  st.Buffered,
		Healthy:   !st.Disconnected,
	}
	return e.publishJSON(e.opts.TopicPrefix+"/stats", 0, false, msg)
}

func (e *Emitter) publishJSON(topic string, qos byte, retained bool, msg any) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("marshal telemetry message: %w", err)
	}

	token := e.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("telemetry published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *Emitter) Disconnect() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a snapshot of emitter statistics.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}
