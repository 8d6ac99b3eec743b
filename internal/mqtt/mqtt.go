package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/encoding/json"

	"climate-api/internal/climate/types"
	"climate-api/internal/config"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	statusQoS = byte(1)
)

// Status is the retained message published on the status topic.
type Status struct {
	Status   string             `json:"status"`
	ClientID string             `json:"client_id"`
	Version  string             `json:"version,omitempty"`
	Dataset  *types.DatasetInfo `json:"dataset,omitempty"`
}

// Announcer keeps a retained online/offline status for this API on an MQTT
// topic. The offline status doubles as the connection's last will, so the
// broker flips the topic if the process dies without calling Disconnect.
type Announcer struct {
	client    mqtt.Client
	cfg       config.Config
	version   string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	online    []byte

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewAnnouncer(cfg config.Config, version string, logger *slog.Logger) (*Announcer, error) {
	offline, err := statusPayload(Status{Status: StatusOffline, ClientID: cfg.MQTTClientID, Version: version})
	if err != nil {
		return nil, err
	}

	a := &Announcer{
		cfg:     cfg,
		version: version,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)
	opts.SetBinaryWill(cfg.MQTTStatusTopic, offline, statusQoS, true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		a.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// The will may have fired while we were away.
		if payload := a.onlinePayload(); payload != nil {
			go a.publish(payload)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		a.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	a.client = mqtt.NewClient(opts)
	return a, nil
}

// Connect waits for the first broker connection, giving up when ctx ends.
func (a *Announcer) Connect(ctx context.Context) error {
	select {
	case <-a.stopCh:
		return fmt.Errorf("announcer stopped")
	default:
	}

	if a.IsConnected() {
		return nil
	}

	token := a.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			a.client.Disconnect(0)
			return ctx.Err()
		case <-a.stopCh:
			a.client.Disconnect(0)
			return fmt.Errorf("announcer stopped")
		default:
		}
	}
}

// Announce publishes the retained online status carrying info. The payload
// is kept and republished after every reconnect.
func (a *Announcer) Announce(info types.DatasetInfo) error {
	payload, err := statusPayload(Status{
		Status:   StatusOnline,
		ClientID: a.cfg.MQTTClientID,
		Version:  a.version,
		Dataset:  &info,
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.online = payload
	a.mu.Unlock()

	if !a.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	return a.publish(payload)
}

func (a *Announcer) publish(payload []byte) error {
	token := a.client.Publish(a.cfg.MQTTStatusTopic, statusQoS, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", a.cfg.MQTTStatusTopic)
	}
	if err := token.Error(); err != nil {
		a.logger.Warn("mqtt status publish failed", "topic", a.cfg.MQTTStatusTopic, "error", err)
		return fmt.Errorf("publish to %s: %w", a.cfg.MQTTStatusTopic, err)
	}
	a.logger.Debug("mqtt status published", "topic", a.cfg.MQTTStatusTopic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is connected.
func (a *Announcer) IsConnected() bool {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	return connected && a.client.IsConnected()
}

// Disconnect publishes the offline status and closes the connection.
// Idempotent and safe to call multiple times.
func (a *Announcer) Disconnect() {
	a.stopOnce.Do(func() { close(a.stopCh) })

	if a.client != nil && a.IsConnected() {
		offline, err := statusPayload(Status{Status: StatusOffline, ClientID: a.cfg.MQTTClientID, Version: a.version})
		if err == nil {
			err = a.publish(offline)
		}
		if err != nil {
			a.logger.Warn("mqtt offline status not published", "error", err)
		}
	}

	if a.client != nil {
		a.client.Disconnect(250)
	}

	a.setConnected(false)
	a.logger.Info("mqtt announcer disconnected")
}

func (a *Announcer) onlinePayload() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.online
}

func (a *Announcer) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

func statusPayload(s Status) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return b, nil
}
