// Package mqtt publishes decoded IEEE 802.15.4 frame summaries for the
// capture bridge: each frame is published to
// "{TopicPrefix}/{panID:04x}/{shortAddr:04x}" so an operator can watch
// TSCH join/beacon traffic from a dashboard subscribed to a wildcard topic.
package mqtt

import (
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gowpan/dot15d4/frame"
)

// DefaultTopicPrefix is the default MQTT topic prefix for published frames.
const DefaultTopicPrefix = "dot15d4"

// Config holds the configuration for a Publisher.
type Config struct {
	// Broker is the MQTT broker URL (e.g. "tcp://broker.example.com:1883").
	Broker string
	Username string
	Password string
	UseTLS   bool
	ClientID string
	// TopicPrefix defaults to "dot15d4".
	TopicPrefix string
	// PublishRaw additionally includes the base64 PSDU in each message.
	PublishRaw bool
	Logger     *slog.Logger
}

// Summary is the JSON body published for each decoded frame.
type Summary struct {
	FrameType  string `json:"frame_type"`
	Sequence   *uint8 `json:"sequence,omitempty"`
	DstPanID   *uint16 `json:"dst_pan_id,omitempty"`
	SrcAddress string `json:"src_address,omitempty"`
	DstAddress string `json:"dst_address,omitempty"`
	PayloadLen int    `json:"payload_len"`
	RawBase64  string `json:"raw,omitempty"`
}

// Publisher publishes decoded frame summaries to an MQTT broker.
type Publisher struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// New builds a Publisher with the given configuration.
func New(cfg Config) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{cfg: cfg, log: cfg.Logger.With("component", "transport.mqtt")}
}

// Start connects to the MQTT broker.
func (p *Publisher) Start() error {
	if p.cfg.Broker == "" {
		return errors.New("transport/mqtt: broker URL is required")
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "dot15d4-bridge-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(p.onConnected).
		SetConnectionLostHandler(p.onConnectionLost)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("transport/mqtt: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("transport/mqtt: connect: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(1000)
		p.connected = false
	}
	return nil
}

// IsConnected reports whether the publisher is connected to the broker.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Publish publishes a decoded frame's summary.
func (p *Publisher) Publish(fr frame.Frame, raw []byte) error {
	if !p.IsConnected() {
		return errors.New("transport/mqtt: not connected")
	}

	panID, _, _ := fr.Addressing().DstPanID()
	dstAddr, _ := fr.Addressing().DstAddress()
	srcAddr, _ := fr.Addressing().SrcAddress()

	summary := Summary{
		FrameType:  frameTypeName(fr.FrameControl().FrameType()),
		PayloadLen: len(fr.Payload()),
		SrcAddress: srcAddr.String(),
		DstAddress: dstAddr.String(),
	}
	if seq, ok := fr.SequenceNumber(); ok {
		summary.Sequence = &seq
	}
	if panID != 0 {
		summary.DstPanID = &panID
	}
	if p.cfg.PublishRaw {
		summary.RawBase64 = base64.StdEncoding.EncodeToString(raw)
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("transport/mqtt: marshal summary: %w", err)
	}

	var shortAddr uint16
	if dstAddr.IsShort() {
		b := dstAddr.Bytes()
		shortAddr = uint16(b[0])<<8 | uint16(b[1])
	}
	topic := fmt.Sprintf("%s/%04x/%04x", p.cfg.TopicPrefix, panID, shortAddr)

	token := p.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("transport/mqtt: publish timeout")
	}
	return token.Error()
}

func frameTypeName(t frame.FrameType) string {
	switch t {
	case frame.FrameTypeBeacon:
		return "beacon"
	case frame.FrameTypeData:
		return "data"
	case frame.FrameTypeAck:
		return "ack"
	case frame.FrameTypeMACCommand:
		return "mac_command"
	case frame.FrameTypeMultipurpose:
		return "multipurpose"
	default:
		return "unknown"
	}
}

func (p *Publisher) onConnected(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.log.Info("connected to mqtt broker", "broker", p.cfg.Broker)
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Error("mqtt connection lost", "error", err)
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
