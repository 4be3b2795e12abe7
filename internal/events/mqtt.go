package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig holds broker settings for event publishing
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// ConnectMQTT opens an auto-reconnecting broker connection
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Info().Msg("MQTT reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15*time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return client, nil
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "hatscore_" + hex.EncodeToString(b)
}

// MQTTSink publishes each event as JSON to <prefix>/<type>. Publishing is
// asynchronous; delivery failures are logged and otherwise ignored.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTSink returns a sink publishing through client
func NewMQTTSink(client mqtt.Client, prefix string, qos byte) *MQTTSink {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "hatscore"
	}
	return &MQTTSink{client: client, prefix: prefix, qos: qos}
}

// Topic returns the topic an event type is published to
func (s *MQTTSink) Topic(t Type) string {
	return s.prefix + "/" + string(t)
}

func (s *MQTTSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to encode event for MQTT")
		return
	}

	// the latest completed/saved/reset event is retained for late subscribers
	retain := e.Type == TypeCompleted || e.Type == TypeSaved || e.Type == TypeReset

	token := s.client.Publish(s.Topic(e.Type), s.qos, retain, data)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			log.Warn().Str("event", string(e.Type)).Msg("MQTT publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("event", string(e.Type)).Msg("MQTT publish failed")
		}
	}()
}

// Close disconnects from the broker
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
