package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/partner-tracker/pkg/file"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Options holds the broker connection settings.
type Options struct {
	Broker         string
	ClientID       string
	CACertificate  string // Path to a PEM CA bundle; empty disables TLS configuration
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// ConnectionNotifier is implemented by clients that report broker connection
// changes. onConnect runs after every successful (re)connect and onLost when
// the connection drops. Both run off the caller's goroutine.
type ConnectionNotifier interface {
	OnConnectionChange(onConnect func(), onLost func(error))
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger

	mu        sync.Mutex
	onConnect []func()
	onLost    []func(error)
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient: fileClient,
		logger:     logger,
	}
}

// Initialize sets up the MQTT client and connects to the broker.
func (s *MqttService) Initialize(o Options) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.ConnectTimeout > 0 {
		opts.SetConnectTimeout(o.ConnectTimeout)
	}

	if o.CACertificate != "" {
		tlsConfig, err := s.tlsConfig(o.CACertificate)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	// Clean sessions drop subscriptions on the broker, so listeners of
	// OnConnectionChange resubscribe from the connect hook.
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Str("broker", o.Broker).Msg("MQTT connection lost")
		s.connectionLost(err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.logger.Info().Str("broker", o.Broker).Msg("MQTT connected")
		s.connected()
	})

	s.client = mqtt.NewClient(opts)

	token := s.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to %s: %w", o.Broker, token.Error())
	}
	return nil
}

func (s *MqttService) tlsConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := s.fileClient.ReadFileRaw(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA certificate")
	}
	return &tls.Config{RootCAs: caCertPool, MinVersion: tls.VersionTLS12}, nil
}

// OnConnectionChange registers hooks for connection changes.
func (s *MqttService) OnConnectionChange(onConnect func(), onLost func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if onConnect != nil {
		s.onConnect = append(s.onConnect, onConnect)
	}
	if onLost != nil {
		s.onLost = append(s.onLost, onLost)
	}
}

func (s *MqttService) connected() {
	s.mu.Lock()
	hooks := append([]func(){}, s.onConnect...)
	s.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (s *MqttService) connectionLost(err error) {
	s.mu.Lock()
	hooks := append([]func(error){}, s.onLost...)
	s.mu.Unlock()
	for _, h := range hooks {
		h(err)
	}
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to the specified topic with a message handler.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	return s.client.Unsubscribe(topics...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}
