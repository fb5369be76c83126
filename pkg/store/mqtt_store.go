package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/partner-tracker/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTStore keeps each slot in a retained message on "<prefix>/<slot>". A
// retained publish replaces the previous value and new subscribers receive it
// first, which is all a slot needs.
//
// Each topic has one broker subscription shared by all of its watchers. When
// the client reports a reconnect the subscriptions are issued again and the
// retained value arrives as a fresh snapshot.
type MQTTStore struct {
	client  mqtt.MQTTClient
	prefix  string
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	topics  map[string]*topicWatch
	nextID  uint64
}

type topicWatch struct {
	slot      string
	listeners map[uint64]Listener
	last      *Snapshot
}

// NewMQTTStore creates a store on top of a connected client. timeout bounds the
// wait for subscribe and unsubscribe acknowledgements; zero waits forever.
func NewMQTTStore(client mqtt.MQTTClient, prefix string, qos int, timeout time.Duration, logger zerolog.Logger) *MQTTStore {
	s := &MQTTStore{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     byte(qos),
		timeout: timeout,
		logger:  logger,
		topics:  make(map[string]*topicWatch),
	}
	if n, ok := client.(mqtt.ConnectionNotifier); ok {
		n.OnConnectionChange(s.resubscribe, s.connectionLost)
	}
	return s
}

func (s *MQTTStore) topic(slot string) string {
	if s.prefix == "" {
		return slot
	}
	return s.prefix + "/" + slot
}

// Set publishes data as the retained value of the slot.
func (s *MQTTStore) Set(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	topic := s.topic(slot)

	token := s.client.Publish(topic, s.qos, true, data)
	if err := waitToken(ctx, token); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to write slot")
		return err
	}

	s.logger.Debug().Str("topic", topic).Int("bytes", len(data)).Msg("Slot written")
	return nil
}

// Watch subscribes to the slot topic. An empty retained payload means the slot
// was cleared. A second watcher of the same slot shares the subscription and
// starts from the last value seen on it.
func (s *MQTTStore) Watch(ctx context.Context, slot string, l Listener) (Subscription, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}
	topic := s.topic(slot)

	s.mu.Lock()
	tw, exists := s.topics[topic]
	if !exists {
		tw = &topicWatch{slot: slot, listeners: make(map[uint64]Listener)}
		s.topics[topic] = tw
	}
	id := s.nextID
	s.nextID++
	tw.listeners[id] = l
	var last *Snapshot
	if tw.last != nil {
		snap := *tw.last
		last = &snap
	}
	s.mu.Unlock()

	if !exists {
		if err := s.subscribe(ctx, topic); err != nil {
			s.removeListener(topic, id)
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to watch slot")
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		s.logger.Info().Str("topic", topic).Msg("Watching slot")
	} else if last != nil {
		l.OnDataChange(*last)
	}

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() { s.unwatch(topic, id) })
	}), nil
}

func (s *MQTTStore) subscribe(ctx context.Context, topic string) error {
	return s.wait(ctx, s.client.Subscribe(topic, s.qos, s.handle))
}

// handle fans a message out to every watcher of its topic.
func (s *MQTTStore) handle(_ MQTT.Client, msg MQTT.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	s.mu.Lock()
	tw, ok := s.topics[topic]
	if !ok {
		s.mu.Unlock()
		return
	}
	snap := Snapshot{
		Slot:   tw.slot,
		Exists: len(payload) > 0,
		Value:  append([]byte(nil), payload...),
	}
	tw.last = &snap
	listeners := tw.ordered()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnDataChange(snap)
	}
}

func (tw *topicWatch) ordered() []Listener {
	ids := make([]uint64, 0, len(tw.listeners))
	for id := range tw.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, tw.listeners[id])
	}
	return out
}

// removeListener drops one watcher and reports whether it was the topic's last.
func (s *MQTTStore) removeListener(topic string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tw, ok := s.topics[topic]
	if !ok {
		return false
	}
	delete(tw.listeners, id)
	if len(tw.listeners) > 0 {
		return false
	}
	delete(s.topics, topic)
	return true
}

func (s *MQTTStore) unwatch(topic string, id uint64) {
	if !s.removeListener(topic, id) {
		return
	}
	if err := s.wait(context.Background(), s.client.Unsubscribe(topic)); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from slot")
		return
	}
	s.logger.Info().Str("topic", topic).Msg("Stopped watching slot")
}

// resubscribe runs after every connect. The broker forgets subscriptions of a
// clean session, so each watched topic is subscribed again.
func (s *MQTTStore) resubscribe() {
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.mu.Unlock()
	slices.Sort(topics)

	for _, topic := range topics {
		if err := s.subscribe(context.Background(), topic); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to resubscribe to slot")
			s.cancelListeners(topic, fmt.Errorf("failed to resubscribe to %s: %w", topic, err))
			continue
		}
		s.logger.Info().Str("topic", topic).Msg("Resubscribed to slot")
	}
}

// connectionLost tells every watcher that updates are interrupted.
func (s *MQTTStore) connectionLost(err error) {
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.mu.Unlock()
	slices.Sort(topics)

	for _, topic := range topics {
		s.cancelListeners(topic, fmt.Errorf("connection to broker lost: %w", err))
	}
}

func (s *MQTTStore) cancelListeners(topic string, err error) {
	s.mu.Lock()
	tw, ok := s.topics[topic]
	var listeners []Listener
	if ok {
		listeners = tw.ordered()
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnCancelled(err)
	}
}

func (s *MQTTStore) wait(ctx context.Context, token MQTT.Token) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return waitToken(ctx, token)
}

// Close unsubscribes every remaining watch. The client itself is owned by the caller.
func (s *MQTTStore) Close() error {
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.topics = make(map[string]*topicWatch)
	s.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	slices.Sort(topics)
	return s.wait(context.Background(), s.client.Unsubscribe(topics...))
}

// waitToken blocks until the token completes or ctx is done.
func waitToken(ctx context.Context, token MQTT.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("mqtt operation timed out: %w", ctx.Err())
		}
		return ctx.Err()
	}
}
