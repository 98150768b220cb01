// Package notify accumulates pending notifications per recipient and fans
// them out live over the recipient's channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const keyPrefix = "push:notifications:"

// EventRef names the question or comment an event points at.
type EventRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Event is one pending notification. The JSON keys match the stored wire
// format consumed by existing clients.
type Event struct {
	Question EventRef  `json:"question"`
	Comment  EventRef  `json:"notification"`
	Time     time.Time `json:"time"`
}

// KV is the key-value pub/sub capability the relay consumes.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string) ([]string, error)
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
}

// Relay appends events to the recipient's pending list and publishes them on
// the recipient's channel. The default storage is a Redis list appended with
// an atomic push. Legacy mode reproduces the historical behavior instead: the
// whole list lives under one string key and appends rewrite it through a
// get/modify/set sequence, which loses updates under concurrent writers.
type Relay struct {
	kv     KV
	legacy bool
	log    *zap.Logger
}

func NewRelay(kv KV, legacyAppend bool, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{kv: kv, legacy: legacyAppend, log: log}
}

func Key(recipientID string) string {
	return keyPrefix + recipientID
}

// Notify stores the event on the recipient's pending list and publishes it.
func (r *Relay) Notify(ctx context.Context, recipientID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	key := Key(recipientID)
	if r.legacy {
		if err := r.legacyAppend(ctx, key, string(payload)); err != nil {
			return err
		}
	} else {
		if err := r.kv.RPush(ctx, key, string(payload)); err != nil {
			return fmt.Errorf("store notification: %w", err)
		}
	}

	if err := r.kv.Publish(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// legacyAppend splices the encoded event into the serialized JSON array.
// Unparseable prior state is discarded and the list restarted, dropping
// whatever was stored before.
func (r *Relay) legacyAppend(ctx context.Context, key, payload string) error {
	stored, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read notifications: %w", err)
	}

	var updated string
	switch {
	case !found:
		updated = "[" + payload + "]"
	case !strings.HasPrefix(stored, "[") || !strings.HasSuffix(stored, "]"):
		r.log.Warn("discarding malformed notification state", zap.String("key", key))
		updated = "[" + payload + "]"
	default:
		updated = stored[:len(stored)-1] + "," + payload + "]"
	}

	if err := r.kv.Set(ctx, key, updated); err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}
	return nil
}

// Pending returns the recipient's stored notifications in arrival order.
// Malformed state is absorbed: the caller gets an empty list, not an error.
func (r *Relay) Pending(ctx context.Context, recipientID string) ([]Event, error) {
	key := Key(recipientID)
	if r.legacy {
		stored, found, err := r.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read notifications: %w", err)
		}
		if !found {
			return nil, nil
		}
		var events []Event
		if err := json.Unmarshal([]byte(stored), &events); err != nil {
			r.log.Warn("discarding malformed notification state", zap.String("key", key), zap.Error(err))
			return nil, nil
		}
		return events, nil
	}

	payloads, err := r.kv.LRange(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}
	events := make([]Event, 0, len(payloads))
	for _, payload := range payloads {
		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			r.log.Warn("skipping malformed notification entry", zap.String("key", key), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Subscribe streams the recipient's live notifications until the context ends
// or the stop function runs. Payloads that fail to decode are dropped.
func (r *Relay) Subscribe(ctx context.Context, recipientID string) (<-chan Event, func(), error) {
	payloads, stop, err := r.kv.Subscribe(ctx, Key(recipientID))
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for payload := range payloads {
			var event Event
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				r.log.Warn("skipping malformed notification payload", zap.String("recipient", recipientID), zap.Error(err))
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, stop, nil
}
