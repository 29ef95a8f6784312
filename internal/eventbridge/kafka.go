//go:build enterprise
// +build enterprise

// Package eventbridge provides an optional, build-tag-gated alternative
// trigger path for on_event: a Kafka consumer that reads host-fired event
// envelopes off a topic instead of receiving in-process calls. Grounded on
// the teacher's internal/orchestrator/kafka.go worker-pool-over-channel
// consumer and handler.go's isTransientError heuristic. See SPEC_FULL.md §6.
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"sentinel/internal/config"
	"sentinel/internal/fingerprint"
	"sentinel/internal/hook"
)

// EventEnvelope is the wire shape a host publishes to trigger on_event
// out-of-process.
type EventEnvelope struct {
	EventName string                            `json:"event_name"`
	Messages  []fingerprint.ConversationMessage `json:"messages"`
}

const workerCount = 4
const maxAttempts = 3

// StartConsumer runs until ctx is canceled, reading envelopes off
// cfg.Topic, calling orchestrator.OnEvent for each, and retrying transient
// failures up to maxAttempts before publishing to the DLQ topic.
func StartConsumer(ctx context.Context, cfg config.EventBridgeConfig, orchestrator *hook.Orchestrator) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("eventbridge_reader_close_failed")
		}
	}()

	writer := &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...)}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Error().Err(err).Msg("eventbridge_writer_close_failed")
		}
	}()

	jobs := make(chan kafka.Message, workerCount*4)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go worker(ctx, i, jobs, reader, writer, cfg.DLQTopic, orchestrator, &wg)
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Warn().Err(err).Msg("eventbridge_fetch_error")
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func worker(ctx context.Context, id int, jobs <-chan kafka.Message, reader *kafka.Reader, writer *kafka.Writer, dlqTopic string, orchestrator *hook.Orchestrator, wg *sync.WaitGroup) {
	defer wg.Done()
	for msg := range jobs {
		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := handle(ctx, orchestrator, msg); err != nil {
				lastErr = err
				if attempt < maxAttempts && isTransientError(err) && ctx.Err() == nil {
					backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
					log.Warn().Err(err).Int("worker", id).Int("attempt", attempt).Dur("backoff", backoff).Msg("eventbridge_retrying")
					timer := time.NewTimer(backoff)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
					}
					continue
				}
				publishDLQ(ctx, writer, dlqTopic, msg, lastErr)
			}
			break
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("eventbridge_commit_failed")
		}
	}
}

func handle(ctx context.Context, orchestrator *hook.Orchestrator, msg kafka.Message) error {
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return err // malformed envelope: not a transient-error string, goes straight to DLQ
	}
	_, err := orchestrator.OnEvent(ctx, env.EventName, hook.Event{Messages: env.Messages})
	return err
}

func publishDLQ(ctx context.Context, writer *kafka.Writer, dlqTopic string, msg kafka.Message, cause error) {
	if dlqTopic == "" {
		return
	}
	reason := "malformed envelope"
	if cause != nil {
		reason = cause.Error()
	}
	if err := writer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: msg.Key, Value: []byte(reason)}); err != nil {
		log.Error().Err(err).Str("dlq_topic", dlqTopic).Msg("eventbridge_dlq_publish_failed")
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporary") ||
		strings.Contains(s, "transient") ||
		strings.Contains(s, "retry") ||
		strings.Contains(s, "too many requests")
}
