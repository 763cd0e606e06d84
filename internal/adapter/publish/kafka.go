package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/pattern"
)

const (
	defaultRetryAttempts       = 5
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 2 * time.Second
	defaultRetryJitter         = 0.2
	defaultWriteTimeout        = 10 * time.Second
)

// KafkaPublisher forwards normalized new-block events to a Kafka topic for
// downstream consumers (arbitrage detectors, execution managers).
type KafkaPublisher struct {
	log          applog.AppLogger
	client       *kgo.Client
	cfg          Config
	writeTimeout time.Duration
	retryOpts    []pattern.RetryOption
}

// NewKafkaPublisher builds a Kafka-backed publisher with validated configuration and retry settings.
func NewKafkaPublisher(log applog.AppLogger, cfg Config, v *validator.Validate) (*KafkaPublisher, error) {
	if err := v.Struct(cfg); err != nil {
		return nil, apperr.NewInvalidArgErr("invalid kafka publisher config", err)
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultRetryAttempts
	}

	initialBackoff := millisecondsOrDefault(cfg.RetryInitialBackoffMS, defaultRetryInitialBackoff)
	maxBackoff := millisecondsOrDefault(cfg.RetryMaxBackoffMS, defaultRetryMaxBackoff)
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	writeTimeout := secondsOrDefault(cfg.WriteTimeoutSeconds, defaultWriteTimeout)
	jitter := cfg.RetryJitter
	if jitter <= 0 {
		jitter = defaultRetryJitter
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.TransactionalID != "" {
		opts = append(opts, kgo.TransactionalID(cfg.TransactionalID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, apperr.NewInvalidArgErr("failed to init kafka client", err)
	}

	kp := &KafkaPublisher{
		log:          log,
		client:       client,
		cfg:          cfg,
		writeTimeout: writeTimeout,
	}

	kp.retryOpts = []pattern.RetryOption{
		pattern.WithMaxAttempts(maxAttempts),
		pattern.WithInitialDelay(initialBackoff),
		pattern.WithMaxDelay(maxBackoff),
		pattern.WithJitter(jitter),
		pattern.WithShouldRetry(kp.shouldRetry),
	}

	return kp, nil
}

// PublishBlockEvent serializes and publishes a new-block event using an
// idempotent chain+number key and retries. Consumers dedupe on the key, so
// at-least-once delivery within a session is acceptable.
func (kp *KafkaPublisher) PublishBlockEvent(ctx context.Context, ev entity.BlockEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		kp.log.Error("failed to marshal block event", "err", err)
		return apperr.NewBlockPublishErr("failed to marshal block event", err)
	}

	rec := kp.buildRecord(ev, payload)
	if err := pattern.Retry(ctx, func(attempt int) error {
		if kp.cfg.TransactionalID != "" {
			if err := kp.client.BeginTransaction(); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, kp.writeTimeout)
		defer cancel()

		imetrics.Kafka().ProduceAttemptsTotal.Inc()
		start := time.Now()
		res := kp.client.ProduceSync(attemptCtx, rec)
		writeErr := res.FirstErr()
		imetrics.Kafka().ProduceLatencyMS.Observe(float64(time.Since(start).Milliseconds()))

		if kp.cfg.TransactionalID != "" {
			if writeErr == nil {
				if err := kp.client.EndTransaction(context.Background(), kgo.TryCommit); err != nil {
					writeErr = err
				}
			} else {
				_ = kp.client.EndTransaction(context.Background(), kgo.TryAbort)
			}
		}

		if writeErr != nil {
			imetrics.Kafka().ProduceErrorsTotal.WithLabelValues(classifyKafkaError(writeErr)).Inc()
			if kp.shouldRetry(writeErr) {
				kp.log.Warn("kafka publish attempt failed", "attempt", attempt, "chain", ev.ChainID, "number", ev.Number, "topic", kp.cfg.Topic, "err", writeErr)
			} else {
				kp.log.Error("kafka publish failed (non-retriable)", "chain", ev.ChainID, "number", ev.Number, "topic", kp.cfg.Topic, "err", writeErr)
			}
			return writeErr
		}
		imetrics.Kafka().ProduceSuccessTotal.Inc()
		return nil
	}, kp.retryOpts...); err != nil {
		return apperr.NewBlockPublishErr("failed to publish block event to kafka", err)
	}

	kp.log.Trace("published block event to kafka", "topic", kp.cfg.Topic, "chain", ev.ChainID, "number", ev.Number)
	return nil
}

// Close flushes and releases the underlying client.
func (kp *KafkaPublisher) Close() {
	kp.client.Close()
}

func (kp *KafkaPublisher) buildRecord(ev entity.BlockEvent, payload []byte) *kgo.Record {
	chain := strconv.FormatUint(ev.ChainID, 10)
	number := strconv.FormatUint(ev.Number, 10)
	return &kgo.Record{
		Topic: kp.cfg.Topic,
		Key:   []byte(chain + ":" + number),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "chain-id", Value: []byte(chain)},
			{Key: "block-number", Value: []byte(number)},
		},
	}
}

func (kp *KafkaPublisher) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	// Treat broker-marked retriable errors as retryable (leader changes,
	// coordinator load, not enough replicas, etc.).
	if kerr.IsRetriable(err) {
		return true
	}

	// When the topic may be provisioned shortly after startup, temporarily
	// retry UnknownTopicOrPartition to allow the provisioner to catch up.
	if errors.Is(err, kerr.UnknownTopicOrPartition) {
		return true
	}
	return false
}

func classifyKafkaError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case kerr.IsRetriable(err):
		return "retriable"
	default:
		return "other"
	}
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
