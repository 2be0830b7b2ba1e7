package sarama

import (
	"context"
	"fmt"
	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"sync"
	"time"
)

const retryInterval = 2 * time.Second

const (
	metricEndToEndLatency = `consumer_end_to_end_latency_microseconds`
	metricReBalancing     = `consumer_rebalancing`
)

type groupConsumer struct {
	group     sarama.ConsumerGroup
	logger    log.Logger
	reporter  metrics.Reporter
	closeOnce sync.Once
}

// GroupConsumerBuilder returns a kafka.GroupConsumerBuilder creating sarama consumer groups.
func GroupConsumerBuilder() kafka.GroupConsumerBuilder {
	return func(config *kafka.GroupConsumerConfig) (kafka.GroupConsumer, error) {
		return NewGroupConsumer(config)
	}
}

func NewGroupConsumer(config *kafka.GroupConsumerConfig) (kafka.GroupConsumer, error) {
	saramaConf, err := groupConsumerConfig(config)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupId, saramaConf)
	if err != nil {
		return nil, errors.Wrap(err, `failed to create consumer`)
	}

	return &groupConsumer{
		group:    group,
		logger:   config.Logger.NewLog(log.Prefixed(`GroupConsumer`)),
		reporter: config.MetricsReporter.Reporter(metrics.ReporterConf{
			ConstLabels: map[string]string{`consumer_id`: config.Id},
		}),
	}, nil
}

func (g *groupConsumer) Consume(ctx context.Context, tps []string, handler kafka.RecordHandler) error {
	gHandler := newGroupHandler(handler, g.logger, g.reporter)
	defer gHandler.cleanUpMetrics()

	go g.logErrors(ctx)

CLoop:
	for {
		if err := g.group.Consume(ctx, tps, gHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				break CLoop
			}

			g.logger.Error(fmt.Sprintf(`consumer err (%s) while consuming. retrying in %s`, err, retryInterval))
			select {
			case <-time.After(retryInterval):
				continue CLoop
			case <-ctx.Done():
				break CLoop
			}
		}

		// Consume returns on every rebalance, the loop re-joins unless the consumer is stopping
		select {
		case <-ctx.Done():
			g.logger.Info(fmt.Sprintf(`stopping consumer due to %s`, ctx.Err()))
			break CLoop
		default:
		}
	}

	g.logger.Info(`consumer stopped`)

	return nil
}

func (g *groupConsumer) logErrors(ctx context.Context) {
	for {
		select {
		case err, ok := <-g.group.Errors():
			if !ok {
				return
			}
			g.logger.Error(fmt.Sprintf(`consumer error: %s`, err))
		case <-ctx.Done():
			return
		}
	}
}

func (g *groupConsumer) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.group.Close()
	})

	return err
}

type groupHandler struct {
	handler  kafka.RecordHandler
	logger   log.Logger
	reporter metrics.Reporter
	metrics  struct {
		endToEndLatency metrics.Observer
		reBalancing     metrics.Gauge
	}
}

func newGroupHandler(handler kafka.RecordHandler, logger log.Logger, reporter metrics.Reporter) *groupHandler {
	h := &groupHandler{
		handler:  handler,
		logger:   logger,
		reporter: reporter,
	}
	h.metrics.endToEndLatency = reporter.Observer(metrics.MetricConf{
		Path:   metricEndToEndLatency,
		Labels: []string{`topic`, `partition`},
	})
	h.metrics.reBalancing = reporter.Gauge(metrics.MetricConf{
		Path: metricReBalancing,
	})

	return h
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.metrics.reBalancing.Count(0, nil)
	h.logger.Info(fmt.Sprintf(`partitions assigned %v`, session.Claims()))
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.metrics.reBalancing.Count(1, nil)
	h.logger.Info(fmt.Sprintf(`partitions revoked %v`, session.Claims()))
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.handle(session, msg)
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) handle(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	var headers kafka.RecordHeaders
	for _, hd := range msg.Headers {
		if hd == nil {
			continue
		}
		headers = append(headers, kafka.RecordHeader{Key: hd.Key, Value: hd.Value})
	}

	record := kafka.NewRecord(session.Context(), msg.Key, msg.Value, kafka.RecordMeta{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Timestamp,
		Headers:   headers,
	})

	// The record is marked even when the handler fails, failures are reported by the handler itself.
	if err := h.handler(session.Context(), record); err != nil {
		h.logger.Error(fmt.Sprintf(`record %s failed due to %s`, record, err))
	}

	session.MarkMessage(msg, ``)

	if !msg.Timestamp.IsZero() {
		h.metrics.endToEndLatency.Observe(float64(time.Since(msg.Timestamp).Microseconds()), map[string]string{
			`topic`:     msg.Topic,
			`partition`: fmt.Sprint(msg.Partition),
		})
	}
}

func (h *groupHandler) cleanUpMetrics() {
	// evicts the reporter cache as well, the next session registers fresh collectors
	h.reporter.UnRegister(metricEndToEndLatency)
	h.reporter.UnRegister(metricReBalancing)
}
