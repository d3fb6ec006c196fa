// internal/service/promotion/infrastructure/event_log.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/pkg/mq"
	"nexus-promotion/internal/service/promotion/domain"
)

// 事件类型，写在消息体里方便下游按类型分流
const (
	eventKindExposure   = "experiment.exposure"
	eventKindConversion = "experiment.conversion"
)

// eventEnvelope 是发往 Kafka 的消息体
type eventEnvelope struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// KafkaEventLog 把曝光和转化发到各自的 topic，key 为标识，保证同一用户的事件有序
type KafkaEventLog struct {
	exposures   *kafka.Writer
	conversions *kafka.Writer
}

// NewKafkaEventLog 创建 Kafka 事件日志
func NewKafkaEventLog(brokers []string, exposureTopic, conversionTopic string) *KafkaEventLog {
	return &KafkaEventLog{
		exposures:   mq.NewKafkaWriter(brokers, exposureTopic),
		conversions: mq.NewKafkaWriter(brokers, conversionTopic),
	}
}

func (l *KafkaEventLog) LogExposure(ctx context.Context, e *domain.ExposureEvent) error {
	return l.publish(ctx, l.exposures, e.Identifier, eventEnvelope{Kind: eventKindExposure, Payload: e})
}

func (l *KafkaEventLog) LogConversion(ctx context.Context, e *domain.ConversionEvent) error {
	return l.publish(ctx, l.conversions, e.Identifier, eventEnvelope{Kind: eventKindConversion, Payload: e})
}

func (l *KafkaEventLog) publish(ctx context.Context, w *kafka.Writer, key string, env eventEnvelope) error {
	eventBytes, err := json.Marshal(env)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("kind", env.Kind).Msg("failed to marshal event")
		return err
	}
	// mq.ProduceMessage 会自动注入追踪上下文
	return mq.ProduceMessage(ctx, w, []byte(key), eventBytes)
}

// Close 关闭两个写入器
func (l *KafkaEventLog) Close() error {
	errExp := l.exposures.Close()
	errConv := l.conversions.Close()
	if errExp != nil {
		return errExp
	}
	return errConv
}

// LogEventLog 只把事件写进结构化日志，用于没有消息队列的环境
type LogEventLog struct{}

func (LogEventLog) LogExposure(ctx context.Context, e *domain.ExposureEvent) error {
	logger.Ctx(ctx).Info().
		Str("kind", eventKindExposure).
		Str("experiment_id", e.ExperimentID).
		Str("variant_id", e.VariantID).
		Str("identifier", e.Identifier).
		Strs("offer_ids", e.OfferIDs).
		Msg("exposure")
	return nil
}

func (LogEventLog) LogConversion(ctx context.Context, e *domain.ConversionEvent) error {
	logger.Ctx(ctx).Info().
		Str("kind", eventKindConversion).
		Str("experiment_id", e.ExperimentID).
		Str("variant_id", e.VariantID).
		Str("identifier", e.Identifier).
		Str("order_id", e.OrderID).
		Float64("revenue", e.Revenue).
		Msg("conversion")
	return nil
}
