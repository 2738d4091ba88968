package audit

import (
	"context"
	"fmt"

	"github.com/ruslano69/tpcc-workbench/pkg/brokers"
)

// BrokerAppender публикует записи журнала в message broker (Kafka или
// RabbitMQ) как JSON-события. Используется для телеметрии транзакций:
// внешние подписчики получают исход каждого протокола.
type BrokerAppender struct {
	broker brokers.MessageBroker
	level  Level
}

// NewBrokerAppender - создать appender поверх подключенного брокера
func NewBrokerAppender(broker brokers.MessageBroker, level Level) *BrokerAppender {
	return &BrokerAppender{broker: broker, level: level}
}

// Append - опубликовать entry в брокер
func (ba *BrokerAppender) Append(ctx context.Context, entry *Entry) error {
	data, err := entry.FilterByLevel(ba.level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := ba.broker.Send(ctx, data); err != nil {
		return fmt.Errorf("failed to publish entry to %s: %w", ba.broker.GetBrokerType(), err)
	}
	return nil
}

// Close - закрыть соединение с брокером
func (ba *BrokerAppender) Close() error {
	return ba.broker.Close()
}
