package brokers

import (
	"strings"
	"testing"
)

// TestFactoryUnsupportedType проверяет отказ фабрики на неизвестном типе
func TestFactoryUnsupportedType(t *testing.T) {
	_, err := New(Config{Type: "zeromq", Queue: "q"})
	if err == nil || !strings.Contains(err.Error(), "unsupported broker type") {
		t.Errorf("New() error = %v, want unsupported broker type", err)
	}
}

// TestRabbitMQValidation проверяет обязательные поля и умолчания
func TestRabbitMQValidation(t *testing.T) {
	if _, err := NewRabbitMQ(Config{Type: "rabbitmq"}); err == nil {
		t.Error("NewRabbitMQ() accepted config without queue name")
	}

	rmq, err := NewRabbitMQ(Config{Type: "rabbitmq", Queue: "telemetry"})
	if err != nil {
		t.Fatalf("Failed to create RabbitMQ broker: %v", err)
	}
	if rmq.config.Host != "localhost" {
		t.Errorf("Host = %q, want %q", rmq.config.Host, "localhost")
	}
	if rmq.config.Port != 5672 {
		t.Errorf("Port = %d, want 5672", rmq.config.Port)
	}
	if rmq.config.VHost != "/" {
		t.Errorf("VHost = %q, want %q", rmq.config.VHost, "/")
	}

	tls, err := NewRabbitMQ(Config{Type: "rabbitmq", Queue: "telemetry", UseTLS: true})
	if err != nil {
		t.Fatalf("Failed to create RabbitMQ broker: %v", err)
	}
	if tls.config.Port != 5671 {
		t.Errorf("Port = %d, want amqps default 5671", tls.config.Port)
	}
}

// TestGetBrokerType проверяет идентификаторы типов брокеров
func TestGetBrokerType(t *testing.T) {
	rmq, err := NewRabbitMQ(Config{Type: "rabbitmq", Queue: "q"})
	if err != nil {
		t.Fatalf("Failed to create RabbitMQ broker: %v", err)
	}
	if got := rmq.GetBrokerType(); got != "rabbitmq" {
		t.Errorf("GetBrokerType() = %q, want %q", got, "rabbitmq")
	}

	k, err := NewKafka(Config{Type: "kafka", Brokers: []string{"localhost:9092"}, Topic: "t"})
	if err != nil {
		t.Fatalf("Failed to create Kafka broker: %v", err)
	}
	if got := k.GetBrokerType(); got != "kafka" {
		t.Errorf("GetBrokerType() = %q, want %q", got, "kafka")
	}
}
