package backend

import (
	"context"
	"strings"
	"testing"
)

// TestFactoryRegister проверяет регистрацию и перечисление типов
func TestFactoryRegister(t *testing.T) {
	f := NewFactory()
	if f.IsRegistered("stub") {
		t.Error("IsRegistered(stub) = true for empty factory")
	}

	f.Register("stub", func() Backend { return &stubBackend{} })

	if !f.IsRegistered("stub") {
		t.Error("IsRegistered(stub) = false after Register")
	}
	types := f.RegisteredTypes()
	if len(types) != 1 || types[0] != "stub" {
		t.Errorf("RegisteredTypes() = %v, want [stub]", types)
	}
}

// TestFactoryCreate проверяет создание и подключение backend'а
func TestFactoryCreate(t *testing.T) {
	f := NewFactory()
	f.Register("stub", func() Backend { return &stubBackend{} })

	b, err := f.Create(context.Background(), Config{Type: "stub", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if b.BackendType() != "stub" {
		t.Errorf("BackendType() = %s, want stub", b.BackendType())
	}
}

// TestFactoryCreateErrors проверяет ошибки создания
func TestFactoryCreateErrors(t *testing.T) {
	f := NewFactory()
	f.Register("stub", func() Backend { return &stubBackend{} })

	tests := []struct {
		name      string
		cfg       Config
		errSubstr string
	}{
		{
			name:      "unknown type",
			cfg:       Config{Type: "oracle", DSN: "x"},
			errSubstr: "unknown backend type: oracle",
		},
		{
			name:      "missing type",
			cfg:       Config{DSN: "x"},
			errSubstr: "invalid backend config",
		},
		{
			name:      "missing dsn",
			cfg:       Config{Type: "stub"},
			errSubstr: "invalid backend config",
		},
		{
			name:      "negative max conns",
			cfg:       Config{Type: "stub", DSN: "x", MaxConns: -1},
			errSubstr: "max_conns",
		},
		{
			name:      "min above max",
			cfg:       Config{Type: "stub", DSN: "x", MaxConns: 2, MinConns: 5},
			errSubstr: "min_conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Create(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("Create() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("Create() error = %q, want substring %q", err.Error(), tt.errSubstr)
			}
		})
	}
}

// TestFactoryCreateWithoutConnect проверяет создание без подключения
func TestFactoryCreateWithoutConnect(t *testing.T) {
	f := NewFactory()
	f.Register("stub", func() Backend { return &stubBackend{} })

	b, err := f.CreateWithoutConnect("stub")
	if err != nil {
		t.Fatalf("CreateWithoutConnect() failed: %v", err)
	}
	if b.BackendType() != "stub" {
		t.Errorf("BackendType() = %s, want stub", b.BackendType())
	}

	if _, err := f.CreateWithoutConnect("oracle"); err == nil {
		t.Error("CreateWithoutConnect(oracle) succeeded, want error")
	}
}

// TestConfigDefaults проверяет значения по умолчанию конфигурации
func TestConfigDefaults(t *testing.T) {
	cfg := Config{Type: "sqlite", DSN: ":memory:"}
	cfg.SetDefaults()
	if cfg.Timeout == 0 {
		t.Error("SetDefaults() left Timeout zero")
	}
	if cfg.MaxConns == 0 {
		t.Error("SetDefaults() left MaxConns zero")
	}
}
