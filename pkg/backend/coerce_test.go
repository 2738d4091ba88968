package backend

import (
	"errors"
	"math"
	"testing"
	"time"
)

// TestCoerce проверяет приведение значений к скалярному домену контракта
func TestCoerce(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)

	tests := []struct {
		name     string
		input    any
		want     any
		wantType TypeTag
		wantErr  bool
	}{
		{name: "nil", input: nil, want: nil, wantType: TypeNull},
		{name: "bool true", input: true, want: true, wantType: TypeBool},
		{name: "bool false", input: false, want: false, wantType: TypeBool},
		{name: "int", input: 42, want: int64(42), wantType: TypeInt},
		{name: "int8", input: int8(-5), want: int64(-5), wantType: TypeInt},
		{name: "int32", input: int32(100), want: int64(100), wantType: TypeInt},
		{name: "int64", input: int64(1 << 40), want: int64(1 << 40), wantType: TypeInt},
		{name: "uint16", input: uint16(65535), want: int64(65535), wantType: TypeInt},
		{name: "uint64 in range", input: uint64(12), want: int64(12), wantType: TypeInt},
		{name: "uint64 overflow", input: uint64(math.MaxUint64), wantErr: true},
		{name: "float32", input: float32(1.5), want: float64(1.5), wantType: TypeFloat},
		{name: "float64", input: 3999.99, want: 3999.99, wantType: TypeFloat},
		{name: "string", input: "BARBARBAR", want: "BARBARBAR", wantType: TypeText},
		{name: "bytes become text", input: []byte("GC"), want: "GC", wantType: TypeText},
		{
			name:     "time in utc",
			input:    time.Date(2024, 3, 15, 10, 30, 0, 123456000, time.UTC),
			want:     "2024-03-15T10:30:00.123456Z",
			wantType: TypeTimestamp,
		},
		{
			name:     "time converted to utc",
			input:    time.Date(2024, 3, 15, 13, 30, 0, 0, msk),
			want:     "2024-03-15T10:30:00Z",
			wantType: TypeTimestamp,
		},
		{name: "nil time pointer", input: (*time.Time)(nil), want: nil, wantType: TypeNull},
		{name: "unsupported struct", input: struct{ X int }{1}, wantErr: true},
		{name: "unsupported slice", input: []int{1, 2}, wantErr: true},
		{name: "unsupported map", input: map[string]int{"a": 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tag, err := Coerce(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Coerce(%v) expected error, got %v (%s)", tt.input, got, tag)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
			}
			if tag != tt.wantType {
				t.Errorf("Coerce(%v) type = %s, want %s", tt.input, tag, tt.wantType)
			}
		})
	}
}

// TestCoerceTimePointer проверяет ненулевой указатель на время
func TestCoerceTimePointer(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got, tag, err := Coerce(&ts)
	if err != nil {
		t.Fatalf("Coerce(*time.Time) failed: %v", err)
	}
	if got != "2024-06-01T12:00:00Z" {
		t.Errorf("Coerce(*time.Time) = %v, want 2024-06-01T12:00:00Z", got)
	}
	if tag != TypeTimestamp {
		t.Errorf("Coerce(*time.Time) type = %s, want %s", tag, TypeTimestamp)
	}
}

// TestCoerceErrorType проверяет тип ошибки для неподдерживаемого значения
func TestCoerceErrorType(t *testing.T) {
	_, _, err := Coerce(make(chan int))
	var cerr *CoercionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Coerce(chan) error type = %T, want *CoercionError", err)
	}
	if cerr.GoType != "chan int" {
		t.Errorf("CoercionError.GoType = %q, want %q", cerr.GoType, "chan int")
	}
}

// TestFormatTimestamp проверяет канонический рендеринг временных меток
func TestFormatTimestamp(t *testing.T) {
	kamchatka := time.FixedZone("PETT", 12*60*60)

	tests := []struct {
		name  string
		input time.Time
		want  string
	}{
		{
			name:  "whole seconds drop fraction",
			input: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			want:  "2024-01-02T03:04:05Z",
		},
		{
			name:  "trailing zeros trimmed",
			input: time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC),
			want:  "2024-01-02T03:04:05.5Z",
		},
		{
			name:  "microsecond precision",
			input: time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC),
			want:  "2024-01-02T03:04:05.123456Z",
		},
		{
			name:  "zoned time rendered in utc",
			input: time.Date(2024, 1, 2, 15, 4, 5, 0, kamchatka),
			want:  "2024-01-02T03:04:05Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimestamp(tt.input); got != tt.want {
				t.Errorf("FormatTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCoerceRowValue проверяет нормализацию значений из драйвера:
// неизвестный тип не роняет чтение, а рендерится текстом
func TestCoerceRowValue(t *testing.T) {
	got, tag := CoerceRowValue(int32(5))
	if got != int64(5) || tag != TypeInt {
		t.Errorf("CoerceRowValue(int32) = %v (%s), want 5 (int)", got, tag)
	}

	got, tag = CoerceRowValue(struct{ X int }{7})
	if tag != TypeText {
		t.Errorf("CoerceRowValue(struct) type = %s, want %s", tag, TypeText)
	}
	if got != "{7}" {
		t.Errorf("CoerceRowValue(struct) = %v, want {7}", got)
	}
}
