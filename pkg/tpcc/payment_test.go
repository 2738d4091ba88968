package tpcc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/retry"
)

// scriptPaymentReads подготавливает чтения протокола Payment
func scriptPaymentReads(f *fakeBackend, balance float64) {
	f.script("FROM customer",
		[]string{"c_balance", "c_ytd_payment", "c_payment_cnt", "c_credit_lim"},
		[]any{balance, 1200.0, int64(3), 50000.0})
	f.script("FROM warehouse",
		[]string{"w_name", "w_ytd"},
		[]any{"Warehouse123", 300000.0})
	f.script("FROM district",
		[]string{"d_name", "d_ytd"},
		[]any{"DowntownEast", 30000.0})
}

// TestPayment проверяет счастливый путь протокола: три относительных
// обновления одной атомарной группой и баланс после платежа
func TestPayment(t *testing.T) {
	f := newFakeBackend()
	scriptPaymentReads(f, 500.00)
	svc := NewService(f, nil, ServiceConfig{})

	outcome, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID: 2,
		DistrictID:  3,
		CustomerID:  42,
		Amount:      150.00,
	})
	if err != nil {
		t.Fatalf("Payment() failed: %v", err)
	}

	if outcome.PrevBalance != 500.00 {
		t.Errorf("PrevBalance = %.2f, want 500.00", outcome.PrevBalance)
	}
	if outcome.NewBalance != 350.00 {
		t.Errorf("NewBalance = %.2f, want 350.00", outcome.NewBalance)
	}
	if outcome.PaidAt == "" {
		t.Error("PaidAt is empty")
	}

	// Ровно одна атомарная группа из трех обновлений
	if len(f.plans) != 1 {
		t.Fatalf("transactions = %d, want 1", len(f.plans))
	}
	plan := f.plans[0]
	if len(plan) != 3 {
		t.Fatalf("plan statements = %d, want 3", len(plan))
	}
	wantOrder := []string{"UPDATE customer", "UPDATE warehouse", "UPDATE district"}
	for i, prefix := range wantOrder {
		if !strings.HasPrefix(plan[i].Text, prefix) {
			t.Errorf("plan[%d] = %q, want prefix %q", i, plan[i].Text, prefix)
		}
	}

	// Все три обновления несут одну сумму
	for i := range plan {
		args := queryArgs(t, plan[i])
		if args["amount"] != 150.00 {
			t.Errorf("plan[%d] amount = %v, want 150.00", i, args["amount"])
		}
	}

	// Обновления относительные, абсолютный баланс в них не зашит
	if strings.Contains(plan[0].Text, "c_balance = @") {
		t.Error("customer update sets absolute balance, want relative c_balance - @amount")
	}
}

// TestPaymentHData проверяет составную метку history: имена склада и
// района, обрезанные до 10 символов, через четыре пробела
func TestPaymentHData(t *testing.T) {
	f := newFakeBackend()
	scriptPaymentReads(f, 500.00)
	svc := NewService(f, nil, ServiceConfig{})

	outcome, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID: 1, DistrictID: 1, CustomerID: 1, Amount: 10.00,
	})
	if err != nil {
		t.Fatalf("Payment() failed: %v", err)
	}

	want := "Warehouse1    DowntownEa"
	if outcome.HData != want {
		t.Errorf("HData = %q, want %q", outcome.HData, want)
	}

	if !outcome.HistoryWritten {
		t.Error("HistoryWritten = false, want true")
	}
	if len(f.dml) != 1 || !strings.Contains(f.dml[0].Text, "INSERT INTO history") {
		t.Fatalf("dml = %v, want single history insert", f.dml)
	}
	args := queryArgs(t, f.dml[0])
	if args["data"] != want {
		t.Errorf("history h_data = %v, want %q", args["data"], want)
	}
	if args["amount"] != 10.00 {
		t.Errorf("history h_amount = %v, want 10.00", args["amount"])
	}
}

// TestPaymentRemoteCustomer проверяет платеж за клиента чужого склада:
// баланс меняется по домашним координатам, YTD по платежным
func TestPaymentRemoteCustomer(t *testing.T) {
	f := newFakeBackend()
	scriptPaymentReads(f, 500.00)
	svc := NewService(f, nil, ServiceConfig{})

	_, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID:         2,
		DistrictID:          3,
		CustomerWarehouseID: 7,
		CustomerDistrictID:  8,
		CustomerID:          42,
		Amount:              25.00,
	})
	if err != nil {
		t.Fatalf("Payment() failed: %v", err)
	}

	// Чтение клиента идет по домашним координатам
	custArgs := queryArgs(t, f.queries[0])
	if custArgs["w"] != int64(7) || custArgs["d"] != int64(8) {
		t.Errorf("customer read coordinates = %v/%v, want 7/8", custArgs["w"], custArgs["d"])
	}

	plan := f.plans[0]
	custUpd := queryArgs(t, plan[0])
	if custUpd["w"] != int64(7) || custUpd["d"] != int64(8) {
		t.Errorf("customer update coordinates = %v/%v, want 7/8", custUpd["w"], custUpd["d"])
	}
	whUpd := queryArgs(t, plan[1])
	if whUpd["w"] != int64(2) {
		t.Errorf("warehouse update w = %v, want 2", whUpd["w"])
	}
	distUpd := queryArgs(t, plan[2])
	if distUpd["w"] != int64(2) || distUpd["d"] != int64(3) {
		t.Errorf("district update coordinates = %v/%v, want 2/3", distUpd["w"], distUpd["d"])
	}
}

// TestPaymentValidation проверяет структурную валидацию запроса
func TestPaymentValidation(t *testing.T) {
	tests := []struct {
		name string
		req  PaymentRequest
	}{
		{name: "zero warehouse", req: PaymentRequest{DistrictID: 1, CustomerID: 1, Amount: 10}},
		{name: "zero district", req: PaymentRequest{WarehouseID: 1, CustomerID: 1, Amount: 10}},
		{name: "zero customer", req: PaymentRequest{WarehouseID: 1, DistrictID: 1, Amount: 10}},
		{name: "zero amount", req: PaymentRequest{WarehouseID: 1, DistrictID: 1, CustomerID: 1}},
		{name: "negative amount", req: PaymentRequest{WarehouseID: 1, DistrictID: 1, CustomerID: 1, Amount: -5}},
		{name: "above maximum", req: PaymentRequest{WarehouseID: 1, DistrictID: 1, CustomerID: 1, Amount: MaxPaymentAmount + 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBackend()
			svc := NewService(f, nil, ServiceConfig{})

			_, err := svc.Payment(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Payment() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), "invalid payment request") {
				t.Errorf("error = %q, want validation message", err.Error())
			}
			if len(f.queries) != 0 {
				t.Errorf("backend queries = %d, want 0 before validation", len(f.queries))
			}
		})
	}
}

// TestPaymentCustomerNotFound проверяет типизированный отказ
func TestPaymentCustomerNotFound(t *testing.T) {
	f := newFakeBackend()
	f.scriptEmpty("FROM customer", "c_balance", "c_ytd_payment", "c_payment_cnt", "c_credit_lim")
	svc := NewService(f, nil, ServiceConfig{})

	_, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID: 1, DistrictID: 1, CustomerID: 9999, Amount: 10,
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Errorf("error = %v, want ErrCustomerNotFound", err)
	}
	if !backend.IsNotFound(err) {
		t.Errorf("ClassOf() = %s, want %s", backend.ClassOf(err), backend.ClassNotFound)
	}
	if len(f.plans) != 0 {
		t.Error("transaction executed for missing customer")
	}
}

// TestPaymentCreditLimit проверяет отказ при превышении кредитного лимита
func TestPaymentCreditLimit(t *testing.T) {
	f := newFakeBackend()
	f.script("FROM customer",
		[]string{"c_balance", "c_ytd_payment", "c_payment_cnt", "c_credit_lim"},
		[]any{100.0, 0.0, int64(0), 200.0})
	svc := NewService(f, nil, ServiceConfig{})

	_, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID: 1, DistrictID: 1, CustomerID: 1, Amount: 350.00,
	})
	if err == nil {
		t.Fatal("Payment() succeeded, want credit limit error")
	}
	if !strings.Contains(err.Error(), "credit limit") {
		t.Errorf("error = %q, want credit limit message", err.Error())
	}
	if len(f.plans) != 0 {
		t.Error("transaction executed beyond credit limit")
	}
}

// TestPaymentHistoryFailure проверяет деградацию при сбое history:
// платеж зафиксирован, предупреждение выставлено, запись уходит в DLQ
func TestPaymentHistoryFailure(t *testing.T) {
	f := newFakeBackend()
	scriptPaymentReads(f, 500.00)
	f.dmlErr = errors.New("history table is locked")
	svc := NewService(f, nil, ServiceConfig{})

	dlq, err := retry.NewDLQ(retry.DLQConfig{
		Enabled:  true,
		FilePath: filepath.Join(t.TempDir(), "dlq.json"),
		MaxSize:  100,
	})
	if err != nil {
		t.Fatalf("Failed to create DLQ: %v", err)
	}
	svc.SetDeadLetter(dlq)

	outcome, err := svc.Payment(context.Background(), PaymentRequest{
		WarehouseID: 1, DistrictID: 1, CustomerID: 1, Amount: 50.00,
	})
	if err != nil {
		t.Fatalf("Payment() failed: %v", err)
	}

	if outcome.HistoryWritten {
		t.Error("HistoryWritten = true after failed insert")
	}
	if outcome.NewBalance != 450.00 {
		t.Errorf("NewBalance = %.2f, want 450.00 (payment itself committed)", outcome.NewBalance)
	}
	if len(outcome.Warnings) != 1 || !strings.Contains(outcome.Warnings[0], "history insert failed") {
		t.Errorf("Warnings = %v, want single history warning", outcome.Warnings)
	}

	entries := dlq.Get()
	if len(entries) != 1 {
		t.Fatalf("DLQ entries = %d, want 1", len(entries))
	}
	if entries[0].FailureType != "history_insert" {
		t.Errorf("DLQ failure type = %q, want history_insert", entries[0].FailureType)
	}
}
