package voltage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitcoin-tipjar-go/internal/models"
)

func testConfig(baseUrl string) models.VoltageConfig {
	return models.VoltageConfig{
		BaseUrl:        baseUrl,
		ApiKey:         "test-api-key",
		OrgId:          "org-1",
		EnvId:          "env-1",
		WalletId:       "wallet-1",
		PaymentKind:    models.PaymentKindBolt11,
		RequestTimeout: 5 * time.Second,
	}
}

func testRequest() models.PaymentRequest {
	return models.PaymentRequest{
		Id:          "11111111-2222-3333-4444-555555555555",
		PaymentKind: models.PaymentKindBolt11,
		WalletId:    "wallet-1",
		AmountMsats: 20_000_000,
		Currency:    "btc",
		Description: "Bitcoin Tip",
	}
}

func TestNewService_MissingCredentials(t *testing.T) {
	cfg := testConfig("https://voltageapi.com/v1")
	cfg.ApiKey = ""
	cfg.EnvId = ""

	if _, err := NewService(cfg); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestCreatePayment_SendsIdempotencyKeyAndAcceptsA202(t *testing.T) {
	req := testRequest()

	var gotKey, gotApiKey, gotPath string
	var gotBody models.PaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotApiKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.CreatePayment(context.Background(), req); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	if gotKey != req.Id {
		t.Errorf("Idempotency-Key = %q, want the request id %q", gotKey, req.Id)
	}
	if gotApiKey != "test-api-key" {
		t.Errorf("x-api-key = %q", gotApiKey)
	}
	if gotPath != "/organizations/org-1/environments/env-1/payments" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.Id != req.Id || gotBody.AmountMsats != req.AmountMsats {
		t.Errorf("payload not forwarded verbatim: %+v", gotBody)
	}
}

func TestCreatePayment_HttpErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		retryable   bool
	}{
		{"json message", 400, `{"message":"invalid wallet_id"}`, "invalid wallet_id", false},
		{"json detail", 422, `{"detail":"amount too small"}`, "amount too small", false},
		{"raw text body", 400, "not json at all", "not json at all", false},
		{"server error", 503, `{"message":"try later"}`, "try later", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			svc, err := NewService(testConfig(srv.URL))
			if err != nil {
				t.Fatalf("NewService failed: %v", err)
			}

			err = svc.CreatePayment(context.Background(), testRequest())
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if apiErr.Kind != ErrorKindHTTP {
				t.Errorf("Kind = %q, want http", apiErr.Kind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", apiErr.Retryable(), tt.retryable)
			}
		})
	}
}

func TestCreatePayment_NetworkErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	svc, err := NewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	srv.Close() // connection refused from here on

	err = svc.CreatePayment(context.Background(), testRequest())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Kind != ErrorKindNetwork {
		t.Errorf("Kind = %q, want network", apiErr.Kind)
	}
	if !apiErr.Retryable() {
		t.Error("network errors must be retryable")
	}
}

func TestGetPayment_ReturnsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/organizations/org-1/environments/env-1/payments/pay-9" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"id": "pay-9",
			"status": "receiving",
			"currency": "btc",
			"data": {"amount_msats": 20000000, "payment_request": "lnbc20m1invoice"}
		}`)
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	payment, err := svc.GetPayment(context.Background(), "pay-9")
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if payment.Status != models.PaymentStatusReceiving {
		t.Errorf("Status = %q", payment.Status)
	}
	if !payment.InstructionsReady() {
		t.Error("expected InstructionsReady with a lightning invoice present")
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if !models.PaymentStatusFailed.Terminal() || !models.PaymentStatusExpired.Terminal() {
		t.Error("failed and expired must be terminal")
	}
	if models.PaymentStatusPending.Terminal() || models.PaymentStatusReceiving.Terminal() || models.PaymentStatusCompleted.Terminal() {
		t.Error("non-dead statuses must not be terminal")
	}
}
