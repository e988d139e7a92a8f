package voltage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"bitcoin-tipjar-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Service is the HTTP client for the Voltage payments API. It carries no
// retry policy of its own; retries and polling cadence belong to the
// orchestrator, which knows the latency budgets.
type Service struct {
	client  http.Client
	baseUrl string
	apiKey  string
	orgId   string
	envId   string
}

func NewService(cfg models.VoltageConfig) (*Service, error) {
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required Voltage API credentials: %s", strings.Join(missing, ", "))
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Service{
		client:  httpClient,
		baseUrl: strings.TrimRight(cfg.BaseUrl, "/"),
		apiKey:  cfg.ApiKey,
		orgId:   cfg.OrgId,
		envId:   cfg.EnvId,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func (s *Service) paymentsUrl() string {
	return fmt.Sprintf("%s/organizations/%s/environments/%s/payments", s.baseUrl, s.orgId, s.envId)
}

// CreatePayment submits a receive-payment request. The request id is sent as
// the Idempotency-Key header so transport retries of the same call cannot
// create duplicate payments server-side. A 202 with no body means the
// request was admitted for asynchronous processing; the payment instructions
// are NOT ready yet and must be polled for.
func (s *Service) CreatePayment(ctx context.Context, req models.PaymentRequest) error {
	zap.L().Info("Creating receive payment via Voltage API",
		zap.String("payment_id", req.Id),
		zap.String("payment_kind", string(req.PaymentKind)),
		zap.String("wallet_id", req.WalletId),
		zap.Int64("amount_msats", req.AmountMsats))

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("unable to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.paymentsUrl(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build create payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Id)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &Error{Kind: ErrorKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyHttpError(resp)
		zap.L().Error("Failed to create payment",
			zap.String("payment_id", req.Id),
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	// 202 Accepted carries no body; drain whatever arrived so the
	// connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	zap.L().Info("Payment request admitted",
		zap.String("payment_id", req.Id),
		zap.Int("status", resp.StatusCode))

	return nil
}

// GetPayment fetches the current server-side snapshot for a payment. It
// never blocks waiting for state changes.
func (s *Service) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.paymentsUrl()+"/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build get payment request: %w", err)
	}
	httpReq.Header.Set("x-api-key", s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrorKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyHttpError(resp)
	}

	var payment models.Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("unable to decode payment %s: %w", id, err)
	}

	return &payment, nil
}

// classifyHttpError turns a non-2xx response into an Error. The message is
// taken from the structured body when it parses, raw text otherwise.
func classifyHttpError(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	rawText := strings.TrimSpace(string(raw))

	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			message = parsed.Message
		case parsed.Detail != "":
			message = parsed.Detail
		}
	} else if rawText != "" {
		message = rawText
	}

	return &Error{
		Kind:    ErrorKindHTTP,
		Status:  resp.StatusCode,
		Message: message,
		RawBody: rawText,
	}
}
