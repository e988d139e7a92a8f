package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitcoin-tipjar-go/internal/models"
	"bitcoin-tipjar-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// acceptedAck is the synthesized body for the upstream's empty 202.
var acceptedAck = []byte(`{"success":true,"message":"Payment request created"}`)

func (s *Server) handleCreatePayment(c *gin.Context) {
	if missing := s.voltage.MissingCredentials(); len(missing) > 0 {
		zap.L().Error("Voltage API configuration missing", zap.Strings("missing", missing))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Voltage API configuration missing"})
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read request body", Details: err.Error()})
		return
	}

	var req models.PaymentRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON in request body", Details: err.Error()})
		return
	}

	if err := validatePaymentRequest(req, rawBody); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Missing required fields in payment request",
			Details: err.Error(),
		})
		return
	}

	bodyHash := hashBody(rawBody)

	// Replay path: a retried submission of the same payment id gets the
	// cached response instead of a second upstream call.
	if entry, err := s.replay.Get(c.Request.Context(), req.Id); err == nil {
		if entry.BodyHash != bodyHash {
			zap.L().Warn("Rejecting reused payment id",
				zap.String("payment_id", req.Id),
				zap.Error(store.ErrKeyConflict))
			c.JSON(http.StatusConflict, errorResponse{
				Error:   "Idempotency key conflict",
				Details: store.ErrKeyConflict.Error(),
			})
			return
		}
		zap.L().Info("Replaying cached payment response", zap.String("payment_id", req.Id))
		c.Header("X-Cache-Hit", "true")
		c.Data(entry.StatusCode, "application/json", entry.ResponseBody)
		return
	}

	upstreamCtx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.UpstreamTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(upstreamCtx, http.MethodPost, s.paymentsUrl(), bytes.NewReader(rawBody))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create payment", Details: err.Error()})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.voltage.ApiKey)
	httpReq.Header.Set("Idempotency-Key", req.Id)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		zap.L().Error("Upstream payment creation failed",
			zap.String("payment_id", req.Id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create payment", Details: err.Error()})
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zap.L().Error("Voltage API rejected payment creation",
			zap.String("payment_id", req.Id),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		c.JSON(resp.StatusCode, errorResponse{
			Error:   fmt.Sprintf("Voltage API Error: %d", resp.StatusCode),
			Details: string(respBody),
		})
		return
	}

	// Payment creation returns 202 with no body; forward it as 202 with a
	// synthesized acknowledgement, never as a 200.
	if resp.StatusCode == http.StatusAccepted {
		s.cacheResponse(c.Request.Context(), req.Id, bodyHash, http.StatusAccepted, acceptedAck)
		c.Data(http.StatusAccepted, "application/json", acceptedAck)
		return
	}

	s.cacheResponse(c.Request.Context(), req.Id, bodyHash, resp.StatusCode, respBody)
	c.Data(resp.StatusCode, "application/json", respBody)
}

func (s *Server) handleGetPayment(c *gin.Context) {
	if missing := s.voltage.MissingCredentials(); len(missing) > 0 {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Voltage API configuration missing"})
		return
	}

	upstreamCtx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.UpstreamTimeout)
	defer cancel()

	url := s.paymentsUrl() + "/" + c.Param("id")
	httpReq, err := http.NewRequestWithContext(upstreamCtx, http.MethodGet, url, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch payment", Details: err.Error()})
		return
	}
	httpReq.Header.Set("x-api-key", s.voltage.ApiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch payment", Details: err.Error()})
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.JSON(resp.StatusCode, errorResponse{
			Error:   fmt.Sprintf("Voltage API Error: %d", resp.StatusCode),
			Details: string(respBody),
		})
		return
	}

	c.Data(resp.StatusCode, "application/json", respBody)
}

// cacheResponse stores the forwarding outcome for replay; a failure to
// cache is logged but does not fail the request that already succeeded.
func (s *Server) cacheResponse(ctx context.Context, key, bodyHash string, statusCode int, body []byte) {
	err := s.replay.Put(ctx, &store.Entry{
		Key:          key,
		BodyHash:     bodyHash,
		StatusCode:   statusCode,
		ResponseBody: body,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		zap.L().Warn("Failed to cache payment response",
			zap.String("payment_id", key),
			zap.Error(err))
	}
}

func validatePaymentRequest(req models.PaymentRequest, rawBody []byte) error {
	if req.Id == "" || req.PaymentKind == "" || req.WalletId == "" || req.Currency == "" {
		return fmt.Errorf("required fields: id, payment_kind, wallet_id, amount_msats, currency")
	}

	// A struct decode cannot tell an absent amount from an explicit zero,
	// so presence is checked through a pointer.
	var amount struct {
		AmountMsats *int64 `json:"amount_msats"`
	}
	if err := json.Unmarshal(rawBody, &amount); err != nil || amount.AmountMsats == nil {
		return fmt.Errorf("amount_msats must be a number")
	}
	if *amount.AmountMsats < 0 {
		return fmt.Errorf("amount_msats must not be negative")
	}
	return nil
}

func hashBody(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}
