package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/record-service/internal/tokenverify"
	"github.com/example/record-service/internal/usecase"
	pkglog "github.com/example/record-service/pkg/log"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string, expected usecase.TokenType) (*tokenverify.Result, error)
}

// VerifyHandler answers access-token checks from sibling services.
type VerifyHandler struct {
	verifier  TokenVerifier
	logger    pkglog.Logger
	timeout   time.Duration
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK     bool           `json:"ok"`
	UserID string         `json:"user_id,omitempty"`
	Error  string         `json:"error,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

func NewVerifyHandler(verifier TokenVerifier, logger pkglog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger, timeout: 3 * time.Second, respondFn: respond}
}

func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_payload"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.verifier.Verify(ctx, req.Token, usecase.AccessToken)
	if err != nil {
		switch {
		case errors.Is(err, tokenverify.ErrTokenExpired):
			h.respondFn(msg, verifyResponse{OK: false, Error: "expired"})
		case errors.Is(err, tokenverify.ErrSubjectMissing):
			h.respondFn(msg, verifyResponse{OK: false, Error: "subject_missing"})
		case errors.Is(err, tokenverify.ErrRevoked):
			h.respondFn(msg, verifyResponse{OK: false, Error: "revoked"})
		case errors.Is(err, tokenverify.ErrInvalidToken), errors.Is(err, tokenverify.ErrWrongType), errors.Is(err, tokenverify.ErrJTIMissing):
			h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_token"})
		default:
			h.logger.Error().Err(err).Msg("token verification failed")
			h.respondFn(msg, verifyResponse{OK: false, Error: "unavailable"})
		}
		return
	}
	h.respondFn(msg, verifyResponse{OK: true, UserID: result.UserID, Claims: result.Claims})
}

func respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
