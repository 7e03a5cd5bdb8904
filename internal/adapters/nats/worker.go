package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/record-service/internal/usecase"
	pkglog "github.com/example/record-service/pkg/log"
)

type OTPSender interface {
	SendOTP(ctx context.Context, msg usecase.OTPMessage) error
}

// MailWorker consumes OTP mail jobs from a queue group so each message is
// delivered by exactly one service instance.
type MailWorker struct {
	sender  OTPSender
	logger  pkglog.Logger
	timeout time.Duration
}

func NewMailWorker(sender OTPSender, logger pkglog.Logger) *MailWorker {
	return &MailWorker{sender: sender, logger: logger, timeout: 30 * time.Second}
}

func (w *MailWorker) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, w.handle)
}

func (w *MailWorker) handle(msg *nats.Msg) {
	var otp usecase.OTPMessage
	if err := json.Unmarshal(msg.Data, &otp); err != nil || otp.Email == "" {
		w.logger.Warn().Str("subject", msg.Subject).Msg("dropping malformed mail job")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.sender.SendOTP(ctx, otp); err != nil {
		w.logger.Error().Err(err).Str("subject", msg.Subject).Msg("otp mail delivery failed")
		return
	}
	w.logger.Info().Str("subject", msg.Subject).Msg("otp mail sent")
}
