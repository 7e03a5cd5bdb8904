package natsadapter

import (
	"context"
	"encoding/json"

	nats "github.com/nats-io/nats.go"

	"github.com/example/record-service/internal/usecase"
)

// OTPPublisher hands verification mails to the mail workers. Publishing is
// fire-and-forget; delivery is the worker's concern.
type OTPPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewOTPPublisher(conn *nats.Conn, subject string) *OTPPublisher {
	return &OTPPublisher{conn: conn, subject: subject}
}

func (p *OTPPublisher) NotifyOTP(ctx context.Context, msg usecase.OTPMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

var _ usecase.OTPNotifier = (*OTPPublisher)(nil)
