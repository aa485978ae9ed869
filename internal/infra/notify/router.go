package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
)

// Router dispatches each message to the sender registered for its channel.
type Router struct {
	senders map[domain.Channel]port.CodeSender
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[domain.Channel]port.CodeSender)}
}

// Register binds sender to channel, replacing any earlier binding.
func (r *Router) Register(ch domain.Channel, sender port.CodeSender) *Router {
	r.senders[ch] = sender
	return r
}

func (r *Router) Send(ctx context.Context, msg domain.CodeMessage) error {
	sender, ok := r.senders[msg.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", msg.Channel)
	}
	return sender.Send(ctx, msg)
}

// LogSender writes codes to the log instead of delivering them. It is wired
// in development when a gateway is not configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log}
}

func (s *LogSender) Send(_ context.Context, msg domain.CodeMessage) error {
	s.logger.Warn("verification code not delivered (development sender)",
		zap.String("channel", string(msg.Channel)),
		zap.String("target", logger.MaskTarget(msg.Target)),
		zap.String("purpose", string(msg.Purpose)),
		zap.String("code", msg.Code),
	)
	return nil
}

var (
	_ port.CodeSender = (*Router)(nil)
	_ port.CodeSender = (*HTTPSMSSender)(nil)
	_ port.CodeSender = (*SMTPEmailSender)(nil)
	_ port.CodeSender = (*LogSender)(nil)
)
