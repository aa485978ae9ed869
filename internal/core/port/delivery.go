package port

import (
	"context"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// CodeSender delivers a verification code on its channel.
type CodeSender interface {
	Send(ctx context.Context, msg domain.CodeMessage) error
}
