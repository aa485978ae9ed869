package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const (
	msgProofMissing  = "验证已过期或不存在"
	msgProofRedeemed = "验证成功"
)

// SecondVerifyInput asks to redeem a previously issued captcha proof.
type SecondVerifyInput struct {
	Token      string
	Identifier string
	Provider   domain.CaptchaProvider
	Scene      string
	ClientIP   string
	UserAgent  string
}

// VerifySecondTime redeems a proof created by VerifyScene. The lookup matches
// token, identifier and provider; the scene is only used to label the
// redemption log row when no proof is found. Every call writes a log row.
func (s *CaptchaService) VerifySecondTime(ctx context.Context, in SecondVerifyInput) (domain.SecondVerifyResult, error) {
	token := strings.TrimSpace(in.Token)
	provider := in.Provider

	if provider == "" {
		cfg, err := s.GetConfig(ctx, in.Scene)
		if err != nil {
			return domain.SecondVerifyResult{}, err
		}
		if cfg != nil {
			provider = cfg.Provider
		}
	}

	query := domain.ProofQuery{Token: token, Provider: provider}
	switch kind, normalized := domain.ClassifyIdentifier(in.Identifier); kind {
	case domain.IdentifierPhone:
		query.Phone = normalized
	case domain.IdentifierEmail:
		query.Email = normalized
	}

	if token == "" || provider == "" || (query.Phone == "" && query.Email == "") {
		return s.redeemFailed(ctx, in, provider, token)
	}

	proof, err := s.logs.FindRedeemable(ctx, query, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.redeemFailed(ctx, in, provider, token)
		}
		return domain.SecondVerifyResult{}, fmt.Errorf("find captcha proof: %w", err)
	}

	if s.cfg.SingleUseProofs && s.claims != nil {
		ttl := proof.ExpiresAt.Sub(s.now())
		claimed, err := s.claims.Claim(ctx, proof.ID, ttl)
		if err != nil {
			return domain.SecondVerifyResult{}, fmt.Errorf("claim captcha proof: %w", err)
		}
		if !claimed {
			return s.redeemFailed(ctx, in, provider, token)
		}
	}

	entry := s.redemptionLog(in, provider, token, proof.Scene+domain.SecondVerifySceneSuffix, true, msgProofRedeemed)
	entry.ReferenceLogID = stringPtr(proof.ID)
	entry.ConfigID = proof.ConfigID
	entry.ExpiresAt = proof.ExpiresAt
	if err := s.logs.Create(ctx, entry); err != nil {
		return domain.SecondVerifyResult{}, fmt.Errorf("save captcha redemption log: %w", err)
	}

	s.metrics.CaptchaRedeemed(string(provider), true)
	s.logger.Info("captcha proof redeemed",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("proof_log_id", proof.ID),
		zap.String("original_scene", proof.Scene),
		zap.String("provider", string(provider)),
	)

	return domain.SecondVerifyResult{
		Success:       true,
		Message:       msgProofRedeemed,
		LogID:         entry.ID,
		OriginalScene: proof.Scene,
	}, nil
}

func (s *CaptchaService) redeemFailed(ctx context.Context, in SecondVerifyInput, provider domain.CaptchaProvider, token string) (domain.SecondVerifyResult, error) {
	entry := s.redemptionLog(in, provider, token, in.Scene+domain.SecondVerifySceneSuffix, false, msgProofMissing)
	entry.ErrorMessage = stringPtr(msgProofMissing)
	if err := s.logs.Create(ctx, entry); err != nil {
		return domain.SecondVerifyResult{}, fmt.Errorf("save captcha redemption log: %w", err)
	}

	s.metrics.CaptchaRedeemed(string(provider), false)
	s.logger.Info("captcha proof redemption failed",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("scene", in.Scene),
		zap.String("provider", string(provider)),
		zap.String("identifier", logger.MaskTarget(in.Identifier)),
	)

	return domain.SecondVerifyResult{Success: false, Message: msgProofMissing, LogID: entry.ID}, nil
}

func (s *CaptchaService) redemptionLog(in SecondVerifyInput, provider domain.CaptchaProvider, token, scene string, success bool, message string) domain.CaptchaVerifyLog {
	now := s.now()
	entry := domain.CaptchaVerifyLog{
		ID:        uuid.NewString(),
		Scene:     scene,
		Provider:  provider,
		Success:   success,
		Result:    message,
		ClientIP:  in.ClientIP,
		UserAgent: in.UserAgent,
		CreatedAt: now,
		ExpiresAt: now,
	}
	if provider == domain.ProviderGeetest {
		entry.LotNumber = stringPtr(token)
	} else {
		entry.Challenge = stringPtr(token)
	}
	switch kind, normalized := domain.ClassifyIdentifier(in.Identifier); kind {
	case domain.IdentifierPhone:
		entry.Phone = stringPtr(normalized)
	case domain.IdentifierEmail:
		entry.Email = stringPtr(normalized)
	}
	return entry
}

// RequireProof gates an action behind a redeemed captcha proof for scene. It
// passes when the scene has no config and captcha is not required.
func (s *CaptchaService) RequireProof(ctx context.Context, scene, token, identifier, clientIP, userAgent string) error {
	if s == nil {
		return nil
	}

	cfg, err := s.GetConfig(ctx, scene)
	if err != nil {
		return err
	}
	if cfg == nil {
		if s.cfg.RequireCaptcha {
			return ErrCaptchaUnavailable
		}
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrCaptchaRequired
	}

	res, err := s.VerifySecondTime(ctx, SecondVerifyInput{
		Token:      token,
		Identifier: identifier,
		Provider:   cfg.Provider,
		Scene:      scene,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return ErrCaptchaFailed
	}
	return nil
}
