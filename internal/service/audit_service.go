package service

import (
	"time"

	"github.com/keygate-dev/keygate/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Audit action names. Failure actions are distinct names, not a flag on the
// success action, so downstream alerting can match on the action alone.
const (
	AuditCodeIssued          = "oauth.code.issued"
	AuditCodeRedeemed        = "oauth.code.redeemed"
	AuditCodeRedeemFailed    = "oauth.code.redeem_failed"
	AuditTokenIssued         = "oauth.token.issued"
	AuditPKCEFailed          = "oauth.pkce.failed"
	AuditLoginSucceeded      = "auth.login.succeeded"
	AuditLoginFailed         = "auth.login.failed"
	AuditMfaSetupStarted     = "mfa.setup.started"
	AuditMfaSetupCompleted   = "mfa.setup.completed"
	AuditMfaSetupFailed      = "mfa.setup.failed"
	AuditMfaVerified         = "mfa.verify.succeeded"
	AuditMfaVerifyFailed     = "mfa.verify.failed"
	AuditMfaBackupUsed       = "mfa.backup.used"
	AuditMfaBackupFailed     = "mfa.backup.failed"
	AuditMfaDisabled         = "mfa.disabled"
	AuditMfaDisableFailed    = "mfa.disable.failed"
	AuditMfaCodesRegenerated = "mfa.backup_codes.regenerated"
	AuditMfaRegenerateFailed = "mfa.backup_codes.regenerate_failed"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type AuditServiceConfig struct {
	Database *gorm.DB
}

// AuditService is the append-only event sink for every state-changing
// operation in the core. Events are persisted and mirrored to the log;
// a sink failure is logged but never fails the audited operation.
type AuditService struct {
	config AuditServiceConfig
}

func NewAuditService(config AuditServiceConfig) *AuditService {
	return &AuditService{
		config: config,
	}
}

func (audit *AuditService) Record(action string, actor string, resource string, outcome string, detail string) {
	event := model.AuditEvent{
		ID:        uuid.New().String(),
		Action:    action,
		Actor:     actor,
		Resource:  resource,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().Unix(),
	}

	if err := audit.config.Database.Create(&event).Error; err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to persist audit event")
	}

	logger := log.Info()
	if outcome == OutcomeFailure {
		logger = log.Warn()
	}

	logger.Str("action", action).Str("actor", actor).Str("resource", resource).Str("outcome", outcome).Str("detail", detail).Msg("Audit event")
}

func (audit *AuditService) Success(action string, actor string, resource string, detail string) {
	audit.Record(action, actor, resource, OutcomeSuccess, detail)
}

func (audit *AuditService) Failure(action string, actor string, resource string, detail string) {
	audit.Record(action, actor, resource, OutcomeFailure, detail)
}
