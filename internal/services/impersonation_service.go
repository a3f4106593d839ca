package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/models"
	pkglogger "github.com/planpago/planpago/pkg/logger"
)

// ImpersonationConfig holds the broker's parameters.
type ImpersonationConfig struct {
	Freshness  time.Duration // confirmed request usable for this long
	AppBaseURL string        // base of the confirm link mailed to the target
}

// ImpersonationBroker lets an administrator obtain a session as another
// account, but only after that account approves the specific request via an
// out-of-band link, and only while the approval is fresh. A confirmed request
// stays usable for repeated impersonation within the freshness window.
type ImpersonationBroker struct {
	requests   ImpersonationStore
	directory  AccountDirectory
	tokens     *auth.TokenCodec
	dispatcher *Dispatcher
	config     ImpersonationConfig
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
	now        func() time.Time
}

// NewImpersonationBroker creates a new ImpersonationBroker
func NewImpersonationBroker(
	requests ImpersonationStore,
	directory AccountDirectory,
	tokens *auth.TokenCodec,
	dispatcher *Dispatcher,
	config ImpersonationConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *ImpersonationBroker {
	return &ImpersonationBroker{
		requests:   requests,
		directory:  directory,
		tokens:     tokens,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		audit:      audit,
		now:        time.Now,
	}
}

// SetClock overrides the broker's time source. Test use only.
func (s *ImpersonationBroker) SetClock(now func() time.Time) {
	s.now = now
}

// Request creates a new impersonation request and mails the target a
// single-use confirmation link. Any unconfirmed prior request from this
// admin for this target is superseded. Returns the request ID for polling.
func (s *ImpersonationBroker) Request(ctx context.Context, adminID, targetID string) (string, error) {
	admin, err := s.directory.GetByID(ctx, adminID)
	if err != nil {
		s.logger.Error("failed to load admin account", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !admin.IsAdmin {
		return "", models.ErrForbidden
	}

	target, err := s.directory.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		s.logger.Error("failed to load target account", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	token := uuid.New().String()
	req, err := s.requests.Create(ctx, admin.ID, target.ID, token)
	if err != nil {
		s.logger.Error("failed to create impersonation request", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	confirmURL := fmt.Sprintf("%s/impersonate-confirm/%s", s.config.AppBaseURL, token)
	s.dispatcher.QueueImpersonationConsent(target.Email, admin.Email, confirmURL)

	s.audit.LogImpersonation("impersonation_requested", admin.ID, target.ID, true)

	return req.ID, nil
}

// Confirm records the target's consent. Safe to call more than once: a
// second confirmation of the same token is a no-op, not an error. Unknown
// tokens fail with models.ErrInvalidToken.
func (s *ImpersonationBroker) Confirm(ctx context.Context, token string) error {
	updated, err := s.requests.Confirm(ctx, token, s.now())
	if err != nil {
		s.logger.Error("failed to confirm impersonation request", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if updated == 0 {
		req, err := s.requests.GetByToken(ctx, token)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrInvalidToken
			}
			s.logger.Error("failed to look up impersonation request", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if req.Confirmed {
			// Already confirmed; idempotent.
			return nil
		}
		return models.ErrInvalidToken
	}

	req, err := s.requests.GetByToken(ctx, token)
	if err == nil {
		s.audit.LogImpersonation("impersonation_confirmed", req.AdminID, req.TargetID, true)
	}

	return nil
}

// Status reports whether the request has been confirmed. Only the requesting
// admin may poll it.
func (s *ImpersonationBroker) Status(ctx context.Context, adminID, requestID string) (bool, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.ErrNotFound
		}
		s.logger.Error("failed to get impersonation request", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if req.AdminID != adminID {
		return false, models.ErrForbidden
	}

	return req.Confirmed, nil
}

// Impersonate exchanges a confirmed-and-fresh request for a session token
// scoped to the target. The freshness window, not single use, is the
// control: repeated calls within the window succeed again.
func (s *ImpersonationBroker) Impersonate(ctx context.Context, adminID, targetID string) (string, error) {
	req, err := s.requests.LatestConfirmed(ctx, adminID, targetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.LogImpersonation("impersonation_denied", adminID, targetID, false)
			return "", models.ErrImpersonationNotConfirmed
		}
		s.logger.Error("failed to look up confirmed request", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if !req.IsFresh(s.now(), s.config.Freshness) {
		s.audit.LogImpersonation("impersonation_denied", adminID, targetID, false)
		return "", models.ErrImpersonationNotConfirmed
	}

	sessionToken, err := s.tokens.IssueSession(targetID)
	if err != nil {
		s.logger.Error("failed to issue impersonation session", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.LogImpersonation("impersonation_session_issued", adminID, targetID, true)
	s.logger.Info("impersonation session issued",
		slog.String("admin_id", adminID),
		slog.String("target_id", targetID))

	return sessionToken, nil
}
