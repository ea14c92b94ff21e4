package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	libevents "chargeshare/backend/libs/events"
	"chargeshare/backend/services/settlement-service/internal/models"
	"chargeshare/backend/services/settlement-service/internal/repository"
)

// Defaults for the payment pipeline. The hold is a capability check against
// the driver's payment method, not an estimate of the final charge.
const (
	DefaultHoldCents     int64   = 100
	DefaultPlatformShare float64 = 0.05
)

// ErrNotReady signals that the close event arrived before its session is in
// a capturable state. The caller should leave the event unacked so it comes
// back on redelivery.
var ErrNotReady = errors.New("session not ready for capture")

// SettlementStore is the persistence surface the engine needs.
type SettlementStore interface {
	GetForSettlement(ctx context.Context, sessionID string) (*models.SessionBilling, error)
	MarkAuthorized(ctx context.Context, sessionID, authRef string) (bool, error)
	MarkCompleted(ctx context.Context, sessionID string) (bool, error)
	MarkFailed(ctx context.Context, sessionID, reason string) error
	RecordEarning(ctx context.Context, sessionID string, amountCents int64, at time.Time) error
	EarningBySession(ctx context.Context, sessionID string) (*models.PlatformEarning, error)
	CreditWallet(ctx context.Context, ownerID int64, amount float64) error
}

// PaymentProvider is the payment API surface the engine calls.
type PaymentProvider interface {
	CreateAuthorization(ctx context.Context, paymentMethodID string, amountCents int64, idempotencyKey string) (string, error)
	CaptureAuthorization(ctx context.Context, authRef string, amountCents int64, idempotencyKey string) (string, error)
	Transfer(ctx context.Context, destination string, amountCents int64, sourceRef, idempotencyKey string) error
}

// Engine settles charge sessions in two phases: a small hold when a session
// opens and a capture plus owner payout when it closes. Both phases are
// status-guarded so the at-least-once stream can redeliver events safely.
type Engine struct {
	store         SettlementStore
	payments      PaymentProvider
	holdCents     int64
	platformShare float64
	logger        *zap.Logger

	now func() time.Time
}

// NewEngine creates the settlement engine. Zero holdCents or platformShare
// fall back to the defaults.
func NewEngine(store SettlementStore, payments PaymentProvider, holdCents int64, platformShare float64, logger *zap.Logger) *Engine {
	if holdCents <= 0 {
		holdCents = DefaultHoldCents
	}
	if platformShare <= 0 || platformShare >= 1 {
		platformShare = DefaultPlatformShare
	}
	return &Engine{
		store:         store,
		payments:      payments,
		holdCents:     holdCents,
		platformShare: platformShare,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleEvent dispatches one stream event. A nil return means the event is
// fully handled (including terminal failures) and may be acked.
func (e *Engine) HandleEvent(ctx context.Context, ev libevents.SessionEvent) error {
	switch ev.Type {
	case libevents.TypeSessionOpened:
		return e.authorize(ctx, ev.SessionID)
	case libevents.TypeSessionClosed:
		return e.capture(ctx, ev.SessionID)
	default:
		e.logger.Warn("skipping unknown session event", zap.String("type", ev.Type), zap.String("session_id", ev.SessionID))
		return nil
	}
}

// authorize places the hold for a freshly opened session.
func (e *Engine) authorize(ctx context.Context, sessionID string) error {
	billing, err := e.store.GetForSettlement(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		e.logger.Warn("open event for unknown session", zap.String("session_id", sessionID))
		return nil
	}
	if err != nil {
		return err
	}

	if billing.Status != models.SessionPending {
		e.logger.Debug("session already past pending, skipping authorization",
			zap.String("session_id", sessionID), zap.String("status", billing.Status))
		return nil
	}

	if billing.PaymentMethodID == "" {
		e.logger.Warn("driver has no payment method, failing session",
			zap.String("session_id", sessionID), zap.Int64("driver_id", billing.DriverID))
		return e.store.MarkFailed(ctx, sessionID, models.ReasonNoPaymentMethod)
	}

	authRef, err := e.payments.CreateAuthorization(ctx, billing.PaymentMethodID, e.holdCents, "auth-"+sessionID)
	if err != nil {
		e.logger.Error("authorization hold declined",
			zap.String("session_id", sessionID), zap.Error(err))
		return e.store.MarkFailed(ctx, sessionID, models.ReasonAuthorization)
	}

	ok, err := e.store.MarkAuthorized(ctx, sessionID, authRef)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("lost authorization race, session already transitioned",
			zap.String("session_id", sessionID))
		return nil
	}

	e.logger.Info("session authorized",
		zap.String("session_id", sessionID), zap.String("auth_ref", authRef))
	return nil
}

// capture finalizes the charge for a closed session and pays out the owner
// share, either to the linked payout destination or into the wallet.
func (e *Engine) capture(ctx context.Context, sessionID string) error {
	billing, err := e.store.GetForSettlement(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		e.logger.Warn("close event for unknown session", zap.String("session_id", sessionID))
		return nil
	}
	if err != nil {
		return err
	}

	switch billing.Status {
	case models.SessionCompleted, models.SessionFailed:
		e.logger.Debug("session already terminal, skipping capture",
			zap.String("session_id", sessionID), zap.String("status", billing.Status))
		return nil
	case models.SessionPending:
		// Close delivered before the open event finished authorizing.
		return ErrNotReady
	}

	if !billing.Closed() {
		return ErrNotReady
	}

	amountCents := int64(math.Round(*billing.TotalCost * 100))
	platformCents := int64(math.Round(float64(amountCents) * e.platformShare))
	ownerCents := amountCents - platformCents

	if amountCents > 0 {
		if _, err := e.payments.CaptureAuthorization(ctx, billing.AuthRef, amountCents, "capture-"+sessionID); err != nil {
			e.logger.Error("capture failed",
				zap.String("session_id", sessionID), zap.Int64("amount_cents", amountCents), zap.Error(err))
			return e.store.MarkFailed(ctx, sessionID, models.ReasonCapture)
		}
	}

	if err := e.store.RecordEarning(ctx, sessionID, platformCents, e.now()); err != nil {
		// Idempotent insert, safe to redeliver: the capture key dedupes at
		// the provider and the ledger insert is keyed on session id.
		return err
	}

	if ownerCents > 0 {
		if billing.PayoutAccountID != "" {
			if err := e.payments.Transfer(ctx, billing.PayoutAccountID, ownerCents, sessionID, "transfer-"+sessionID); err != nil {
				e.logger.Error("owner transfer failed",
					zap.String("session_id", sessionID), zap.Int64("owner_cents", ownerCents), zap.Error(err))
				return e.store.MarkFailed(ctx, sessionID, models.ReasonTransfer)
			}
		} else {
			if err := e.store.CreditWallet(ctx, billing.OwnerID, float64(ownerCents)/100); err != nil {
				e.logger.Error("wallet credit failed",
					zap.String("session_id", sessionID), zap.Int64("owner_id", billing.OwnerID), zap.Error(err))
				return e.store.MarkFailed(ctx, sessionID, models.ReasonWalletCredit)
			}
		}
	}

	ok, err := e.store.MarkCompleted(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("lost completion race, session already transitioned",
			zap.String("session_id", sessionID))
		return nil
	}

	e.logger.Info("session settled",
		zap.String("session_id", sessionID),
		zap.Int64("amount_cents", amountCents),
		zap.Int64("owner_cents", ownerCents),
		zap.Int64("platform_cents", platformCents))
	return nil
}

// Settlement returns the billing view of a session plus its ledger row, for
// support inspection.
func (e *Engine) Settlement(ctx context.Context, sessionID string) (*models.SessionBilling, *models.PlatformEarning, error) {
	billing, err := e.store.GetForSettlement(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	earning, err := e.store.EarningBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return billing, earning, nil
}
