package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	libevents "chargeshare/backend/libs/events"
	"chargeshare/backend/services/settlement-service/internal/models"
	"chargeshare/backend/services/settlement-service/internal/repository"
)

type authCall struct {
	paymentMethod string
	amountCents   int64
	key           string
}

type captureCall struct {
	authRef     string
	amountCents int64
	key         string
}

type transferCall struct {
	destination string
	amountCents int64
	key         string
}

type fakePayments struct {
	mu          sync.Mutex
	authErr     error
	captureErr  error
	transferErr error
	auths       []authCall
	captures    []captureCall
	transfers   []transferCall
}

func (f *fakePayments) CreateAuthorization(_ context.Context, paymentMethodID string, amountCents int64, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return "", f.authErr
	}
	f.auths = append(f.auths, authCall{paymentMethod: paymentMethodID, amountCents: amountCents, key: key})
	return "auth_ref_1", nil
}

func (f *fakePayments) CaptureAuthorization(_ context.Context, authRef string, amountCents int64, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return "", f.captureErr
	}
	f.captures = append(f.captures, captureCall{authRef: authRef, amountCents: amountCents, key: key})
	return "receipt_1", nil
}

func (f *fakePayments) Transfer(_ context.Context, destination string, amountCents int64, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{destination: destination, amountCents: amountCents, key: key})
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.SessionBilling
	earnings map[string]int64
	wallets  map[int64]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*models.SessionBilling),
		earnings: make(map[string]int64),
		wallets:  make(map[int64]float64),
	}
}

func (f *fakeStore) GetForSettlement(_ context.Context, sessionID string) (*models.SessionBilling, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeStore) MarkAuthorized(_ context.Context, sessionID, authRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.sessions[sessionID]
	if !ok || b.Status != models.SessionPending {
		return false, nil
	}
	b.Status = models.SessionAuthorized
	b.AuthRef = authRef
	return true, nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.sessions[sessionID]
	if !ok || b.Status != models.SessionAuthorized {
		return false, nil
	}
	b.Status = models.SessionCompleted
	return true, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.sessions[sessionID]
	if !ok {
		return nil
	}
	if b.Status == models.SessionCompleted || b.Status == models.SessionFailed {
		return nil
	}
	b.Status = models.SessionFailed
	b.FailureReason = reason
	return nil
}

func (f *fakeStore) RecordEarning(_ context.Context, sessionID string, amountCents int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.earnings[sessionID]; exists {
		return nil
	}
	f.earnings[sessionID] = amountCents
	return nil
}

func (f *fakeStore) EarningBySession(_ context.Context, sessionID string) (*models.PlatformEarning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cents, ok := f.earnings[sessionID]
	if !ok {
		return nil, nil
	}
	return &models.PlatformEarning{SessionID: sessionID, AmountCents: cents}, nil
}

func (f *fakeStore) CreditWallet(_ context.Context, ownerID int64, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[ownerID] += amount
	return nil
}

func pendingSession(id string) *models.SessionBilling {
	return &models.SessionBilling{
		SessionID:       id,
		DriverID:        7,
		StationID:       "st-1",
		OwnerID:         42,
		Status:          models.SessionPending,
		StartTime:       time.Now().Add(-time.Hour),
		PaymentMethodID: "pm_77",
	}
}

func closedSession(id string, cost float64) *models.SessionBilling {
	b := pendingSession(id)
	b.Status = models.SessionAuthorized
	b.AuthRef = "auth_ref_1"
	end := b.StartTime.Add(30 * time.Minute)
	b.EndTime = &end
	b.TotalCost = &cost
	return b
}

func newTestEngine(store *fakeStore, payments *fakePayments) *Engine {
	return NewEngine(store, payments, 0, 0, zap.NewNop())
}

func TestAuthorizePlacesHold(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	store.sessions["s1"] = pendingSession("s1")
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionOpened,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(payments.auths) != 1 {
		t.Fatalf("auth calls = %d, want 1", len(payments.auths))
	}
	call := payments.auths[0]
	if call.paymentMethod != "pm_77" {
		t.Errorf("payment method = %q, want pm_77", call.paymentMethod)
	}
	if call.amountCents != DefaultHoldCents {
		t.Errorf("hold = %d cents, want %d", call.amountCents, DefaultHoldCents)
	}
	if call.key != "auth-s1" {
		t.Errorf("idempotency key = %q, want auth-s1", call.key)
	}

	got := store.sessions["s1"]
	if got.Status != models.SessionAuthorized {
		t.Errorf("status = %q, want authorized", got.Status)
	}
	if got.AuthRef != "auth_ref_1" {
		t.Errorf("auth ref = %q, want auth_ref_1", got.AuthRef)
	}
}

func TestAuthorizeWithoutPaymentMethodFailsSession(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	s := pendingSession("s1")
	s.PaymentMethodID = ""
	store.sessions["s1"] = s
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionOpened,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(payments.auths) != 0 {
		t.Errorf("auth calls = %d, want 0", len(payments.auths))
	}
	got := store.sessions["s1"]
	if got.Status != models.SessionFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.FailureReason != models.ReasonNoPaymentMethod {
		t.Errorf("failure reason = %q, want %q", got.FailureReason, models.ReasonNoPaymentMethod)
	}
}

func TestAuthorizeDeclineFailsSession(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{authErr: errors.New("card declined")}
	store.sessions["s1"] = pendingSession("s1")
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionOpened,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := store.sessions["s1"]
	if got.Status != models.SessionFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.FailureReason != models.ReasonAuthorization {
		t.Errorf("failure reason = %q, want %q", got.FailureReason, models.ReasonAuthorization)
	}
}

func TestAuthorizeRedeliveryIsNoOp(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	s := pendingSession("s1")
	s.Status = models.SessionAuthorized
	s.AuthRef = "auth_ref_1"
	store.sessions["s1"] = s
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionOpened,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(payments.auths) != 0 {
		t.Errorf("auth calls on redelivery = %d, want 0", len(payments.auths))
	}
}

func TestCaptureSplitsOwnerAndPlatform(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	store.sessions["s1"] = closedSession("s1", 10.00)
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionClosed,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(payments.captures) != 1 {
		t.Fatalf("capture calls = %d, want 1", len(payments.captures))
	}
	capture := payments.captures[0]
	if capture.authRef != "auth_ref_1" {
		t.Errorf("capture ref = %q, want auth_ref_1", capture.authRef)
	}
	if capture.amountCents != 1000 {
		t.Errorf("capture = %d cents, want 1000", capture.amountCents)
	}

	// Owner has no payout account, so the 95% share lands in the wallet.
	if got := store.wallets[42]; math.Abs(got-9.50) > 1e-9 {
		t.Errorf("wallet balance = %v, want 9.50", got)
	}
	if len(payments.transfers) != 0 {
		t.Errorf("transfer calls = %d, want 0", len(payments.transfers))
	}
	if got := store.earnings["s1"]; got != 50 {
		t.Errorf("platform earning = %d cents, want 50", got)
	}
	if store.sessions["s1"].Status != models.SessionCompleted {
		t.Errorf("status = %q, want completed", store.sessions["s1"].Status)
	}
}

func TestCaptureTransfersToPayoutAccount(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	s := closedSession("s1", 10.00)
	s.PayoutAccountID = "acct_9"
	store.sessions["s1"] = s
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionClosed,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(payments.transfers) != 1 {
		t.Fatalf("transfer calls = %d, want 1", len(payments.transfers))
	}
	transfer := payments.transfers[0]
	if transfer.destination != "acct_9" {
		t.Errorf("destination = %q, want acct_9", transfer.destination)
	}
	if transfer.amountCents != 950 {
		t.Errorf("transfer = %d cents, want 950", transfer.amountCents)
	}
	if got := store.wallets[42]; got != 0 {
		t.Errorf("wallet balance = %v, want 0", got)
	}
}

func TestCaptureRoundsOddCents(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	store.sessions["s1"] = closedSession("s1", 0.99)
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionClosed,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	// 99 cents split: platform round(4.95) = 5, owner takes the remainder.
	if got := payments.captures[0].amountCents; got != 99 {
		t.Errorf("capture = %d cents, want 99", got)
	}
	if got := store.earnings["s1"]; got != 5 {
		t.Errorf("platform earning = %d cents, want 5", got)
	}
	if got := store.wallets[42]; math.Abs(got-0.94) > 1e-9 {
		t.Errorf("wallet balance = %v, want 0.94", got)
	}
}

func TestCaptureRedeliveryIsNoOp(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	store.sessions["s1"] = closedSession("s1", 10.00)
	engine := newTestEngine(store, payments)

	ev := libevents.SessionEvent{Type: libevents.TypeSessionClosed, SessionID: "s1"}
	if err := engine.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := engine.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("second delivery error = %v", err)
	}

	if len(payments.captures) != 1 {
		t.Errorf("capture calls after redelivery = %d, want 1", len(payments.captures))
	}
	if got := store.wallets[42]; math.Abs(got-9.50) > 1e-9 {
		t.Errorf("wallet balance after redelivery = %v, want 9.50", got)
	}
	if got := store.earnings["s1"]; got != 50 {
		t.Errorf("platform earning after redelivery = %d cents, want 50", got)
	}
}

func TestCaptureBeforeAuthorizationIsDeferred(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{}
	s := closedSession("s1", 10.00)
	s.Status = models.SessionPending
	s.AuthRef = ""
	store.sessions["s1"] = s
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionClosed,
		SessionID: "s1",
	})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("HandleEvent() error = %v, want ErrNotReady", err)
	}
	if len(payments.captures) != 0 {
		t.Errorf("capture calls = %d, want 0", len(payments.captures))
	}
}

func TestCaptureDeclineFailsSession(t *testing.T) {
	store := newFakeStore()
	payments := &fakePayments{captureErr: errors.New("insufficient funds")}
	store.sessions["s1"] = closedSession("s1", 10.00)
	engine := newTestEngine(store, payments)

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      libevents.TypeSessionClosed,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := store.sessions["s1"]
	if got.Status != models.SessionFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.FailureReason != models.ReasonCapture {
		t.Errorf("failure reason = %q, want %q", got.FailureReason, models.ReasonCapture)
	}
	if got := store.wallets[42]; got != 0 {
		t.Errorf("wallet balance = %v, want 0", got)
	}
}

func TestUnknownEventTypeIsAcked(t *testing.T) {
	engine := newTestEngine(newFakeStore(), &fakePayments{})

	err := engine.HandleEvent(context.Background(), libevents.SessionEvent{
		Type:      "station_painted",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
}
