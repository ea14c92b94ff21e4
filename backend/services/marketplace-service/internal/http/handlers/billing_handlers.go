package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/http/middleware"
	"chargeshare/backend/services/marketplace-service/internal/repository"
)

// BillingHandlers manages the user's billing profile and wallet.
type BillingHandlers struct {
	users  *repository.UserRepository
	logger *zap.Logger
}

// NewBillingHandlers returns handler set.
func NewBillingHandlers(users *repository.UserRepository, logger *zap.Logger) *BillingHandlers {
	return &BillingHandlers{users: users, logger: logger}
}

// SetPaymentMethod handles POST /billing/payment-method. The id is a token
// minted by the payment provider's client SDK; the raw card never reaches us.
func (h *BillingHandlers) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentMethodID == "" {
		writeError(w, http.StatusBadRequest, "payment_method_id is required")
		return
	}

	if err := h.users.SetPaymentMethod(r.Context(), userID, req.PaymentMethodID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetPayoutAccount handles POST /billing/payout-account.
func (h *BillingHandlers) SetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		PayoutAccountID string `json:"payout_account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PayoutAccountID == "" {
		writeError(w, http.StatusBadRequest, "payout_account_id is required")
		return
	}

	if err := h.users.SetPayoutAccount(r.Context(), userID, req.PayoutAccountID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Wallet handles GET /billing/wallet.
func (h *BillingHandlers) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_balance":     user.WalletBalance,
		"payout_account_id":  user.PayoutAccountID,
		"payment_method_set": user.PaymentMethodID != "",
	})
}
