package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kalambet/optilead/internal/storage"
)

// StatusActive is the only subscription status that grants access.
const StatusActive = "active"

// BillingRedirect is where clients send users whose subscription lapsed.
const BillingRedirect = "/billing-required"

// Result is the outcome of a subscription check.
type Result struct {
	Success            bool
	UserID             string
	SubscriptionStatus string
	PlanType           string
	Error              string
	StatusCode         int
}

// ErrorResponse is the JSON body returned when a check fails.
type ErrorResponse struct {
	Error              string  `json:"error"`
	Message            string  `json:"message"`
	SubscriptionStatus *string `json:"subscriptionStatus"`
	RedirectTo         string  `json:"redirectTo"`
}

// ErrorBody renders a failed Result.
func (r Result) ErrorBody() ErrorResponse {
	var status *string
	if r.SubscriptionStatus != "" {
		s := r.SubscriptionStatus
		status = &s
	}
	return ErrorResponse{
		Error:              "Subscription required",
		Message:            r.Error,
		SubscriptionStatus: status,
		RedirectTo:         BillingRedirect,
	}
}

// Verifier resolves the caller and checks their subscription.
type Verifier struct {
	users  storage.UserStore
	secret []byte
	logger *slog.Logger
}

// NewVerifier creates a Verifier. When jwtSecret is non-empty the user id is
// taken only from the "sub" claim of an HS256 bearer token; otherwise it is
// read from the X-User-ID header.
func NewVerifier(users storage.UserStore, jwtSecret string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{users: users, logger: logger}
	if jwtSecret != "" {
		v.secret = []byte(jwtSecret)
	}
	return v
}

var (
	errNoCredentials = errors.New("Authentication required")
	errInvalidToken  = errors.New("Invalid or expired token")
)

// UserID extracts the caller's user id from r.
func (v *Verifier) UserID(r *http.Request) (string, error) {
	if v.secret == nil {
		id := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if id == "" {
			return "", errNoCredentials
		}
		return id, nil
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errNoCredentials
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(auth[len(prefix):], &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// Verify checks that the caller of r has an active subscription.
func (v *Verifier) Verify(r *http.Request) Result {
	userID, err := v.UserID(r)
	if err != nil {
		return Result{Error: err.Error(), StatusCode: http.StatusUnauthorized}
	}
	return v.VerifyUser(r.Context(), userID)
}

// VerifyUser checks the subscription of a known user id.
func (v *Verifier) VerifyUser(ctx context.Context, userID string) Result {
	user, err := v.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Error: "User not found", StatusCode: http.StatusNotFound}
	}
	if err != nil {
		v.logger.Error("subscription verification failed", "user_id", userID, "error", err)
		return Result{Error: "Internal server error", StatusCode: http.StatusInternalServerError}
	}

	sub := user.Subscription
	if sub.Status != StatusActive {
		return Result{
			UserID:             userID,
			SubscriptionStatus: sub.Status,
			PlanType:           sub.PlanType,
			Error:              StatusMessage(sub.Status),
			StatusCode:         http.StatusPaymentRequired,
		}
	}

	return Result{
		Success:            true,
		UserID:             userID,
		SubscriptionStatus: sub.Status,
		PlanType:           sub.PlanType,
	}
}

// StatusMessage explains why a subscription in the given status blocks access.
func StatusMessage(status string) string {
	switch status {
	case "past_due":
		return "Your payment is past due. Please update your payment method to continue using OptiLeadAI features."
	case "canceled":
		return "Your subscription has been canceled. Please reactivate your plan to access OptiLeadAI features."
	case "unpaid":
		return "Your subscription payment failed. Please update your payment method to restore access."
	case "incomplete":
		return "Your subscription setup is incomplete. Please complete the payment process."
	default:
		return "You need an active subscription to access OptiLeadAI features. Please choose a plan to continue."
	}
}
