// README: Mercado Pago checkout gateway; mock mode returns local links and approves everything.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

var (
	ErrMissingAccessToken = errors.New("missing PAYMENT_ACCESS_TOKEN")
	ErrNotConfigured      = errors.New("mercado pago gateway not configured")
	ErrUnknownPayment     = errors.New("payment has no order reference")
)

const (
	mockCheckoutURL = "https://mock.payments.local/checkout/"
	mockPaymentID   = "mock:"

	statusApproved = "approved"
)

// Payment is what the gateway reports about a payment notification.
type Payment struct {
	ID       string
	OrderID  types.ID
	Status   string
	Approved bool
}

type MercadoPagoGateway struct {
	preferences     preference.Client
	payments        mppayment.Client
	notificationURL string
	mockMode        bool
	logger          *zap.Logger
}

func NewMercadoPagoGateway(accessToken, notificationURL string, mock bool, logger *zap.Logger) (*MercadoPagoGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mock {
		logger.Info("payment gateway mock mode enabled")
		return &MercadoPagoGateway{mockMode: true, logger: logger}, nil
	}
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("payment: sdk config: %w", err)
	}
	logger.Info("mercado pago client initialized")
	return &MercadoPagoGateway{
		preferences:     preference.NewClient(cfg),
		payments:        mppayment.NewClient(cfg),
		notificationURL: notificationURL,
		logger:          logger,
	}, nil
}

// CreatePayment implements order.PaymentGateway. The checkout link expires
// with the order's payment window.
func (g *MercadoPagoGateway) CreatePayment(ctx context.Context, o *order.Order) (string, error) {
	if g != nil && g.mockMode {
		url := mockCheckoutURL + string(o.ID) + "?payment_id=" + mockPaymentID + string(o.ID)
		g.logger.Info("mock checkout created", zap.String("order_id", string(o.ID)))
		return url, nil
	}
	if g == nil || g.preferences == nil {
		return "", ErrNotConfigured
	}

	req := preference.Request{
		Items: []preference.ItemRequest{{
			ID:         string(o.GigID),
			Title:      fmt.Sprintf("Order %s (%s)", o.OrderNumber, o.PackageType),
			Quantity:   1,
			UnitPrice:  float64(o.TotalAmount.Amount) / 100,
			CurrencyID: o.TotalAmount.Currency,
		}},
		ExternalReference: string(o.ID),
		NotificationURL:   g.notificationURL,
	}
	if o.PaymentExpiredAt != nil {
		expires := o.PaymentExpiredAt.UTC()
		req.Expires = true
		req.ExpirationDateTo = &expires
	}

	resp, err := g.preferences.Create(ctx, req)
	if err != nil {
		g.logger.Error("mercado pago preference failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		return "", fmt.Errorf("payment: create preference: %w", err)
	}
	g.logger.Info("mercado pago preference created",
		zap.String("order_id", string(o.ID)), zap.String("preference_id", resp.ID))
	return resp.InitPoint, nil
}

// Lookup resolves a payment id from a webhook into the order it pays for.
func (g *MercadoPagoGateway) Lookup(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if g != nil && g.mockMode {
		orderID, ok := strings.CutPrefix(paymentID, mockPaymentID)
		if !ok || orderID == "" {
			return Payment{}, ErrUnknownPayment
		}
		return Payment{ID: paymentID, OrderID: types.ID(orderID), Status: statusApproved, Approved: true}, nil
	}
	if g == nil || g.payments == nil {
		return Payment{}, ErrNotConfigured
	}

	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: invalid payment id %q", paymentID)
	}
	resp, err := g.payments.Get(ctx, id)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: get %d: %w", id, err)
	}
	if resp.ExternalReference == "" {
		return Payment{}, ErrUnknownPayment
	}
	return Payment{
		ID:       paymentID,
		OrderID:  types.ID(resp.ExternalReference),
		Status:   resp.Status,
		Approved: resp.Status == statusApproved,
	}, nil
}
