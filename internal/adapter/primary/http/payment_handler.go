package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/input"
)

// maxWebhookBody bounds what a gateway callback may send
const maxWebhookBody = 1 << 20

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	paymentService input.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService input.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// RegisterRoutes mounts the API on e
func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.POST("/payments", h.CreatePayment)
	api.GET("/payments/:id", h.GetPayment)
	api.POST("/payments/:reference/verify", h.VerifyPayment)
	api.POST("/payments/:id/refunds", h.CreateRefund)
	api.GET("/payments/:id/refunds", h.ListRefunds)
	api.POST("/webhooks/:provider", h.HandleWebhook)
	api.GET("/providers/:provider/mobile-networks/:country", h.MobileNetworks)
	api.GET("/providers/:provider/fx-rate", h.ExchangeRate)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// CustomerRequest identifies the payer
type CustomerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// CreatePaymentRequest represents the HTTP request to create a payment
type CreatePaymentRequest struct {
	BookingID   string            `json:"booking_id" validate:"required,max=64"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency" validate:"required,len=3,alpha"`
	Provider    string            `json:"provider" validate:"required,oneof=flutterwave paystack"`
	Method      string            `json:"method" validate:"omitempty,oneof=checkout card mobile_money"`
	Reference   string            `json:"reference" validate:"omitempty,max=128"`
	Customer    CustomerRequest   `json:"customer"`
	Network     string            `json:"network"`
	Country     string            `json:"country" validate:"omitempty,len=2,alpha"`
	RedirectURL string            `json:"redirect_url" validate:"omitempty,url"`
	Metadata    map[string]string `json:"metadata"`
}

// PaymentResponse represents the HTTP response for a payment
type PaymentResponse struct {
	ID           string  `json:"id"`
	BookingID    string  `json:"booking_id"`
	Reference    string  `json:"reference"`
	Amount       string  `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	Method       string  `json:"method"`
	Provider     string  `json:"provider"`
	ProviderID   string  `json:"provider_id,omitempty"`
	ExpiresAt    string  `json:"expires_at"`
	SupersededBy *string `json:"superseded_by,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// CreatePaymentResponse adds how the customer completes the payment
type CreatePaymentResponse struct {
	Payment      PaymentResponse `json:"payment"`
	RedirectURL  string          `json:"redirect_url,omitempty"`
	QRCode       string          `json:"qr_code,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

// CreateRefundRequest asks for a refund; omit amount to refund the balance
type CreateRefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"max=255"`
}

// RefundResponse represents the HTTP response for a refund
type RefundResponse struct {
	ID               string `json:"id"`
	PaymentID        string `json:"payment_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Reason           string `json:"reason,omitempty"`
	Status           string `json:"status"`
	ProviderRefundID string `json:"provider_refund_id,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// ExchangeRateResponse is a quoted conversion
type ExchangeRateResponse struct {
	Rate                string `json:"rate"`
	SourceAmount        string `json:"source_amount"`
	SourceCurrency      string `json:"source_currency"`
	DestinationAmount   string `json:"destination_amount"`
	DestinationCurrency string `json:"destination_currency"`
}

func toPaymentResponse(p *input.PaymentResponse) PaymentResponse {
	out := PaymentResponse{
		ID:         p.ID.String(),
		BookingID:  p.BookingID,
		Reference:  p.Reference,
		Amount:     p.Amount.String(),
		Currency:   string(p.Currency),
		Status:     string(p.Status),
		Method:     string(p.Method),
		Provider:   string(p.Provider),
		ProviderID: p.ProviderID,
		ExpiresAt:  p.ExpiresAt.Format(time.RFC3339),
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}
	if p.SupersededBy != nil {
		id := p.SupersededBy.String()
		out.SupersededBy = &id
	}
	return out
}

func toRefundResponse(r *input.RefundResponse) RefundResponse {
	return RefundResponse{
		ID:               r.ID.String(),
		PaymentID:        r.PaymentID.String(),
		Amount:           r.Amount.String(),
		Currency:         string(r.Currency),
		Reason:           r.Reason,
		Status:           string(r.Status),
		ProviderRefundID: r.ProviderRefundID,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

// CreatePayment handles payment initiation
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	// Convert to service request
	serviceReq := input.InitiatePaymentRequest{
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  core.Currency(strings.ToUpper(req.Currency)),
		Provider:  core.Provider(req.Provider),
		Method:    core.Method(req.Method),
		Reference: req.Reference,
		Customer: core.Customer{
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
			Name:  req.Customer.Name,
		},
		Network:     req.Network,
		Country:     req.Country,
		RedirectURL: req.RedirectURL,
		Metadata:    req.Metadata,
	}

	// Call service (input port)
	response, err := h.paymentService.InitiatePayment(c.Request().Context(), serviceReq)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, CreatePaymentResponse{
		Payment:      toPaymentResponse(&response.Payment),
		RedirectURL:  response.RedirectURL,
		QRCode:       response.QRCode,
		Instructions: response.Instructions,
	})
}

// GetPayment handles payment retrieval by ID
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid payment ID")
	}

	response, err := h.paymentService.GetPayment(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResponse(response))
}

// VerifyPayment polls the gateway for a reference
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("reference"))
	if ref == "" {
		return errorJSON(c, http.StatusBadRequest, "Invalid reference")
	}

	response, err := h.paymentService.VerifyPayment(c.Request().Context(), ref)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResponse(response))
}

// CreateRefund refunds all or part of a confirmed payment
func (h *PaymentHandler) CreateRefund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid payment ID")
	}
	var req CreateRefundRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	response, err := h.paymentService.RefundPayment(c.Request().Context(), input.RefundPaymentRequest{
		PaymentID: id,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toRefundResponse(response))
}

// ListRefunds lists refunds for a payment
func (h *PaymentHandler) ListRefunds(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid payment ID")
	}

	refunds, err := h.paymentService.ListRefunds(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]RefundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, toRefundResponse(&refunds[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// HandleWebhook receives gateway callbacks. The raw body is passed on
// untouched because signatures are computed over the exact bytes.
func (h *PaymentHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	provider := core.Provider(strings.ToLower(c.Param("provider")))
	err = h.paymentService.HandleWebhook(c.Request().Context(), provider, body, c.Request().Header)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MobileNetworks lists chargeable mobile-money networks for a country
func (h *PaymentHandler) MobileNetworks(c echo.Context) error {
	provider := core.Provider(strings.ToLower(c.Param("provider")))
	networks, err := h.paymentService.MobileMoneyNetworks(c.Request().Context(), provider, strings.ToUpper(c.Param("country")))
	if err != nil {
		return serviceError(c, err)
	}
	if networks == nil {
		networks = []core.MobileNetwork{}
	}
	return c.JSON(http.StatusOK, networks)
}

// ExchangeRate quotes ?from=&to=&amount=
func (h *PaymentHandler) ExchangeRate(c echo.Context) error {
	from, err := core.ParseCurrency(c.QueryParam("from"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	to, err := core.ParseCurrency(c.QueryParam("to"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(c.QueryParam("amount"))
	if err != nil || !amount.IsPositive() {
		return errorJSON(c, http.StatusBadRequest, "amount must be a positive number")
	}

	provider := core.Provider(strings.ToLower(c.Param("provider")))
	rate, err := h.paymentService.ExchangeRate(c.Request().Context(), provider, from, to, amount)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, ExchangeRateResponse{
		Rate:                rate.Rate.String(),
		SourceAmount:        rate.Source.Amount.String(),
		SourceCurrency:      string(rate.Source.Currency),
		DestinationAmount:   rate.Destination.Amount.String(),
		DestinationCurrency: string(rate.Destination.Currency),
	})
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// serviceError maps domain errors onto HTTP status codes
func serviceError(c echo.Context, err error) error {
	var (
		decline   *core.GatewayDeclineError
		refundErr *core.InvalidRefundError
		transport *core.TransportError
	)
	switch {
	case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, core.ErrUnsupportedMethod):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidSignature):
		return errorJSON(c, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, core.ErrPaymentNotFound):
		return errorJSON(c, http.StatusNotFound, "Payment not found")
	case errors.Is(err, core.ErrUnknownProvider):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateReference), errors.Is(err, core.ErrBookingAlreadyPaid):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.As(err, &refundErr):
		return errorJSON(c, http.StatusUnprocessableEntity, refundErr.Error())
	case errors.As(err, &decline):
		return errorJSON(c, http.StatusUnprocessableEntity, decline.Error())
	case errors.As(err, &transport):
		c.Logger().Error(err)
		return errorJSON(c, http.StatusBadGateway, "Payment provider unavailable")
	}
	c.Logger().Error(err)
	return errorJSON(c, http.StatusInternalServerError, "Internal error")
}
