package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 512

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Breaker trips after this many consecutive failed calls.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client talks to the food-ordering REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	token   string
}

var _ payment.SessionGateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "backend",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
	}
}

// WithToken returns a client that sends token as the bearer credential.
// The copy shares the connection pool and circuit breaker.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type initiateSessionRequest struct {
	Amount       float64 `json:"amount"`
	MobileNumber *string `json:"mobileNumber"`
}

func (c *Client) InitiateSession(ctx context.Context, amount decimal.Decimal, phoneHint string) (*payment.SessionGrant, error) {
	req := initiateSessionRequest{Amount: amount.InexactFloat64()}
	if phoneHint != "" {
		req.MobileNumber = &phoneHint
	}

	body, err := c.doMap(ctx, http.MethodPost, "/Payment/initiate-session", req)
	if err != nil {
		return nil, err
	}

	grant := &payment.SessionGrant{
		RedirectURL:   firstString(body, redirectURLPaths),
		TransactionID: firstString(body, transactionIDPaths),
		SessionID:     firstString(body, sessionIDPaths),
	}
	if grant.RedirectURL == "" {
		return nil, ErrNoRedirectURL
	}
	return grant, nil
}

func (c *Client) VerifyPayment(ctx context.Context, transactionID string) (*payment.Verification, error) {
	body, err := c.doMap(ctx, http.MethodGet, "/Payment/verify/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return nil, err
	}

	v := &payment.Verification{
		Status:        firstString(body, statusPaths),
		TransactionID: firstString(body, transactionIDPaths),
		Raw:           body,
	}
	if v.TransactionID == "" {
		v.TransactionID = transactionID
	}
	if raw := firstString(body, amountPaths); raw != "" {
		if amount, errAmount := decimal.NewFromString(raw); errAmount == nil {
			v.Amount = amount
		}
	}
	return v, nil
}

type createOrderAfterPaymentRequest struct {
	TransactionID string                    `json:"transactionId"`
	OrderData     checkout.PendingOrderData `json:"orderData"`
}

func (c *Client) CreateOrderAfterPayment(ctx context.Context, transactionID string, order checkout.PendingOrderData) (*domain.OrderRecord, error) {
	req := createOrderAfterPaymentRequest{TransactionID: transactionID, OrderData: order}
	return c.doOrder(ctx, "/Payment/create-order-after-payment", req)
}

// CreateOrder places a cash-on-delivery order.
func (c *Client) CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (*domain.OrderRecord, error) {
	return c.doOrder(ctx, "/Orders", req)
}

func (c *Client) doOrder(ctx context.Context, path string, payload any) (*domain.OrderRecord, error) {
	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	var record domain.OrderRecord
	if len(bytes.TrimSpace(raw)) == 0 {
		return &record, nil
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &record, nil
}

func (c *Client) doMap(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrCircuitOpen)
	}
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
