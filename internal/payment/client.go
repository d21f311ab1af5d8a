package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/apperr"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/money"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	apiVersion    = "2.1.0"
	refundCommand = "refund"
	payCommand    = "pay"
	clientIP      = "127.0.0.1"
	currency      = "VND"
	locale        = "vn"
	orderType     = "other"
)

var (
	ErrGatewayUnavailable = apperr.New(apperr.ExternalFailure, "payment gateway unavailable")
	ErrInvalidSignature   = apperr.New(apperr.InvalidArgument, "invalid gateway signature")
	ErrMalformedCallback  = apperr.New(apperr.InvalidArgument, "malformed gateway callback")
)

type Config struct {
	PayURL     string
	ReturnURL  string
	RefundURL  string
	TmnCode    string
	HashSecret string
	Timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client talks to a VNPay-style merchant API. Every request is signed with
// HMAC-SHA512 over the pipe-joined command fields.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type refundRequest struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TransactionType string `json:"vnp_TransactionType"`
	TxnRef          string `json:"vnp_TxnRef"`
	Amount          string `json:"vnp_Amount"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionNo   string `json:"vnp_TransactionNo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateBy        string `json:"vnp_CreateBy"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

type refundResponse struct {
	ResponseID   string `json:"vnp_ResponseId"`
	ResponseCode string `json:"vnp_ResponseCode"`
	Message      string `json:"vnp_Message"`
}

// Refund submits a refund command. Transport failures, non-2xx replies and an
// open breaker all surface as ErrGatewayUnavailable; a reply with a business
// code, successful or not, is returned as a result.
func (c *Client) Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error) {
	req := c.buildRefund(cmd)
	start := c.now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		metrics.RecordGatewayRequest(refundCommand, CodeUnavailable, time.Since(start))
		logger.Error("gateway refund failed", "request_id", req.RequestID, "txn_ref", cmd.ExternalRef, "error", err)
		return nil, apperr.Wrap(apperr.ExternalFailure, ErrGatewayUnavailable.Reason, err)
	}

	resp := out.(*refundResponse)
	metrics.RecordGatewayRequest(refundCommand, resp.ResponseCode, time.Since(start))
	logger.Info("gateway refund answered", "request_id", req.RequestID, "txn_ref", cmd.ExternalRef, "code", resp.ResponseCode)

	return &RefundResult{
		Code:      resp.ResponseCode,
		Message:   resp.Message,
		RequestID: req.RequestID,
	}, nil
}

func (c *Client) buildRefund(cmd RefundCommand) refundRequest {
	txnNo := cmd.ExternalTxnID
	if txnNo == "" {
		txnNo = "0"
	}

	req := refundRequest{
		RequestID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Version:         apiVersion,
		Command:         refundCommand,
		TmnCode:         c.cfg.TmnCode,
		TransactionType: cmd.TransactionType,
		TxnRef:          cmd.ExternalRef,
		Amount:          strconv.FormatInt(cmd.AmountCents, 10),
		OrderInfo:       "Refund for order " + cmd.ExternalRef,
		TransactionNo:   txnNo,
		TransactionDate: cmd.ExternalTxnAt,
		CreateBy:        cmd.Operator,
		CreateDate:      c.now().Format(timestampLayout),
		IPAddr:          clientIP,
	}

	req.SecureHash = c.sign(strings.Join([]string{
		req.RequestID, req.Version, req.Command, req.TmnCode, req.TransactionType,
		req.TxnRef, req.Amount, req.TransactionNo, req.TransactionDate,
		req.CreateBy, req.CreateDate, req.IPAddr, req.OrderInfo,
	}, "|"))
	return req
}

func (c *Client) post(ctx context.Context, req refundRequest) (*refundResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal refund request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RefundURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send refund request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("refund request: unexpected status %s", httpResp.Status)
	}

	var resp refundResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}
	if resp.ResponseCode == "" {
		return nil, fmt.Errorf("refund response carries no response code")
	}
	return &resp, nil
}

// PaymentURL builds the signed checkout URL the rider is redirected to. The
// gateway sends the rider back to ReturnURL with the result.
func (c *Client) PaymentURL(req CheckoutRequest) (string, error) {
	if req.OrderRef == "" || req.AmountCents <= 0 {
		return "", apperr.New(apperr.InvalidArgument, "checkout needs an order ref and a positive amount")
	}

	ip := req.ClientIP
	if ip == "" {
		ip = clientIP
	}

	query := url.Values{}
	query.Set("vnp_Version", apiVersion)
	query.Set("vnp_Command", payCommand)
	query.Set("vnp_TmnCode", c.cfg.TmnCode)
	query.Set("vnp_Amount", strconv.FormatInt(req.AmountCents, 10))
	query.Set("vnp_CreateDate", c.now().Format(timestampLayout))
	query.Set("vnp_CurrCode", currency)
	query.Set("vnp_IpAddr", ip)
	query.Set("vnp_Locale", locale)
	query.Set("vnp_OrderInfo", req.OrderInfo)
	query.Set("vnp_OrderType", orderType)
	query.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	query.Set("vnp_TxnRef", req.OrderRef)

	signed := CanonicalQuery(query)
	return c.cfg.PayURL + "?" + signed + "&vnp_SecureHash=" + c.sign(signed), nil
}

// VerifyCallback checks the signature of a payment return URL and extracts
// the settlement fields.
func (c *Client) VerifyCallback(query url.Values) (*Callback, error) {
	given := query.Get("vnp_SecureHash")
	if given == "" {
		return nil, ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(given)), []byte(c.sign(CanonicalQuery(query)))) {
		return nil, ErrInvalidSignature
	}

	cb := &Callback{
		OrderRef:          query.Get("vnp_TxnRef"),
		ResponseCode:      query.Get("vnp_ResponseCode"),
		TransactionStatus: query.Get("vnp_TransactionStatus"),
		TransactionNo:     query.Get("vnp_TransactionNo"),
		PayDate:           query.Get("vnp_PayDate"),
	}
	if cb.OrderRef == "" {
		return nil, ErrMalformedCallback
	}

	amount, err := money.ParseMinor(query.Get("vnp_Amount"))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, ErrMalformedCallback.Reason, err)
	}
	cb.AmountCents = amount
	return cb, nil
}

// SignQuery returns the secure hash a gateway would attach to query.
func (c *Client) SignQuery(query url.Values) string {
	return c.sign(CanonicalQuery(query))
}

// CanonicalQuery joins the vnp_ parameters sorted by key, excluding the hash
// fields themselves.
func CanonicalQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if query.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(query.Get(k)))
	}
	return strings.Join(parts, "&")
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
