package openbanking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const (
	tokenPath   = "/auth/bank-token"
	consentPath = "/account-consents/request"

	// DefaultConnectTimeout bounds TCP connection setup.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTimeout bounds a whole provider call.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 4 << 20
)

var (
	providerMeter       = otel.Meter("bank-aggregator/openbanking")
	providerRequests, _ = providerMeter.Int64Counter("provider.requests", metric.WithDescription("Provider calls by provider, operation and outcome"))
)

// NewHTTPClient builds the traced HTTP client shared by all providers.
// A single call never retries.
func NewHTTPClient(connectTimeout, timeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// client holds what every variant shares: the endpoint, the team id sent as
// X-Requesting-Bank, and the credential endpoints which all banks implement alike.
type client struct {
	id           provider.ID
	httpClient   *http.Client
	baseURL      string
	teamID       string
	teamName     string
	baseCurrency string
}

func (c *client) ID() provider.ID {
	return c.id
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// RequestToken exchanges the team credentials for a bank access token.
func (c *client) RequestToken(ctx context.Context, creds provider.TeamCredentials) (string, error) {
	q := url.Values{}
	q.Set("client_id", creds.ClientID)
	q.Set("client_secret", creds.ClientSecret)

	var resp tokenResponse
	if err := c.do(ctx, "token", http.MethodPost, tokenPath, q, nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", c.fail("token", 0, errors.New("empty access_token"))
	}
	return resp.AccessToken, nil
}

type consentResponse struct {
	ConsentID string `json:"consent_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RequestConsent asks the bank for read access to the user's data.
func (c *client) RequestConsent(ctx context.Context, token string, req ConsentRequest) (ConsentResponse, error) {
	if req.RequestingBank == "" {
		req.RequestingBank = c.teamID
	}
	if req.RequestingBankName == "" {
		req.RequestingBankName = c.teamName
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("X-Requesting-Bank", c.teamID)

	var raw consentResponse
	if err := c.do(ctx, "consent", http.MethodPost, consentPath, nil, headers, req, &raw); err != nil {
		return ConsentResponse{}, err
	}
	if raw.ConsentID == "" && raw.RequestID == "" {
		return ConsentResponse{}, c.fail("consent", 0, errors.New("response carries neither consent_id nor request_id"))
	}

	return ConsentResponse{
		ConsentID: raw.ConsentID,
		RequestID: raw.RequestID,
		Status:    parseConsentStatus(raw.Status, raw.ConsentID != ""),
	}, nil
}

func parseConsentStatus(s string, hasConsentID bool) ConsentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "authorised", "authorized", "active", "valid":
		return ConsentApproved
	case "pending", "awaitingauthorisation", "awaitingauthorization", "awaiting_approval":
		return ConsentPending
	case "rejected", "revoked", "expired":
		return ConsentRejected
	case "":
		if hasConsentID {
			return ConsentApproved
		}
		return ConsentPending
	default:
		return ConsentPending
	}
}

// dataHeaders are attached to every account-data request.
func (c *client) dataHeaders(auth Auth) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+auth.Token)
	h.Set("X-Requesting-Bank", c.teamID)
	if auth.ConsentID != "" {
		h.Set("X-Consent-Id", auth.ConsentID)
	}
	return h
}

// do issues one request and decodes a 2xx JSON body into out.
func (c *client) do(ctx context.Context, op, method, path string, query url.Values, headers http.Header, body, out any) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		providerRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", c.id.Name()),
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return c.fail(op, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return c.fail(op, 0, fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(op, 0, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.fail(op, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := c.fail(op, resp.StatusCode, fmt.Errorf("unexpected status: %s", truncate(payload, 200)))
		if resp.StatusCode == http.StatusForbidden && mentionsPending(payload) {
			perr.Kind = banking.ErrConsentPending
		}
		return perr
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return c.fail(op, resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

func (c *client) fail(op string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   c.id.Name(),
		Op:         op,
		StatusCode: status,
		Kind:       banking.ErrProviderUnavailable,
		Err:        err,
	}
}

func mentionsPending(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "pending") || strings.Contains(s, "awaitingauthori")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Options configures the provider variants.
type Options struct {
	HTTPClient   *http.Client
	Team         provider.TeamCredentials
	BaseCurrency string
}

// New returns the variant matching p.ID.
func New(p provider.Provider, opts Options) (Provider, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(0, 0)
	}
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = "RUB"
	}
	base := client{
		id:           p.ID,
		httpClient:   opts.HTTPClient,
		baseURL:      strings.TrimRight(p.BaseURL, "/"),
		teamID:       opts.Team.ClientID,
		teamName:     opts.Team.TeamName,
		baseCurrency: opts.BaseCurrency,
	}

	switch p.ID {
	case provider.VBank:
		return &vbankClient{client: base}, nil
	case provider.SBank:
		return &sbankClient{client: base}, nil
	case provider.ABank:
		return &abankClient{client: base}, nil
	default:
		return nil, fmt.Errorf("%w: %d", provider.ErrUnknownProvider, p.ID)
	}
}

// NewAll builds a variant for every provider in the registry.
func NewAll(reg *provider.Registry, opts Options) (map[provider.ID]Provider, error) {
	if opts.Team == (provider.TeamCredentials{}) {
		opts.Team = reg.Credentials()
	}
	out := make(map[provider.ID]Provider)
	for _, p := range reg.All() {
		v, err := New(p, opts)
		if err != nil {
			return nil, err
		}
		out[p.ID] = v
	}
	return out, nil
}
