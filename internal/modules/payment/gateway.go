package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autorent/internal/config"
	"autorent/internal/domain"
)

// Intent statuses as the gateway reports them.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
	IntentCanceled       = "canceled"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// HTTPGateway talks to a Stripe-style PaymentIntents API. Amounts go over
// the wire in the currency's minor unit. Reads are retried with backoff
// because they are idempotent; creates and refunds are not retried here,
// the caller decides whether to re-attempt those.
type HTTPGateway struct {
	cfg    config.Gateway
	client *http.Client
}

func NewHTTPGateway(cfg config.Gateway) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, amount domain.Money, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.Cents, 10))
	form.Set("currency", strings.ToLower(amount.Currency))
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	var intent Intent
	if err := g.do(ctx, http.MethodPost, "/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (g *HTTPGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	var intent Intent
	var err error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = g.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil, &intent)
		if err == nil {
			return &intent, nil
		}
	}
	return nil, err
}

func (g *HTTPGateway) RefundIntent(ctx context.Context, id string) error {
	form := url.Values{}
	form.Set("payment_intent", id)
	return g.do(ctx, http.MethodPost, "/refunds", form, &struct{}{})
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", ErrGateway, method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return nil
}
