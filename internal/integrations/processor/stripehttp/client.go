// Package stripehttp — клиент Stripe-совместимого API платёжного
// процессинга (форма в запросе, JSON в ответе).
package stripehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/xIfe3/swipline/internal/integrations/processor"
)

type Client struct {
	baseURL   string
	secretKey string
	httpc     *http.Client
}

// New создаёт клиента. timeout ограничивает весь вызов: зависший
// процессинг не должен держать наш запрос.
func New(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type intentResp struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateIntent(ctx context.Context, in processor.CreateIntentInput) (processor.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(in.Amount, 10))
	form.Set("currency", in.Currency)
	if in.Description != "" {
		form.Set("description", in.Description)
	}
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range in.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return processor.Intent{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return processor.Intent{}, errors.Wrap(err, "create intent")
	}
	defer resp.Body.Close()

	var r intentResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return processor.Intent{}, errors.Wrap(err, "decode intent response")
	}

	if resp.StatusCode/100 != 2 {
		msg := ""
		if r.Error != nil {
			msg = r.Error.Message
		}
		return processor.Intent{}, fmt.Errorf("processor http %d: %s", resp.StatusCode, msg)
	}
	if r.ID == "" || r.ClientSecret == "" {
		return processor.Intent{}, errors.New("processor returned incomplete intent")
	}

	return processor.Intent{
		ID:           r.ID,
		ClientSecret: r.ClientSecret,
		Status:       r.Status,
	}, nil
}
