// Package resendhttp — клиент Resend-совместимого почтового API.
package resendhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/xIfe3/swipline/internal/integrations/mailer"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendReq struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResp struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, msg mailer.Message) error {
	body, err := json.Marshal(sendReq{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var r sendResp
		_ = json.NewDecoder(resp.Body).Decode(&r)
		return fmt.Errorf("mail provider http %d: %s", resp.StatusCode, r.Message)
	}
	return nil
}
