package resendhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xIfe3/swipline/internal/integrations/mailer"
)

func TestClient_Send_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		require.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var req sendReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Swipline <updates@swipline.com>", req.From)
		require.Equal(t, []string{"alice@example.com"}, req.To)
		require.Contains(t, req.Subject, "SWPL")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "re_test", 2*time.Second)
	err := c.Send(context.Background(), mailer.Message{
		From:    "Swipline <updates@swipline.com>",
		To:      []string{"alice@example.com"},
		Subject: "Your Tracking ID: SWPL250301AAAAAA",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)
}

func TestClient_Send_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "re_test", 2*time.Second)
	err := c.Send(context.Background(), mailer.Message{To: []string{"a@b.c"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}
