package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookNotifySendsPayload(t *testing.T) {
	var (
		gotBody        []byte
		gotContentType string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &WebhookNotifier{URL: server.URL}

	err := n.Notify(context.Background(), "download.completed", map[string]any{
		"downloadId": "d1",
		"filename":   "1.1 Clip.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)

	var got payload

	require.NoError(t, json.Unmarshal(gotBody, &got))
	require.Equal(t, "download.completed", got.Event)
	require.Equal(t, "MediaFetch", got.Service)
	require.NotEmpty(t, got.Timestamp)

	data, ok := got.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "d1", data["downloadId"])
}

func TestWebhookNotifySignsWhenSecretSet(t *testing.T) {
	const secret = "shh"

	var (
		gotBody      []byte
		gotSecret    string
		gotSignature string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSecret = r.Header.Get("X-Webhook-Secret")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &WebhookNotifier{URL: server.URL, Secret: secret}

	require.NoError(t, n.Notify(context.Background(), "download.completed", nil))
	require.Equal(t, secret, gotSecret)
	require.True(t, strings.HasPrefix(gotSignature, "sha256="))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookNotifyNoSignatureWithoutSecret(t *testing.T) {
	var gotSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &WebhookNotifier{URL: server.URL}

	require.NoError(t, n.Notify(context.Background(), "download.completed", nil))
	require.Empty(t, gotSignature)
}

func TestWebhookNotifyErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := &WebhookNotifier{URL: server.URL}

	err := n.Notify(context.Background(), "download.completed", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestWebhookNotifyRequiresURL(t *testing.T) {
	n := &WebhookNotifier{}

	require.Error(t, n.Notify(context.Background(), "download.completed", nil))
}
