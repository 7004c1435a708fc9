package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("1234567890", "token-abc")
	c.SetGraphAPIBase(srv.URL)
	return c
}

func TestSendTemplate(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1234567890/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"+353871234567","wa_id":"353871234567"}],"messages":[{"id":"wamid.123"}]}`))
	})
	c.SetLanguage("en_GB")

	resp, err := c.SendTemplate(context.Background(), "+353871234567", "appointment_reminder", []string{"Mary", "Tuesday, 11 March 2025 at 10:00"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.123", resp.MessageID())

	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "template", got["type"])
	assert.Equal(t, "+353871234567", got["to"])
	tmpl := got["template"].(map[string]any)
	assert.Equal(t, "appointment_reminder", tmpl["name"])
	assert.Equal(t, "en_GB", tmpl["language"].(map[string]any)["code"])
	params := tmpl["components"].([]any)[0].(map[string]any)["parameters"].([]any)
	require.Len(t, params, 2)
	assert.Equal(t, "Mary", params[0].(map[string]any)["text"])
}

func TestSendText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messages":[{"id":"wamid.456"}]}`))
	})

	resp, err := c.SendText(context.Background(), "+353871234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.456", resp.MessageID())
	assert.Equal(t, "individual", got["recipient_type"])
	assert.Equal(t, "hello", got["text"].(map[string]any)["body"])
	assert.Equal(t, false, got["text"].(map[string]any)["preview_url"])
}

func TestMarkRead(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.MarkRead(context.Background(), "wamid.in"))
	assert.Equal(t, "read", got["status"])
	assert.Equal(t, "wamid.in", got["message_id"])
}

func TestSendAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Template name does not exist","type":"OAuthException","code":132001}}`))
	})

	_, err := c.SendTemplate(context.Background(), "+353871234567", "missing", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 132001, apiErr.Code)
	assert.Contains(t, err.Error(), "Template name does not exist")
}

func TestSendNotConfigured(t *testing.T) {
	c := NewClient("", "token")
	assert.False(t, c.IsConfigured())
	_, err := c.SendText(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
