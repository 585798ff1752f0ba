package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendText(t *testing.T) {
	var got sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": {"fromMe": true, "_serialized": "true_5511999999999@c.us_ABC123"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", "default", time.Second)
	id, err := c.SendText(context.Background(), "5511999999999@c.us", "oi")
	require.NoError(t, err)

	assert.Equal(t, "true_5511999999999@c.us_ABC123", id)
	assert.Equal(t, "ABC123", ShortID(id))
	assert.Equal(t, sendTextRequest{Session: "default", ChatID: "5511999999999@c.us", Text: "oi"}, got)
}

func TestClientSendTextPlainID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "ABC123"}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, "", "default", time.Second).SendText(context.Background(), "x@c.us", "oi")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", id)
}

func TestClientSendTextErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "default", time.Second).SendText(context.Background(), "x@c.us", "oi")
	assert.ErrorContains(t, err, "422")
}

func TestClientSendTextMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "default", time.Second).SendText(context.Background(), "x@c.us", "oi")
	assert.ErrorContains(t, err, "no message id")
}

func TestInboundMessageAccessors(t *testing.T) {
	var evt InboundEvent
	raw := `{"event": "message", "session": "default", "payload": {
		"id": "false_5511999999999@c.us_3EB0AA", "from": "5511999999999@c.us", "to": "5511888888888@c.us",
		"body": "Olá", "fromMe": false, "timestamp": 1760000000}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &evt))

	assert.True(t, evt.IsMessage())
	m := evt.Payload
	assert.Equal(t, "false_5511999999999@c.us_3EB0AA", m.MessageID())
	assert.Equal(t, "5511999999999@c.us", m.ChatID())
	assert.Equal(t, "5511999999999", m.Phone())
	assert.Equal(t, "text", m.MessageType())
	require.NotNil(t, m.SentAt())
	assert.Equal(t, int64(1760000000), m.SentAt().Unix())

	m.FromMe = true
	assert.Equal(t, "5511888888888@c.us", m.ChatID())
}
