package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/wacrm-backend/internal/controller"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/service"
	"github.com/unclebandit/wacrm-backend/internal/whatsapp"
)

// --- Mock Ingester ---

type MockIngester struct {
	seen map[string]bool
	got  []whatsapp.InboundMessage
	err  error
}

func (m *MockIngester) IngestWhatsApp(_ context.Context, in whatsapp.InboundMessage) (*model.Message, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	m.got = append(m.got, in)
	short := whatsapp.ShortID(in.MessageID())
	if short == "" {
		return nil, false, appErrors.ErrInvalidMessageID
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	created := !m.seen[short]
	m.seen[short] = true
	return &model.Message{ID: "msg-" + short, ProviderMessageID: short}, created, nil
}

const inboundBody = `{
	"event": "message",
	"session": "default",
	"payload": {
		"id": "false_5511999990000@c.us_3EB0725EB8EE5F6CC14B33",
		"from": "5511999990000@c.us",
		"body": "Olá",
		"fromMe": false
	}
}`

func postInbound(t *testing.T, c *controller.InboundController, body string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(service.HeaderSignature, signature)
	}
	rec := httptest.NewRecorder()
	c.ReceiveWhatsApp(rec, req)
	return rec
}

func TestReceiveWhatsAppIsIdempotent(t *testing.T) {
	ingester := &MockIngester{}
	c := &controller.InboundController{Ingest: ingester}

	first := postInbound(t, c, inboundBody, "")
	require.Equal(t, http.StatusOK, first.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))
	assert.Equal(t, "3EB0725EB8EE5F6CC14B33", resp["provider_message_id"])
	assert.Equal(t, true, resp["created"])

	second := postInbound(t, c, inboundBody, "")
	require.Equal(t, http.StatusOK, second.Code)
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["created"])
	assert.Equal(t, "msg-3EB0725EB8EE5F6CC14B33", resp["message_id"])
}

func TestReceiveWhatsAppSignature(t *testing.T) {
	ingester := &MockIngester{}
	c := &controller.InboundController{Ingest: ingester, Secret: "gateway-secret"}

	rec := postInbound(t, c, inboundBody, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ingester.got)

	rec = postInbound(t, c, inboundBody, service.Sign("gateway-secret", []byte(inboundBody)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ingester.got, 1)
}

func TestReceiveWhatsAppIgnoresOtherEvents(t *testing.T) {
	ingester := &MockIngester{}
	c := &controller.InboundController{Ingest: ingester}

	rec := postInbound(t, c, `{"event":"session.status","payload":{}}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ignored":true,"event":"session.status"}`, rec.Body.String())
	assert.Empty(t, ingester.got)
}

func TestReceiveWhatsAppErrors(t *testing.T) {
	c := &controller.InboundController{Ingest: &MockIngester{}}

	rec := postInbound(t, c, `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postInbound(t, c, `{"event":"message","payload":{"id":"","from":"1@c.us"}}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c = &controller.InboundController{Ingest: &MockIngester{err: assert.AnError}}
	rec = postInbound(t, c, inboundBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
