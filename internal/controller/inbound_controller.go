package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/service"
	"github.com/unclebandit/wacrm-backend/internal/whatsapp"
)

const maxInboundBody = 1 << 20

type MessageIngester interface {
	IngestWhatsApp(ctx context.Context, m whatsapp.InboundMessage) (*model.Message, bool, error)
}

// InboundController receives the WhatsApp gateway webhook.
type InboundController struct {
	Ingest MessageIngester
	// Secret, when set, is checked against X-Webhook-Signature.
	Secret string
	Log    *zap.Logger
}

func (c *InboundController) ReceiveWhatsApp(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if c.Secret != "" && !service.Verify(c.Secret, body, r.Header.Get(service.HeaderSignature)) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var evt whatsapp.InboundEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !evt.IsMessage() {
		WriteJSON(w, http.StatusOK, map[string]any{"ignored": true, "event": evt.Event})
		return
	}

	msg, created, err := c.Ingest.IngestWhatsApp(r.Context(), evt.Payload)
	if err != nil {
		if c.Log != nil {
			c.Log.Error("inbound message ingest failed", zap.String("session", evt.Session), zap.Error(err))
		}
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"message_id":          msg.ID,
		"provider_message_id": msg.ProviderMessageID,
		"created":             created,
	})
}
