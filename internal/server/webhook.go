package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oliverwm/ragserver/internal/logging"
)

// signatureHeader carries the object storage event notification signature,
// formatted as "v1=<hex hmac-sha256 of the raw body>".
const signatureHeader = "x-bz-event-notification-signature"

// maxWebhookBody bounds the event payload size read into memory.
const maxWebhookBody = 1 << 20

var (
	// errSignatureMissing reports that the signature header was absent.
	errSignatureMissing = errors.New("server: event notification signature missing")
	// errSignatureInvalid reports a malformed or mismatched signature.
	errSignatureInvalid = errors.New("server: event notification signature invalid")
)

// verifySignature checks an event notification signature against the raw
// request body. The signature must be "v1=" followed by the lower-case hex
// HMAC-SHA256 of the body under secret, and is compared in constant time.
func verifySignature(body []byte, header, secret string) error {
	if header == "" {
		return errSignatureMissing
	}
	parts := strings.Split(header, "=")
	if len(parts) != 2 {
		return errSignatureInvalid
	}
	if parts[0] != "v1" {
		return errSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[1]), []byte(want)) {
		return errSignatureInvalid
	}
	return nil
}

// handleWebhook handles POST /api/webhook deliveries from the object storage
// provider. The body is authenticated with an HMAC signature rather than the
// Bearer token; verified deliveries are handed to the configured OnWebhook
// callback, which typically starts an append-mode ingestion run.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	err = verifySignature(body, r.Header.Get(signatureHeader), s.cfg.WebhookSecret)
	switch {
	case errors.Is(err, errSignatureMissing):
		s.metrics.webhookRequestsTotal.WithLabelValues("unauthorized").Inc()
		log.Warn("webhook rejected: signature missing")
		http.Error(w, "signature required", http.StatusUnauthorized)
		return
	case err != nil:
		s.metrics.webhookRequestsTotal.WithLabelValues("forbidden").Inc()
		log.Warn("webhook rejected: signature invalid")
		http.Error(w, "signature invalid", http.StatusForbidden)
		return
	}

	if s.cfg.OnWebhook != nil {
		if err := s.cfg.OnWebhook(r.Context(), body); err != nil {
			s.metrics.webhookRequestsTotal.WithLabelValues("error").Inc()
			log.Error("webhook handler failed", slog.Any("error", err))
			http.Error(w, "event processing failed", http.StatusInternalServerError)
			return
		}
	}

	s.metrics.webhookRequestsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}
