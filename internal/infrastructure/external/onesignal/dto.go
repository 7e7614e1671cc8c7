package onesignal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRequestDTO is the body of POST /notifications.
type NotificationRequestDTO struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data,omitempty"`
	AndroidChannelID string            `json:"android_channel_id,omitempty"`
	TTL              int               `json:"ttl,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// NotificationResponseDTO is the provider answer. Errors is either an object
// with invalid_player_ids or a list of messages, depending on the failure.
type NotificationResponseDTO struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

type invalidPlayersDTO struct {
	InvalidPlayerIDs []string `json:"invalid_player_ids"`
}

// InvalidPlayerIDs returns the tokens the provider rejected.
func (r NotificationResponseDTO) InvalidPlayerIDs() []string {
	if len(r.Errors) == 0 || r.Errors[0] != '{' {
		return nil
	}
	var dto invalidPlayersDTO
	if err := json.Unmarshal(r.Errors, &dto); err != nil {
		return nil
	}
	return dto.InvalidPlayerIDs
}

// Messages returns the plain error messages, if any.
func (r NotificationResponseDTO) Messages() []string {
	if len(r.Errors) == 0 || r.Errors[0] != '[' {
		return nil
	}
	var msgs []string
	if err := json.Unmarshal(r.Errors, &msgs); err != nil {
		return nil
	}
	return msgs
}

// noSubscribers reports the provider's "nobody to send to" answer, which is
// not a failure for us.
func (r NotificationResponseDTO) noSubscribers() bool {
	for _, m := range r.Messages() {
		if strings.Contains(strings.ToLower(m), "not subscribed") {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("onesignal: status %d", e.StatusCode)
	}
	return fmt.Sprintf("onesignal: status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// temporary reports whether the request may succeed when repeated.
func (e *APIError) temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
