package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultServer = "https://ntfy.sh"

var ErrDisabled = errors.New("notifications not configured")

// Notifier posts messages to an ntfy topic.
type Notifier struct {
	client *http.Client
	server string
	topic  string
}

// New returns a notifier for topic. An empty topic yields a notifier whose
// Send always fails with ErrDisabled.
func New(server, topic string) *Notifier {
	if server == "" {
		server = DefaultServer
	}
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
	} else {
		log.Info().
			Str("topic", topic).
			Msg("Ntfy notifications initialized")
	}
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		server: strings.TrimRight(server, "/"),
		topic:  topic,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.topic != ""
}

// Send sends a notification to the configured topic.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return ErrDisabled
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// ntfy accepts JSON publishes on the server root
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.server+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
