package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Chat webhooks reject messages with more embeds than this.
const maxEmbedsPerMessage = 10

// WebhookSink posts alerts as chat embeds (Discord webhook format).
type WebhookSink struct {
	HookName  string
	URL       string
	Username  string
	AvatarURL string
	Footer    string
	Client    *http.Client
}

func (w *WebhookSink) Name() string {
	if w.HookName != "" {
		return "webhook:" + w.HookName
	}
	return "webhook"
}

type webhookMessage struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title     string              `json:"title"`
	Color     int                 `json:"color"`
	Timestamp string              `json:"timestamp"`
	Fields    []webhookEmbedField `json:"fields"`
	Footer    *webhookEmbedFooter `json:"footer,omitempty"`
}

type webhookEmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type webhookEmbedFooter struct {
	Text string `json:"text"`
}

func (w *WebhookSink) Send(ctx context.Context, alerts []Alert) error {
	for start := 0; start < len(alerts); start += maxEmbedsPerMessage {
		end := min(start+maxEmbedsPerMessage, len(alerts))
		if err := w.post(ctx, w.message(alerts[start:end])); err != nil {
			return err
		}
	}
	return nil
}

func (w *WebhookSink) message(alerts []Alert) webhookMessage {
	msg := webhookMessage{
		Username:  w.Username,
		AvatarURL: w.AvatarURL,
		Embeds:    make([]webhookEmbed, 0, len(alerts)),
	}

	for _, a := range alerts {
		embed := webhookEmbed{
			Title:     a.Title,
			Color:     a.Severity.Color(),
			Timestamp: a.Timestamp.Format(time.RFC3339),
			Fields: []webhookEmbedField{
				{Name: "Repository", Value: a.Repository()},
				{Name: "Version", Value: a.Version},
				{Name: "URL", Value: a.URL},
				{Name: "Size", Value: a.Size},
			},
		}
		if a.DetailsURL != "" {
			embed.Fields = append(embed.Fields, webhookEmbedField{Name: "Details", Value: a.DetailsURL})
		}
		if w.Footer != "" {
			embed.Footer = &webhookEmbedFooter{Text: w.Footer}
		}
		msg.Embeds = append(msg.Embeds, embed)
	}
	return msg
}

func (w *WebhookSink) post(ctx context.Context, msg webhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
