package queue

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"
)

// ResetTemplate is the mail relay template used for reset links.
const ResetTemplate = "password-reset"

// Mail is the request body accepted by the mail relay.
type Mail struct {
    To       string         `json:"to"`
    Template string         `json:"template"`
    Data     map[string]any `json:"data"`
}

// Mailer posts mails to the HTTP mail relay.
type Mailer struct {
    url    string
    apiKey string
    client *http.Client
}

// NewMailer returns a Mailer for the relay at url authenticated with apiKey.
func NewMailer(url, apiKey string) *Mailer {
    return &Mailer{url: url, apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

// Send posts m to the relay.  Any non-2xx answer is an error.
func (m *Mailer) Send(ctx context.Context, mail Mail) error {
    if m.url == "" {
        return fmt.Errorf("mail relay url is not configured")
    }
    body, err := json.Marshal(mail)
    if err != nil {
        return fmt.Errorf("marshal mail: %w", err)
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
    if err != nil {
        return fmt.Errorf("build request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    if m.apiKey != "" {
        req.Header.Set("x-api-key", m.apiKey)
    }
    resp, err := m.client.Do(req)
    if err != nil {
        return fmt.Errorf("post mail: %w", err)
    }
    defer resp.Body.Close()
    _, _ = io.Copy(io.Discard, resp.Body)
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return fmt.Errorf("mail relay answered %d", resp.StatusCode)
    }
    return nil
}
