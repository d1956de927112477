package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkg-exporter/internal/ports"
)

const (
	defaultSignTimeout = 120 * time.Second
	signTaskPath       = "sign-tasks/sync_sign_task/"
)

// SignServiceConfig carries the explicit connection settings of the
// remote signing service.
type SignServiceConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

type SignServiceAdapter struct {
	config SignServiceConfig
	client *http.Client
}

func NewSignServiceAdapter(config SignServiceConfig) (*SignServiceAdapter, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("sign service endpoint is empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSignTimeout
	}
	return &SignServiceAdapter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Sign submits the metadata content for synchronous signing and returns
// the detached signature. A service-reported signing failure surfaces as
// an error carrying the service's message.
func (a *SignServiceAdapter) Sign(ctx context.Context, content []byte, keyID string) ([]byte, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("sign key id is empty")
	}
	payload, err := json.Marshal(map[string]string{
		"content":   string(content),
		"pgp_keyid": keyID,
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode sign request").
			WithCause(err)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(a.config.Endpoint), "/")
	fullURL := endpoint + "/" + signTaskPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create sign request").
			WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.Token)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("sign request failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("sign request failed").
			WithCause(fmt.Errorf("status=%d url=%s response=%s",
				resp.StatusCode, fullURL, strings.TrimSpace(string(body))))
	}
	var result struct {
		AscContent string `json:"asc_content"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError("sign", err)
	}
	if result.AscContent == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("sign service rejected the content").
			WithCause(fmt.Errorf("service error: %s", result.Error))
	}
	return []byte(result.AscContent), nil
}

var _ ports.SignServicePort = (*SignServiceAdapter)(nil)
