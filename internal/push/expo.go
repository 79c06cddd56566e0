package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

type ExpoClient struct {
	url         string
	accessToken string
	httpClient  *http.Client
}

func NewExpoClient(url, accessToken string, timeout time.Duration) *ExpoClient {
	if url == "" {
		url = DefaultExpoURL
	}
	return &ExpoClient{
		url:         url,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type expoMessage struct {
	To       string            `json:"to"`
	Sound    string            `json:"sound"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority"`
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *ExpoClient) Send(ctx context.Context, msg Message) (Receipt, error) {
	payload, err := json.Marshal(expoMessage{
		To:       msg.To,
		Sound:    "default",
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     msg.Data,
		Priority: "high",
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode expo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Receipt{}, fmt.Errorf("read expo response: %w", err)
	}
	receipt := Receipt{ProviderResponse: string(raw)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return receipt, fmt.Errorf("%w: expo status %d", ErrDeliveryRejected, resp.StatusCode)
	}

	var parsed expoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return receipt, fmt.Errorf("decode expo response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return receipt, fmt.Errorf("%w: %s", ErrDeliveryRejected, parsed.Errors[0].Message)
	}
	if parsed.Data.Status != "ok" {
		return receipt, fmt.Errorf("%w: %s", ErrDeliveryRejected, parsed.Data.Message)
	}

	receipt.Success = true
	return receipt, nil
}
