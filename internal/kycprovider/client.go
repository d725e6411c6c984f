// Package kycprovider предоставляет клиент внешнего провайдера проверки личности.
package kycprovider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader содержит подпись тела вебхука.
const SignatureHeader = "X-Signature"

// Client инкапсулирует HTTP-взаимодействие с провайдером проверки личности.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Inquiry описывает состояние проверки на стороне провайдера.
type Inquiry struct {
	ID         string
	Status     string
	TemplateID string
}

type inquiryResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
		Relationships struct {
			Template struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"inquiry-template"`
		} `json:"relationships"`
	} `json:"data"`
}

// NewClient создаёт HTTP-клиент для обращения к провайдеру по указанному адресу.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetInquiry запрашивает состояние проверки. Возвращает код ответа и, для 429,
// время ожидания из заголовка Retry-After.
func (c *Client) GetInquiry(ctx context.Context, inquiryID string) (*Inquiry, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("kyc provider client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	u := fmt.Sprintf("%s/api/v1/inquiries/%s", base, url.PathEscape(inquiryID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var body inquiryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &Inquiry{
		ID:         body.Data.ID,
		Status:     body.Data.Attributes.Status,
		TemplateID: body.Data.Relationships.Template.Data.ID,
	}, resp.StatusCode, 0, nil
}

// Sign возвращает hex-подпись HMAC-SHA256 тела вебхука.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись вебхука. Пустой секрет не принимает ни одной подписи.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
