package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrProviderFailed 表示遠端審核服務沒有給出可用的結果
var ErrProviderFailed = errors.New("moderation provider failed")

// ProviderResult 是遠端服務回傳的單筆結果，Order 保留類別的原始順序
type ProviderResult struct {
	Flagged        bool
	Order          []string
	Categories     map[string]bool
	CategoryScores map[string]float64
}

// Provider 遠端審核服務
type Provider interface {
	Moderate(ctx context.Context, text string) (ProviderResult, error)
}

// HTTPProvider 呼叫相容 OpenAI /moderations 的服務
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     categoryFlags      `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

func (p *HTTPProvider) Moderate(ctx context.Context, text string) (ProviderResult, error) {
	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return ProviderResult{}, fmt.Errorf("%w: encode request: %w", ErrProviderFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return ProviderResult{}, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ProviderResult{}, fmt.Errorf("%w: status %d", ErrProviderFailed, resp.StatusCode)
	}

	var decoded moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ProviderResult{}, fmt.Errorf("%w: decode response: %w", ErrProviderFailed, err)
	}
	if len(decoded.Results) == 0 {
		return ProviderResult{}, fmt.Errorf("%w: empty results", ErrProviderFailed)
	}

	first := decoded.Results[0]
	scores := first.CategoryScores
	if scores == nil {
		scores = map[string]float64{}
	}
	categories := first.Categories.values
	if categories == nil {
		categories = map[string]bool{}
	}
	return ProviderResult{
		Flagged:        first.Flagged,
		Order:          first.Categories.names,
		Categories:     categories,
		CategoryScores: scores,
	}, nil
}

// categoryFlags 解碼 JSON 物件並記住 key 的順序，null 視為 false
type categoryFlags struct {
	names  []string
	values map[string]bool
}

func (c *categoryFlags) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories: expected object, got %v", tok)
	}

	c.names = nil
	c.values = map[string]bool{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("categories: unexpected key %v", keyTok)
		}
		var value *bool
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("categories[%s]: %w", key, err)
		}
		if _, seen := c.values[key]; !seen {
			c.names = append(c.names, key)
		}
		c.values[key] = value != nil && *value
	}

	_, err = dec.Token()
	return err
}
