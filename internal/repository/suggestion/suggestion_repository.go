package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type SuggestionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// SuggestionRepository calls the generative suggestion service that
// produces challenger variant texts for the auto-optimization loop.
type SuggestionRepository struct {
	suggestionConfig SuggestionConfig
	client           *http.Client
}

func NewSuggestionRepository(cfg SuggestionConfig) *SuggestionRepository {
	return &SuggestionRepository{
		suggestionConfig: cfg,
		client:           &http.Client{Timeout: 30 * time.Second},
	}
}

type suggestPayload struct {
	Model        string   `json:"model"`
	SeedText     string   `json:"seed_text"`
	ProductTitle string   `json:"product_title"`
	ProductTags  []string `json:"product_tags"`
	Count        int      `json:"count"`
}

type suggestResponse struct {
	Variants []string `json:"variants"`
}

// SuggestVariants requests count challenger descriptions seeded with
// the champion's winning text. An empty or malformed response is an
// error; the caller aborts its cycle without side effects.
func (r *SuggestionRepository) SuggestVariants(ctx context.Context, seedText, productTitle string, productTags []string, count int) ([]string, error) {
	url := r.suggestionConfig.BaseURL + "/v1/suggestions"

	payloadByte, err := json.Marshal(suggestPayload{
		Model:        r.suggestionConfig.Model,
		SeedText:     seedText,
		ProductTitle: productTitle,
		ProductTags:  productTags,
		Count:        count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payloadByte)))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+r.suggestionConfig.APIKey)

	res, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("suggestion service returned %d: %s", res.StatusCode, string(body))
	}

	var parsed suggestResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}

	variants := make([]string, 0, len(parsed.Variants))
	for _, v := range parsed.Variants {
		if strings.TrimSpace(v) != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("suggestion service returned no usable variants")
	}

	return variants, nil
}
