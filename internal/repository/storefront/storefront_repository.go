package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"myContentLab/domain"

	"github.com/pobyzaarif/goshortcute"
)

type StorefrontConfig struct {
	BaseURL           string
	BasicAuthUsername string
	BasicAuthPassword string
}

// StorefrontRepository talks to the storefront publisher API: it
// pushes a variant's text live and fetches current product attributes.
type StorefrontRepository struct {
	storefrontConfig StorefrontConfig
	client           *http.Client
}

func NewStorefrontRepository(cfg StorefrontConfig) *StorefrontRepository {
	return &StorefrontRepository{
		storefrontConfig: cfg,
		client:           &http.Client{Timeout: 10 * time.Second},
	}
}

type publishPayload struct {
	ProductRef  string `json:"product_ref"`
	Description string `json:"description"`
}

func (r *StorefrontRepository) basicAuth() string {
	return "Basic " + goshortcute.StringtoBase64Encode(
		r.storefrontConfig.BasicAuthUsername+":"+r.storefrontConfig.BasicAuthPassword)
}

// PublishVariantText makes the given description the live product
// text.
func (r *StorefrontRepository) PublishVariantText(ctx context.Context, productRef, description string) error {
	url := r.storefrontConfig.BaseURL + "/products/description"

	payloadByte, err := json.Marshal(publishPayload{
		ProductRef:  productRef,
		Description: description,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(string(payloadByte)))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", r.basicAuth())

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(res.Body)
	return fmt.Errorf("storefront publisher returned %d: %s", res.StatusCode, string(bodyBytes))
}

// GetProductAttributes fetches the product's current title, tags and
// description.
func (r *StorefrontRepository) GetProductAttributes(ctx context.Context, productRef string) (domain.ProductAttributes, error) {
	url := r.storefrontConfig.BaseURL + "/products/" + productRef

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ProductAttributes{}, err
	}
	req.Header.Add("Authorization", r.basicAuth())

	res, err := r.client.Do(req)
	if err != nil {
		return domain.ProductAttributes{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.ProductAttributes{}, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return domain.ProductAttributes{}, fmt.Errorf("storefront publisher returned %d: %s", res.StatusCode, string(body))
	}

	var attrs domain.ProductAttributes
	if err := json.Unmarshal(body, &attrs); err != nil {
		return domain.ProductAttributes{}, fmt.Errorf("failed to unmarshal product attributes: %w", err)
	}

	return attrs, nil
}
