package prepkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

const serviceName = "prepkit"

// HTTPGenerator calls a content-generation service over HTTP. The service
// answers POST /prep-kits with a JSON body carrying the artifact id.
type HTTPGenerator struct {
	client *resty.Client
}

// NewHTTPGenerator targets baseURL. apiKey is sent as a bearer token when set.
func NewHTTPGenerator(baseURL, apiKey string) *HTTPGenerator {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(2 * time.Minute).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPGenerator{client: client}
}

type prepKitRequest struct {
	ApplicationID string   `json:"applicationId"`
	UserID        string   `json:"userId"`
	Title         string   `json:"title"`
	Company       string   `json:"company"`
	URL           string   `json:"url"`
	Matched       []string `json:"matchedRequirements"`
	Missing       []string `json:"missingRequirements"`
	Prompt        string   `json:"prompt"`
}

// GeneratePrepKit implements the dispatcher's generator contract.
func (g *HTTPGenerator) GeneratePrepKit(ctx context.Context, card *kanban.ApplicationCard) (string, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(prepKitRequest{
			ApplicationID: card.ID,
			UserID:        card.UserID,
			Title:         card.Title,
			Company:       card.Company,
			URL:           card.URL,
			Matched:       card.Matched,
			Missing:       card.Missing,
			Prompt:        BuildPrompt(card),
		}).
		Post("/prep-kits")
	if err != nil {
		return "", &model.ExternalServiceError{Service: serviceName, Op: "generate", Err: err}
	}
	if resp.IsError() {
		return "", &model.ExternalServiceError{
			Service: serviceName,
			Op:      "generate",
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode()),
		}
	}

	body := resp.String()
	ref := gjson.Get(body, "id").String()
	if ref == "" {
		ref = gjson.Get(body, "data.id").String()
	}
	if ref == "" {
		return "", &model.ExternalServiceError{Service: serviceName, Op: "generate", Err: errors.New("response carries no artifact id")}
	}
	return ref, nil
}
