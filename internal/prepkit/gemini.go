package prepkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

// ArtifactStore keeps generated kits and hands back a reference.
type ArtifactStore interface {
	Save(ctx context.Context, cardID, content string) (ref string, err error)
}

// GeminiGenerator writes kits with a Gemini model and stores the Markdown in
// an ArtifactStore.
type GeminiGenerator struct {
	client    *genai.Client
	model     string
	artifacts ArtifactStore
}

// GeminiConfig configures NewGeminiGenerator. BaseURL overrides the API
// endpoint and is only set in tests.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewGeminiGenerator builds a Gemini API client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, artifacts ArtifactStore) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini model name cannot be empty")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model, artifacts: artifacts}, nil
}

// GeneratePrepKit implements the dispatcher's generator contract.
func (g *GeminiGenerator) GeneratePrepKit(ctx context.Context, card *kanban.ApplicationCard) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(card)), nil)
	if err != nil {
		return "", &model.ExternalServiceError{Service: "gemini", Op: "generate", Err: err}
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &model.ExternalServiceError{Service: "gemini", Op: "generate", Err: errors.New("empty response")}
	}
	ref, err := g.artifacts.Save(ctx, card.ID, text)
	if err != nil {
		return "", fmt.Errorf("save prep kit: %w", err)
	}
	return ref, nil
}

// RedisArtifacts stores kits under prepkit:<uuid>.
type RedisArtifacts struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisArtifacts keeps kits for ttl (forever when zero).
func NewRedisArtifacts(rdb *redis.Client, ttl time.Duration) *RedisArtifacts {
	return &RedisArtifacts{rdb: rdb, ttl: ttl}
}

// Save implements ArtifactStore.
func (r *RedisArtifacts) Save(ctx context.Context, cardID, content string) (string, error) {
	ref := "prepkit:" + uuid.NewString()
	if err := r.rdb.HSet(ctx, ref, "applicationId", cardID, "content", content).Err(); err != nil {
		return "", err
	}
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, ref, r.ttl).Err(); err != nil {
			return "", err
		}
	}
	return ref, nil
}

// Load returns the kit content stored under ref.
func (r *RedisArtifacts) Load(ctx context.Context, ref string) (string, error) {
	content, err := r.rdb.HGet(ctx, ref, "content").Result()
	if errors.Is(err, redis.Nil) {
		return "", &model.NotFoundError{Kind: "prep kit", ID: ref}
	}
	return content, err
}

// MemoryArtifacts is an in-process ArtifactStore for single-node runs.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryArtifacts returns an empty store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{items: make(map[string]string)}
}

// Save implements ArtifactStore.
func (m *MemoryArtifacts) Save(_ context.Context, _ string, content string) (string, error) {
	ref := "prepkit:" + uuid.NewString()
	m.mu.Lock()
	m.items[ref] = content
	m.mu.Unlock()
	return ref, nil
}

// Load returns the kit content stored under ref.
func (m *MemoryArtifacts) Load(_ context.Context, ref string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.items[ref]
	if !ok {
		return "", &model.NotFoundError{Kind: "prep kit", ID: ref}
	}
	return content, nil
}
