// Package ai hosts the generation backends and the router that picks one.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Backend identifiers.
const (
	BackendEconomical = "economical"
	BackendPermissive = "permissive"
)

// Service is the generation surface the pipeline and the extraction worker
// call. Implementations map failures to transient/permanent turn errors.
type Service interface {
	Generate(ctx context.Context, backendID, systemPrompt string, messages []models.Message, maxTokens int) (string, error)
}

// endpoint is one OpenAI-compatible chat-completions target.
type endpoint struct {
	name    string
	baseURL string
	apiKey  string
	model   string
}

// Client talks to the two configured backends with a per-attempt deadline,
// a single retry on transient failures and a process-wide call limiter.
type Client struct {
	endpoints  map[string]*endpoint
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	metrics    *middleware.Metrics
	logger     *logrus.Logger
}

// NewClient creates the backend client from configuration.
func NewClient(cfg *config.BackendsConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Client {
	endpoints := map[string]*endpoint{
		BackendEconomical: {
			name:    BackendEconomical,
			baseURL: cfg.Economical.BaseURL,
			apiKey:  cfg.Economical.APIKey,
			model:   cfg.Economical.Model,
		},
		BackendPermissive: {
			name:    BackendPermissive,
			baseURL: cfg.Permissive.BaseURL,
			apiKey:  cfg.Permissive.APIKey,
			model:   cfg.Permissive.Model,
		},
	}

	for id, ep := range endpoints {
		logger.WithFields(logrus.Fields{
			"backend": id,
			"baseURL": ep.baseURL,
			"model":   ep.model,
		}).Info("Loaded generation backend")
	}

	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), int(cfg.CallsPerSecond)+1),
		timeout: cfg.Timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Generate calls the backend, retrying once on a transient failure.
func (c *Client) Generate(ctx context.Context, backendID, systemPrompt string, messages []models.Message, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		text, err := c.generateOnce(ctx, backendID, systemPrompt, messages, maxTokens, attempt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if models.KindOf(err) != models.KindTransientGeneration {
			return "", err
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"backend": backendID,
			"attempt": attempt,
		}).Warn("Generation failed, retrying")
	}
	return "", lastErr
}

func (c *Client) generateOnce(ctx context.Context, backendID, systemPrompt string, messages []models.Message, maxTokens, attempt int) (string, error) {
	ep, exists := c.endpoints[backendID]
	if !exists {
		return "", models.NewTurnError(models.KindPermanentGeneration, fmt.Errorf("unknown backend: %s", backendID))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", models.NewTurnError(models.KindTransientGeneration, err)
	}

	start := time.Now()

	openAIMessages := make([]map[string]string, 0, len(messages)+1)
	if systemPrompt != "" {
		openAIMessages = append(openAIMessages, map[string]string{
			"role":    models.RoleSystem,
			"content": systemPrompt,
		})
	}
	for _, msg := range messages {
		openAIMessages = append(openAIMessages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	reqBody := map[string]interface{}{
		"model":       ep.model,
		"messages":    openAIMessages,
		"max_tokens":  maxTokens,
		"temperature": 0.8,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", models.NewTurnError(models.KindPermanentGeneration, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(ep.baseURL, "/"))
	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", models.NewTurnError(models.KindPermanentGeneration, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", ep.apiKey))

	c.logger.WithFields(logrus.Fields{
		"backend": backendID,
		"model":   ep.model,
		"attempt": attempt,
	}).Debug("Sending generation request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(backendID, "error", start)
		if errors.Is(err, context.Canceled) {
			return "", models.NewTurnError(models.KindPermanentGeneration, err)
		}
		// Timeouts and network failures are transient.
		return "", models.NewTurnError(models.KindTransientGeneration, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(backendID, "error", start)
		return "", models.NewTurnError(models.KindTransientGeneration, err)
	}

	if resp.StatusCode >= 500 {
		c.record(backendID, "error", start)
		return "", models.NewTurnError(models.KindTransientGeneration,
			fmt.Errorf("backend %s returned %d: %s", backendID, resp.StatusCode, truncate(string(body), 200)))
	}
	if resp.StatusCode >= 400 {
		c.record(backendID, "error", start)
		return "", models.NewTurnError(models.KindPermanentGeneration,
			fmt.Errorf("backend %s returned %d: %s", backendID, resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.record(backendID, "error", start)
		return "", models.NewTurnError(models.KindPermanentGeneration, err)
	}
	if len(parsed.Choices) == 0 {
		c.record(backendID, "error", start)
		return "", models.NewTurnError(models.KindPermanentGeneration, fmt.Errorf("backend %s returned no choices", backendID))
	}

	c.record(backendID, "success", start)
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) record(backend, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordGeneration(backend, status, time.Since(start))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
