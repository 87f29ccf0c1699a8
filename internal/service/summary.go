package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/prompts"
)

const (
	summaryMaxGroups        = 5
	summaryMaxHitsPerGroup  = 3
	summaryMaxContextRunes  = 4000
	summaryTruncationMarker = "...(truncated)"
	summaryMinResponseRunes = 20
)

// SummaryService turns an aggregated result set into a short natural-language
// answer. Generation failures of any kind resolve to a deterministic
// template; Summarize never returns an error and the fallback never calls
// out.
type SummaryService struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	temperature float32
	enabled     bool
	logger      *logger.Logger
}

// SummaryServiceConfig holds configuration for the summary generator.
type SummaryServiceConfig struct {
	Enabled     bool
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// NewSummaryService creates a new summary generator. A missing API key or
// disabled config yields a service that always uses the template fallback.
func NewSummaryService(cfg *SummaryServiceConfig, log *logger.Logger) *SummaryService {
	if cfg == nil || !cfg.Enabled || cfg.APIKey == "" {
		return &SummaryService{enabled: false, logger: log}
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	return &SummaryService{
		client:      client,
		model:       cfg.Model,
		endpoint:    baseURL + "/chat/completions",
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		enabled:     true,
		logger:      log,
	}
}

// IsEnabled reports whether LLM summarization is configured.
func (s *SummaryService) IsEnabled() bool {
	return s.enabled
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize produces a natural-language answer for the query and groups.
// Any failure (timeout, bad status, empty or too-short completion) falls
// back to FallbackSummary.
func (s *SummaryService) Summarize(ctx context.Context, query string, groups []EntityGroup) string {
	if !s.enabled || len(groups) == 0 {
		return FallbackSummary(query, groups)
	}

	contextBlock := buildSummaryContext(groups)
	req := chatCompletionRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.SummarySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.SummaryUserPromptHeader, query, contextBlock)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	var resp chatCompletionResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		logger.CtxWarn(ctx, "Summary generation failed, using fallback: error=%v", err)
		return FallbackSummary(query, groups)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		logger.CtxWarn(ctx, "Summary generation failed, using fallback: status=%d", httpResp.StatusCode())
		return FallbackSummary(query, groups)
	}
	if resp.Error != nil || len(resp.Choices) == 0 {
		logger.CtxWarn(ctx, "Summary generation returned no usable choices, using fallback")
		return FallbackSummary(query, groups)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if len([]rune(text)) < summaryMinResponseRunes {
		logger.CtxWarn(ctx, "Summary response too short (%d runes), using fallback", len([]rune(text)))
		return FallbackSummary(query, groups)
	}

	return text
}

// buildSummaryContext renders the top groups into a bounded plain-text block:
// at most summaryMaxGroups groups, summaryMaxHitsPerGroup excerpts each, and
// a hard total character cap with an explicit truncation marker.
func buildSummaryContext(groups []EntityGroup) string {
	var b strings.Builder

	count := len(groups)
	if count > summaryMaxGroups {
		count = summaryMaxGroups
	}

	for i := 0; i < count; i++ {
		g := groups[i]
		name := g.EntityName
		if name == "" {
			name = g.GroupKey
		}
		fmt.Fprintf(&b, "%d. %s (%s) - match %.0f%%, %d review(s)\n", i+1, name, g.Type, g.AverageSimilarity*100, g.TotalHits)

		hitCount := len(g.Hits)
		if hitCount > summaryMaxHitsPerGroup {
			hitCount = summaryMaxHitsPerGroup
		}
		for j := 0; j < hitCount; j++ {
			hit := g.Hits[j]
			if hit.Rating > 0 {
				fmt.Fprintf(&b, "   - rated %d/5: %s\n", hit.Rating, hit.Snippet)
			} else if hit.Snippet != "" {
				fmt.Fprintf(&b, "   - %s\n", hit.Snippet)
			}
		}
		b.WriteString("\n")

		if len([]rune(b.String())) > summaryMaxContextRunes {
			break
		}
	}

	text := b.String()
	runes := []rune(text)
	if len(runes) > summaryMaxContextRunes {
		text = string(runes[:summaryMaxContextRunes]) + summaryTruncationMarker + "\n"
	}
	return text
}

// FallbackSummary is the deterministic template used when the language model
// is unavailable, too slow, or returns garbage. It never calls an external
// service and never fails.
func FallbackSummary(query string, groups []EntityGroup) string {
	if len(groups) == 0 {
		return fmt.Sprintf("No matching recommendations found for %q.", query)
	}

	top := groups[0]
	name := top.EntityName
	if name == "" {
		name = strings.TrimPrefix(top.GroupKey, "type:")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top match for %q: %s with %d review(s) and a %.0f%% match", query, name, top.TotalHits, top.AverageSimilarity*100)
	if rating := topRating(top); rating > 0 {
		fmt.Fprintf(&b, ", rated %d/5", rating)
	}
	b.WriteString(".")

	if len(groups) > 1 {
		fmt.Fprintf(&b, " %d other match(es) found.", len(groups)-1)
	}
	return b.String()
}

func topRating(g EntityGroup) int {
	for _, hit := range g.Hits {
		if hit.Rating > 0 {
			return hit.Rating
		}
	}
	return 0
}

// SummaryCacheKey derives the cache key for a (query, ordered result
// identity) pair. Two searches share a summary only when both the query and
// the exact ordered set of hit record IDs agree.
func SummaryCacheKey(query string, groups []EntityGroup) string {
	var ids []string
	for _, g := range groups {
		for _, hit := range g.Hits {
			ids = append(ids, hit.RecordID)
		}
	}
	return strings.TrimSpace(strings.ToLower(query)) + "|" + strings.Join(ids, ",")
}
