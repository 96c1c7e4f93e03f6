package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AssistSuggestion is a machine pre-screening suggestion for one article.
// It is advisory: suggestions are stored on the article and never touch the
// decisions table.
type AssistSuggestion struct {
	ArticleID  int64   `json:"id"`
	Judgement  string  `json:"judgement"` // adopt, exclude, hold or unsure
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const maxAbstractChars = 2500

var validJudgements = map[string]bool{
	"adopt":   true,
	"exclude": true,
	"hold":    true,
	"unsure":  true,
}

// RunAssist fetches articles without a suggestion, classifies them in
// parallel batches and stores the results. limit <= 0 processes the whole
// backlog.
func RunAssist(db *sql.DB, cfg Config, limit int) (int, LLMUsage, error) {
	if !cfg.LLMConfigured() {
		return 0, LLMUsage{}, fmt.Errorf("anthropic_api_key is not configured")
	}
	articles, err := ListArticlesNeedingAssist(db, limit)
	if err != nil {
		return 0, LLMUsage{}, err
	}
	if len(articles) == 0 {
		return 0, LLMUsage{}, nil
	}

	suggestions, usage, err := ClassifyArticles(cfg, articles)
	if err != nil {
		return 0, usage, err
	}
	if err := SaveAssistSuggestions(db, suggestions); err != nil {
		return 0, usage, err
	}
	return len(suggestions), usage, nil
}

// ClassifyArticles asks the model for a screening suggestion per article,
// fanning batches out concurrently.
func ClassifyArticles(cfg Config, articles []Article) (map[int64]AssistSuggestion, LLMUsage, error) {
	if len(articles) == 0 {
		return nil, LLMUsage{}, nil
	}

	batchSize := cfg.LLMBatchSize
	if batchSize < 1 {
		batchSize = 25
	}

	var batches [][]Article
	for start := 0; start < len(articles); start += batchSize {
		end := start + batchSize
		if end > len(articles) {
			end = len(articles)
		}
		batches = append(batches, articles[start:end])
	}

	type batchResult struct {
		suggestions map[int64]AssistSuggestion
		usage       LLMUsage
		err         error
	}
	results := make([]batchResult, len(batches))

	model := cfg.LLMModel
	if model == "" {
		model = defaultAnthropicModel
	}

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []Article) {
			defer wg.Done()
			systemPrompt, userPrompt := buildAssistPrompts(cfg, batch)
			log.Printf("llm assist model=%s articles=%d batch=%d", model, len(batch), idx)
			responseText, usage, callErr := callAnthropic(cfg.AnthropicAPIKey, model, systemPrompt, userPrompt)
			if callErr != nil {
				results[idx] = batchResult{usage: usage, err: callErr}
				return
			}
			parsed, parseErr := parseAssistResponse(responseText)
			results[idx] = batchResult{suggestions: parsed, usage: usage, err: parseErr}
		}(i, batch)
	}
	wg.Wait()

	all := make(map[int64]AssistSuggestion, len(articles))
	known := make(map[int64]bool, len(articles))
	for _, a := range articles {
		known[a.ID] = true
	}
	totalUsage := LLMUsage{}
	for _, r := range results {
		totalUsage.Add(r.usage)
		if r.err != nil {
			return nil, totalUsage, r.err
		}
		for id, s := range r.suggestions {
			if !known[id] {
				log.Printf("llm assist dropped suggestion for unknown article id=%d", id)
				continue
			}
			all[id] = s
		}
	}
	return all, totalUsage, nil
}

func buildAssistPrompts(cfg Config, articles []Article) (string, string) {
	var catLines strings.Builder
	for i := 0; i < NumCategories; i++ {
		catLines.WriteString(fmt.Sprintf("- %s\n", cfg.CategoryLabel(i)))
	}

	systemPrompt := fmt.Sprintf(`You pre-screen scientific articles for a literature review.
The review collects studies about interventions in these categories:
%s
For each article, judge from the title and abstract whether it should be
screened in. Choose exactly one judgement per article:
- "adopt": clearly relevant, should go to full-text screening
- "exclude": clearly out of scope
- "hold": possibly relevant, needs human discussion
- "unsure": title/abstract give too little information

Also give a one-sentence reason and a confidence between 0 and 1.
Your output is advisory only; human reviewers make the actual decisions.

Respond with JSON only (no markdown):
[{"id": 1, "judgement": "adopt", "reason": "...", "confidence": 0.9}, ...]`, catLines.String())

	var itemLines strings.Builder
	for _, a := range articles {
		abstract := strings.TrimSpace(a.Abstract)
		if len(abstract) > maxAbstractChars {
			abstract = abstract[:maxAbstractChars] + "..."
		}
		if abstract == "" {
			abstract = "(no abstract)"
		}
		itemLines.WriteString(fmt.Sprintf("ID:%d\nTitle: %s\nYear: %s\nAbstract: %s\n\n", a.ID, strings.TrimSpace(a.Title), formatYear(a.Year), abstract))
	}

	userPrompt := "Screen these articles:\n\n" + itemLines.String()
	return systemPrompt, userPrompt
}

func parseAssistResponse(responseText string) (map[int64]AssistSuggestion, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var parsed []AssistSuggestion
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
		}
		return nil, fmt.Errorf("parsing assist response: %w (truncated response: %s)", err, truncated)
	}

	suggestions := make(map[int64]AssistSuggestion, len(parsed))
	for _, s := range parsed {
		s.Judgement = strings.ToLower(strings.TrimSpace(s.Judgement))
		if !validJudgements[s.Judgement] {
			log.Printf("llm assist unknown judgement %q for article id=%d, keeping as unsure", s.Judgement, s.ArticleID)
			s.Judgement = "unsure"
		}
		s.Reason = strings.TrimSpace(s.Reason)
		suggestions[s.ArticleID] = s
	}
	return suggestions, nil
}

// --- Anthropic ---

func callAnthropic(apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
