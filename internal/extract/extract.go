// Package extract reads an operation out of a free text message with a
// Gemini model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"finbot/internal/core"
	"finbot/internal/draft"
	"finbot/internal/log"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

var (
	ErrNoAPIKey      = errors.New("gemini api key not configured")
	ErrNoOperation   = errors.New("no operation found in text")
	ErrEmptyResponse = errors.New("empty response from model")
)

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Extractor turns a message such as "paid 12,50 for lunch with the Alpha
// card" into a draft the user reviews before saving.
type Extractor struct {
	generate generateFunc
	model    string
	logger   *log.Logger
}

// New creates an extractor backed by the Gemini API.
func New(ctx context.Context, apiKey, model string, logger *log.Logger) (*Extractor, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	e := &Extractor{model: model, logger: logger.WithComponent(log.ComponentExtract)}
	e.generate = func(ctx context.Context, prompt string) (string, error) {
		contents := []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		}}
		resp, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		return resp.Text(), nil
	}
	return e, nil
}

const instructions = "You extract one personal finance operation from a chat message.\n\n" +
	"Output STRICT JSON only: a single object with these fields:\n" +
	"- \"kind\": \"Deposit\", \"Withdrawal\" or \"Transfer\"\n" +
	"- \"date\": string \"YYYY-MM-DD\" or null when the message names no date\n" +
	"- \"counterparty\": the bank or account, string or null\n" +
	"- \"from\", \"to\": source and destination account of a transfer, or null\n" +
	"- \"amount\": number, money out negative, money in positive\n" +
	"- \"classification\": short category such as \"Groceries\", or null\n" +
	"- \"note\": string or null\n\n" +
	"If the message does not describe an operation, output {\"kind\": null}.\n" +
	"Do NOT wrap the response in code fences.\n"

// Extract asks the model for an operation and converts the answer into a
// draft. Dates default to today.
func (e *Extractor) Extract(ctx context.Context, text string, today core.Date) (*draft.Draft, error) {
	prompt := instructions + "\nToday is " + today.ISO() + ".\n\nMessage:\n" + text
	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyResponse
	}
	d, err := parseDraft(raw, today)
	if err != nil {
		e.logger.DebugContext(ctx, "Model answer rejected", "raw", raw, log.FieldError, err)
		return nil, err
	}
	return d, nil
}

type answer struct {
	Kind           *string      `json:"kind"`
	Date           *string      `json:"date"`
	Counterparty   *string      `json:"counterparty"`
	From           *string      `json:"from"`
	To             *string      `json:"to"`
	Amount         *json.Number `json:"amount"`
	Classification *string      `json:"classification"`
	Note           *string      `json:"note"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// parseDraft converts a model answer into a draft. The amount sign follows
// the kind, whatever sign the model chose.
func parseDraft(raw string, today core.Date) (*draft.Draft, error) {
	dec := json.NewDecoder(strings.NewReader(cleanModelJSON(raw)))
	dec.UseNumber()
	var a answer
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("unmarshal model answer: %w", err)
	}
	if str(a.Kind) == "" {
		return nil, ErrNoOperation
	}
	kind, err := core.ParseKind(str(a.Kind))
	if err != nil || kind == core.KindPlan {
		return nil, fmt.Errorf("%w: kind %q", ErrNoOperation, str(a.Kind))
	}

	mode := draft.ModeOperation
	if kind == core.KindTransfer {
		mode = draft.ModeTransfer
	}
	d := draft.New(mode)

	date := today
	if s := str(a.Date); s != "" {
		if parsed, err := core.ParseDate(s); err == nil {
			date = parsed
		}
	}
	d.SetDate(date)

	if a.Amount != nil {
		amt, err := core.ParseAmount(a.Amount.String())
		if err != nil {
			return nil, err
		}
		switch kind {
		case core.KindWithdrawal:
			amt = amt.Abs().Neg()
		default:
			amt = amt.Abs()
		}
		if d.CheckAmount(amt) == nil {
			d.SetAmount(amt)
		}
	}

	if mode == draft.ModeTransfer {
		d.SetSource(str(a.From))
		d.SetDestination(str(a.To))
		if d.Source == "" {
			d.SetSource(str(a.Counterparty))
		}
		if strings.EqualFold(d.Source, d.Destination) {
			d.SetDestination("")
		}
		return d, nil
	}

	d.SetCounterparty(str(a.Counterparty))
	d.SetKind(kind)
	d.SetClassification(str(a.Classification))
	d.SetNote(str(a.Note))
	return d, nil
}

// cleanModelJSON strips Markdown fences and text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
