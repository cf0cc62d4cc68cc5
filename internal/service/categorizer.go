package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/llm"
	"github.com/jask/ledgersync/internal/logger"
)

// Categorization is a model answer that passed validation.
type Categorization struct {
	Category  string
	Reasoning string
	Raw       string
}

// Categorizer asks the model for one taxonomy leaf per transaction. It never
// touches the store; callers persist the answer.
type Categorizer struct {
	Provider      llm.Provider
	Taxonomy      *category.Taxonomy
	Delay         time.Duration
	MaxTokens     int32
	Temperature   float32
	MaxCandidates int

	sleep func(ctx context.Context, d time.Duration) error
}

func NewCategorizer(p llm.Provider, tax *category.Taxonomy, cfg config.LLMConfig, maxCandidates int) *Categorizer {
	if tax == nil {
		tax = category.Default()
	}
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &Categorizer{
		Provider:      p,
		Taxonomy:      tax,
		Delay:         cfg.RequestDelay,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		MaxCandidates: maxCandidates,
		sleep:         sleepCtx,
	}
}

// Categorize waits the configured delay, calls the model once and validates the reply.
func (c *Categorizer) Categorize(ctx context.Context, t repository.Transaction, candidates []repository.Transaction) (Categorization, error) {
	if c.Provider == nil {
		return Categorization{}, errors.New("categorizer: no llm provider configured")
	}
	prompt := c.BuildPrompt(t, candidates)

	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	if err := sleep(ctx, c.Delay); err != nil {
		return Categorization{}, err
	}

	raw, err := c.Provider.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return Categorization{}, fmt.Errorf("llm completion: %w", err)
	}
	out, err := ParseResponse(raw, c.Taxonomy)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("transaction_id", t.ID).Str("raw", raw).Msg("rejected model response")
		return Categorization{}, err
	}
	return out, nil
}

// BuildPrompt renders the transaction, up to MaxCandidates transfer matches and the taxonomy.
func (c *Categorizer) BuildPrompt(t repository.Transaction, candidates []repository.Transaction) string {
	var b strings.Builder
	b.WriteString("Categorize this bank transaction into exactly one category from the list below.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "- Date: %s\n", t.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Name: %s\n", t.Name)
	fmt.Fprintf(&b, "- Merchant: %s\n", orNone(t.MerchantName))
	if t.OriginalDescription != "" {
		fmt.Fprintf(&b, "- Description: %s\n", t.OriginalDescription)
	}
	fmt.Fprintf(&b, "- Amount: %.2f (%s)\n", math.Abs(t.Amount), direction(t.Amount))
	if t.Institution != "" {
		fmt.Fprintf(&b, "- Bank: %s\n", t.Institution)
	}
	if t.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", t.Location)
	}
	if t.PaymentDetails != "" {
		fmt.Fprintf(&b, "- Payment details: %s\n", t.PaymentDetails)
	}
	fmt.Fprintf(&b, "- Provider categories: %s\n", orNone(category.ParseOrigin(t.OriginCategory).Describe()))

	if len(candidates) > 0 {
		limit := c.MaxCandidates
		if limit <= 0 || limit > len(candidates) {
			limit = len(candidates)
		}
		b.WriteString("\nPossible transfer matches in the user's other accounts:\n")
		for i, m := range candidates[:limit] {
			days := int(math.Abs(m.Date.Sub(t.Date).Hours()) / 24)
			same := "different institution"
			if m.Institution != "" && m.Institution == t.Institution {
				same = "same institution"
			}
			fmt.Fprintf(&b, "%d. %.2f (%s) on %s at %s, %q, %d days apart, %s\n",
				i+1, math.Abs(m.Amount), direction(m.Amount), m.Date.Format("2006-01-02"),
				accountLabel(m), m.Name, days, same)
		}
		b.WriteString("If this transaction is one leg of a money movement between the user's own accounts, answer \"transfer\" (or \"credit_card_payment\" for card payoffs).\n")
	}

	b.WriteString("\nCategories (group: leaves):\n")
	b.WriteString(c.Taxonomy.Describe())
	b.WriteString("\nRespond with only a JSON object of the form {\"category\": \"<leaf category>\", \"reasoning\": \"<one short sentence>\"}.\n")
	return b.String()
}

// ParseResponse extracts the first JSON object in raw and checks it against tax.
func ParseResponse(raw string, tax *category.Taxonomy) (Categorization, error) {
	obj, ok := firstObject(raw)
	if !ok {
		return Categorization{}, &ParseError{Raw: raw, Err: errors.New("no JSON object found")}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Categorization{}, &ParseError{Raw: raw, Err: err}
	}

	var out Categorization
	out.Raw = raw
	for key, dst := range map[string]*string{"category": &out.Category, "reasoning": &out.Reasoning} {
		v, ok := fields[key]
		if !ok {
			return Categorization{}, &ValidationError{Raw: raw, Reason: "missing " + key}
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Categorization{}, &ValidationError{Raw: raw, Reason: key + " must be a string"}
		}
	}
	if !tax.IsLeaf(out.Category) {
		return Categorization{}, &ValidationError{Raw: raw, Reason: fmt.Sprintf("category %q is not in the taxonomy", out.Category)}
	}
	return out, nil
}

// firstObject returns the first balanced {...} span, skipping braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func direction(amount float64) string {
	if amount < 0 {
		return "money in"
	}
	return "money out"
}

func accountLabel(t repository.Transaction) string {
	parts := make([]string, 0, 2)
	if t.Institution != "" {
		parts = append(parts, t.Institution)
	}
	if t.AccountName != "" {
		parts = append(parts, t.AccountName)
	} else {
		parts = append(parts, t.AccountID)
	}
	return strings.Join(parts, " / ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
