package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/llm"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()
	tax := category.Default()

	cases := []struct {
		name     string
		raw      string
		category string
		parseErr bool
		validErr bool
	}{
		{name: "bare", raw: reply("coffee_shops", "latte"), category: "coffee_shops"},
		{name: "surrounding prose", raw: "Sure! Here you go:\n" + reply("paychecks", "salary") + "\nHope that helps {x}", category: "paychecks"},
		{name: "brace inside string", raw: `{"category": "gas", "reasoning": "fuel } stop"}`, category: "gas"},
		{name: "no braces", raw: "coffee_shops", parseErr: true},
		{name: "not json", raw: "{category: coffee_shops}", parseErr: true},
		{name: "unterminated", raw: `{"category": "gas"`, parseErr: true},
		{name: "missing reasoning", raw: `{"category": "gas"}`, validErr: true},
		{name: "missing category", raw: `{"reasoning": "x"}`, validErr: true},
		{name: "non string category", raw: `{"category": 7, "reasoning": "x"}`, validErr: true},
		{name: "unknown category", raw: reply("not_a_real_category", "x"), validErr: true},
		{name: "case sensitive", raw: reply("Coffee_Shops", "x"), validErr: true},
		{name: "group name is not a leaf", raw: reply("food", "x"), validErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := ParseResponse(tc.raw, tax)
			var pe *ParseError
			var ve *ValidationError
			switch {
			case tc.parseErr:
				require.ErrorAs(t, err, &pe)
				require.Equal(t, tc.raw, pe.Raw)
			case tc.validErr:
				require.ErrorAs(t, err, &ve)
				require.Equal(t, tc.raw, ve.Raw)
				require.True(t, IsModelError(err))
			default:
				require.NoError(t, err)
				require.Equal(t, tc.category, out.Category)
				require.NotEmpty(t, out.Reasoning)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()
	c := NewCategorizer(&llm.Scripted{}, category.Default(), config.Default().LLM, 3)

	tx := repository.Transaction{
		ID:             "t1",
		AccountID:      "chk",
		Institution:    "TestBank",
		Date:           day(10),
		Name:           "Transfer to savings",
		Amount:         500,
		OriginCategory: category.Origin{Primary: "TRANSFER_OUT", Detailed: "TRANSFER_OUT_SAVINGS", Confidence: "VERY_HIGH"}.Encode(),
	}
	var candidates []repository.Transaction
	for i := 0; i < 5; i++ {
		candidates = append(candidates, repository.Transaction{
			ID:          "c" + string(rune('a'+i)),
			AccountID:   "sav",
			Institution: "TestBank",
			AccountName: "Savings",
			Date:        day(11 + i),
			Name:        "Deposit",
			Amount:      -500,
		})
	}

	prompt := c.BuildPrompt(tx, candidates)
	require.Contains(t, prompt, "- Date: 2025-03-10")
	require.Contains(t, prompt, "- Amount: 500.00 (money out)")
	require.Contains(t, prompt, "Primary: Transfer out; Detailed: Savings; Confidence: very high")
	require.Contains(t, prompt, "Possible transfer matches")
	require.Contains(t, prompt, "TestBank / Savings")
	require.Contains(t, prompt, "1 days apart, same institution")
	require.Contains(t, prompt, "\n3. ")
	require.NotContains(t, prompt, "\n4. ")
	require.Contains(t, prompt, "- food: groceries, restaurants_or_bars, coffee_shops")
	require.Contains(t, prompt, `"reasoning"`)

	plain := c.BuildPrompt(repository.Transaction{Date: day(1), Name: "x", Amount: -20}, nil)
	require.NotContains(t, plain, "Possible transfer matches")
	require.Contains(t, plain, "- Merchant: None")
	require.Contains(t, plain, "- Provider categories: None")
	require.Contains(t, plain, "(money in)")
}

func TestCategorizeWaitsBeforeEachCall(t *testing.T) {
	t.Parallel()
	scripted := &llm.Scripted{Fallback: reply("groceries", "supermarket")}
	cfg := config.Default().LLM
	cfg.RequestDelay = 250 * time.Millisecond
	c := NewCategorizer(scripted, category.Default(), cfg, 3)

	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		require.Empty(t, scripted.Prompts()[len(waits):], "sleep must precede the call")
		waits = append(waits, d)
		return nil
	}

	tx := repository.Transaction{ID: "t1", Date: day(2), Name: "WHOLE FOODS", Amount: 42.1}
	for i := 0; i < 2; i++ {
		out, err := c.Categorize(context.Background(), tx, nil)
		require.NoError(t, err)
		require.Equal(t, "groceries", out.Category)
	}
	require.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, waits)
	require.Len(t, scripted.Prompts(), 2)
}

func TestCategorizeSurfacesProviderAndModelErrors(t *testing.T) {
	t.Parallel()
	down := errors.New("provider down")
	scripted := &llm.Scripted{Rules: []llm.ScriptRule{
		{Contains: "Name: broken", Err: down},
		{Contains: "Name: chatty", Reply: "I think it's coffee"},
	}}
	c := NewCategorizer(scripted, category.Default(), config.LLMConfig{MaxTokens: 150}, 3)
	ctx := context.Background()

	_, err := c.Categorize(ctx, repository.Transaction{ID: "a", Date: day(1), Name: "broken"}, nil)
	require.ErrorIs(t, err, down)
	require.False(t, IsModelError(err))

	_, err = c.Categorize(ctx, repository.Transaction{ID: "b", Date: day(1), Name: "chatty"}, nil)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.True(t, strings.Contains(pe.Raw, "coffee"))
}

func TestCategorizeHonoursCancellation(t *testing.T) {
	t.Parallel()
	scripted := &llm.Scripted{Fallback: reply("gas", "fuel")}
	cfg := config.Default().LLM
	cfg.RequestDelay = time.Hour
	c := NewCategorizer(scripted, category.Default(), cfg, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Categorize(ctx, repository.Transaction{ID: "a", Date: day(1), Name: "shell"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, scripted.Prompts())
}
