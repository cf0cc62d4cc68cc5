package llm

import "fmt"

// NewOfflineProvider answers from upper-case merchant keywords so the CLI can
// run without network access. Earlier rules win.
func NewOfflineProvider() *Scripted {
	rule := func(name, category, reason string) ScriptRule {
		return ScriptRule{
			Contains: name,
			Reply:    fmt.Sprintf(`{"category": %q, "reasoning": %q}`, category, reason),
		}
	}
	return &Scripted{
		Rules: []ScriptRule{
			rule("SALARY", "paychecks", "recurring payroll deposit"),
			rule("CARD PAYMENT", "credit_card_payment", "payment toward the credit card"),
			rule("PAYMENT RECEIVED", "credit_card_payment", "card balance payment received"),
			rule("UBER EATS", "restaurants_or_bars", "food delivery order"),
			rule("UBER", "taxi_or_ride_shares", "ride share trip"),
			rule("LYFT", "taxi_or_ride_shares", "ride share trip"),
			rule("AMAZON", "shopping", "online marketplace purchase"),
			rule("WHOLE FOODS", "groceries", "supermarket purchase"),
			rule("SPOTIFY", "software_subscriptions", "music streaming subscription"),
			rule("NETFLIX", "entertainment_or_recreation", "video streaming subscription"),
			rule("COFFEE", "coffee_shops", "coffee shop purchase"),
		},
		Fallback: `{"category": "miscellaneous", "reasoning": "no keyword matched"}`,
	}
}
