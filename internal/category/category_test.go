package category

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomy(t *testing.T) {
	t.Parallel()

	tax := Default()
	require.True(t, tax.IsLeaf("coffee_shops"))
	require.True(t, tax.IsLeaf("paychecks"))
	require.True(t, tax.IsLeaf("transfer"))
	require.True(t, tax.IsLeaf("investment income"))
	require.False(t, tax.IsLeaf("food"), "parent groups are not leaves")
	require.False(t, tax.IsLeaf("Coffee_Shops"), "matching is case-sensitive")
	require.False(t, tax.IsLeaf("not_a_real_category"))

	parent, ok := tax.Parent("groceries")
	require.True(t, ok)
	require.Equal(t, "food", parent)

	var count int
	for _, g := range tax.Groups() {
		count += len(g.Categories)
	}
	require.Len(t, tax.Leaves(), count)
	require.Contains(t, tax.Describe(), "- food: groceries, restaurants_or_bars, coffee_shops")
}

func TestGroupsReturnsCopy(t *testing.T) {
	t.Parallel()

	tax := Default()
	groups := tax.Groups()
	groups[0].Categories[0] = "mutated"
	require.False(t, tax.IsLeaf("mutated"))
	require.NotEqual(t, "mutated", tax.Groups()[0].Categories[0])
}

func TestNewRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := New([]Group{
		{Name: "a", Categories: []string{"x"}},
		{Name: "b", Categories: []string{"x"}},
	})
	require.Error(t, err)

	_, err = Parse([]byte(`[[group]]
name = ""
categories = ["x"]`))
	require.Error(t, err)
}

func TestEffectivePrecedence(t *testing.T) {
	t.Parallel()

	values := []string{"", "v"}
	for _, manual := range values {
		for _, ai := range values {
			for _, origin := range values {
				m, a, o := tag(manual, "manual"), tag(ai, "ai"), tag(origin, "origin")
				got := Effective(m, a, o)
				var want string
				switch {
				case m != "":
					want = m
				case a != "":
					want = a
				case o != "":
					want = o
				default:
					want = Uncategorized
				}
				require.Equal(t, want, got, "manual=%q ai=%q origin=%q", m, a, o)
				require.Equal(t, m == "" && a == "" && o == "", IsUncategorized(m, a, o))
			}
		}
	}
}

func tag(v, name string) string {
	if v == "" {
		return ""
	}
	return name
}

func TestOriginEncodeParse(t *testing.T) {
	t.Parallel()

	o := Origin{
		Legacy:         "Food and Drink",
		LegacyDetailed: "Food and Drink > Restaurants, Coffee Shop",
		Primary:        "FOOD_AND_DRINK",
		Detailed:       "FOOD_AND_DRINK_COFFEE",
		Confidence:     "VERY_HIGH",
	}
	s := o.Encode()
	require.Equal(t, "leg_cgr: Food and Drink, leg_det: Food and Drink > Restaurants, Coffee Shop, cgr: FOOD_AND_DRINK, det: FOOD_AND_DRINK_COFFEE, cnf: VERY_HIGH", s)
	require.Equal(t, o, ParseOrigin(s))

	require.Equal(t, "", Origin{}.Encode())
	require.True(t, ParseOrigin("").IsZero())
	require.Equal(t, Origin{Primary: "INCOME"}, ParseOrigin("cgr: INCOME"))
}

func TestOriginDescribe(t *testing.T) {
	t.Parallel()

	o := ParseOrigin("cgr: FOOD_AND_DRINK, det: FOOD_AND_DRINK_COFFEE, cnf: VERY_HIGH")
	require.Equal(t, "Primary: Food and drink; Detailed: Coffee; Confidence: very high", o.Describe())
	require.Equal(t, "", Humanize(""))
}
