package category

import "strings"

const (
	tagLegacy         = "leg_cgr"
	tagLegacyDetailed = "leg_det"
	tagPrimary        = "cgr"
	tagDetailed       = "det"
	tagConfidence     = "cnf"
)

var originTags = []string{tagLegacy, tagLegacyDetailed, tagPrimary, tagDetailed, tagConfidence}

// Origin is the provider's category provenance for one transaction.
type Origin struct {
	Legacy         string
	LegacyDetailed string
	Primary        string
	Detailed       string
	Confidence     string
}

// IsZero reports whether no field is set.
func (o Origin) IsZero() bool {
	return o == Origin{}
}

// Encode packs the origin into one column, e.g.
// "leg_cgr: Food and Drink, cgr: FOOD_AND_DRINK, det: FOOD_AND_DRINK_COFFEE, cnf: HIGH".
func (o Origin) Encode() string {
	var parts []string
	add := func(tag, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, tag+": "+v)
		}
	}
	add(tagLegacy, o.Legacy)
	add(tagLegacyDetailed, o.LegacyDetailed)
	add(tagPrimary, o.Primary)
	add(tagDetailed, o.Detailed)
	add(tagConfidence, o.Confidence)
	return strings.Join(parts, ", ")
}

// ParseOrigin reverses Encode. Untagged segments are folded into the
// preceding value so values containing ", " survive.
func ParseOrigin(s string) Origin {
	var o Origin
	var current *string
	for _, seg := range strings.Split(s, ", ") {
		tag, val, ok := splitTag(seg)
		if !ok {
			if current != nil {
				*current += ", " + seg
			}
			continue
		}
		switch tag {
		case tagLegacy:
			current = &o.Legacy
		case tagLegacyDetailed:
			current = &o.LegacyDetailed
		case tagPrimary:
			current = &o.Primary
		case tagDetailed:
			current = &o.Detailed
		case tagConfidence:
			current = &o.Confidence
		}
		*current = val
	}
	return o
}

func splitTag(seg string) (string, string, bool) {
	for _, tag := range originTags {
		if strings.HasPrefix(seg, tag+":") {
			return tag, strings.TrimSpace(strings.TrimPrefix(seg, tag+":")), true
		}
	}
	return "", "", false
}

// Describe renders the origin with readable labels for prompts and display.
func (o Origin) Describe() string {
	var parts []string
	if o.Primary != "" {
		parts = append(parts, "Primary: "+Humanize(o.Primary))
	}
	if o.Detailed != "" {
		parts = append(parts, "Detailed: "+Humanize(strings.TrimPrefix(o.Detailed, o.Primary+"_")))
	}
	if o.Confidence != "" {
		parts = append(parts, "Confidence: "+strings.ToLower(strings.ReplaceAll(o.Confidence, "_", " ")))
	}
	if o.Legacy != "" {
		parts = append(parts, "General: "+o.Legacy)
	}
	if o.LegacyDetailed != "" && o.LegacyDetailed != o.Legacy {
		parts = append(parts, "General detail: "+o.LegacyDetailed)
	}
	return strings.Join(parts, "; ")
}

// Humanize turns an enum-style label such as FOOD_AND_DRINK into "Food and drink".
func Humanize(label string) string {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
