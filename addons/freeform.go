package addons

import (
	"regexp"
	"strconv"
	"strings"
)

// priceSuffix matches a trailing "(+30.00)", "($2)" or "(1.5)" price.
var priceSuffix = regexp.MustCompile(`^(.*?)\s*\(\s*\+?\s*\$?\s*(-?\d+(?:\.\d+)?)\s*\)\s*$`)

// ParseFreeform splits a comma separated addon list such as
// "Extra Cheese (+30.00), No Ice (+0.00)". Parts without a parseable price
// are kept with a zero price.
func ParseFreeform(text string) []Entry {
	var out []Entry
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, price := part, 0.0
		if m := priceSuffix.FindStringSubmatch(part); m != nil {
			if v, err := strconv.ParseFloat(m[2], 64); err == nil {
				name, price = strings.TrimSpace(m[1]), v
			}
		}
		out = append(out, newEntry(name, "", price, 1))
	}
	return out
}
