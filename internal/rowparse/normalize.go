package rowparse

import (
	"regexp"
	"strconv"
	"strings"
)

// nonNumeric matches everything that is not a digit, sign, decimal point or
// thousands comma. Percent and plus markers fall out here regardless of
// whether the remainder parses.
var nonNumeric = regexp.MustCompile(`[^0-9.,+-]`)

// Number normalizes a cell text to a float. A value yielding no digits
// normalizes to nil, never to zero: "not reported" is distinct from
// "reported as 0".
func Number(s string) *float64 {
	cleaned := cleanNumeric(s)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Count normalizes a cell text to an integer count. Fractional inputs are
// truncated toward zero; no digits means nil.
func Count(s string) *int64 {
	cleaned := cleanNumeric(s)
	if cleaned == "" {
		return nil
	}
	if v, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	v := int64(f)
	return &v
}

func cleanNumeric(s string) string {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	// Thousands separators and explicit plus signs carry no numeric
	// information once the sign-free magnitude is known.
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "+")
	if !strings.ContainsAny(cleaned, "0123456789") {
		return ""
	}
	return cleaned
}
