package imports

import (
	"regexp"
	"strings"
)

// Columns of the records table an import can fill directly. Any other
// mapping target lands in the record's data object.
const (
	FieldTitle  = "title"
	FieldStage  = "stage_id"
	FieldAmount = "amount_cents"
	FieldSkip   = ""
)

// Targets are the fields offered to the mapping UI.
var Targets = []string{
	FieldTitle, "name", "email", "phone", "company", "address", "city",
	"notes", "status", "date", "source", FieldAmount, FieldStage,
}

var synonyms = map[string]string{
	"e_mail":         "email",
	"email_address":  "email",
	"mail":           "email",
	"phone_number":   "phone",
	"telephone":      "phone",
	"tel":            "phone",
	"mobile":         "phone",
	"cell":           "phone",
	"full_name":      "name",
	"client":         "name",
	"customer":       "name",
	"contact":        "name",
	"contact_name":   "name",
	"customer_name":  "name",
	"client_name":    "name",
	"subject":        "title",
	"job":            "title",
	"project":        "title",
	"deal":           "title",
	"organization":   "company",
	"organisation":   "company",
	"business":       "company",
	"street":         "address",
	"comments":       "notes",
	"comment":        "notes",
	"description":    "notes",
	"note":           "notes",
	"amount":         FieldAmount,
	"price":          FieldAmount,
	"value":          FieldAmount,
	"total":          FieldAmount,
	"stage":          FieldStage,
	"pipeline":       FieldStage,
	"pipeline_stage": FieldStage,
	"created":        "date",
	"created_at":     "date",
	"lead_source":    "source",
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases a header and collapses punctuation and spaces into
// single underscores: "E-Mail Address" becomes "e_mail_address".
func Normalize(header string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(header), "_"), "_")
}

func isTarget(f string) bool {
	for _, t := range Targets {
		if t == f {
			return true
		}
	}
	return false
}

// Suggest proposes a target for every header, "" when nothing matches.
// A target is suggested for at most one header, the first that claims it.
func Suggest(headers []string) map[string]string {
	out := make(map[string]string, len(headers))
	taken := map[string]bool{}
	for _, h := range headers {
		out[h] = FieldSkip
		n := Normalize(h)
		target := ""
		if isTarget(n) {
			target = n
		} else if s, ok := synonyms[n]; ok {
			target = s
		}
		if target != "" && !taken[target] {
			out[h] = target
			taken[target] = true
		}
	}
	return out
}

var dataKey = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidTarget reports whether a user-supplied mapping target is usable.
func ValidTarget(f string) bool {
	return f == FieldSkip || dataKey.MatchString(f)
}
