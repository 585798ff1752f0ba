package automation

import (
	"sort"
	"strings"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

// RenderTemplate replaces {key} placeholders with the given values in a
// single pass. Substituted values are never scanned for placeholders again.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// LeadPlaceholders returns the values a message template may reference.
func LeadPlaceholders(lead *model.Lead) map[string]string {
	firstName, _, _ := strings.Cut(strings.TrimSpace(lead.Name), " ")
	stage := ""
	if lead.StageID != nil {
		stage = *lead.StageID
	}
	return map[string]string{
		"name":        lead.Name,
		"nome":        lead.Name,
		"first_name":  firstName,
		"phone":       lead.Phone,
		"telefone":    lead.Phone,
		"email":       lead.Email,
		"company":     lead.Company,
		"empresa":     lead.Company,
		"stage":       stage,
		"temperature": lead.Temperature,
	}
}
