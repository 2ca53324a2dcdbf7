package template

import (
	"errors"
	"strings"

	"TalentReach/internal/models"
)

// ErrTemplateNotFound means no template of the requested name exists.
// It is a configuration problem, never retried.
var ErrTemplateNotFound = errors.New("template not found")

// Rendered is the subject/body pair produced from a template.
type Rendered struct {
	Subject string
	Body    string
}

// Render substitutes {placeholder} occurrences in the template's subject
// and body with the given variables. Placeholders with no matching
// variable are left as literal text so a malformed template is visibly
// broken instead of silently wrong. Rendering is pure: same inputs,
// same output.
func Render(tmpl models.Template, vars map[string]string) Rendered {
	return Rendered{
		Subject: substitute(tmpl.Subject, vars),
		Body:    substitute(tmpl.Body, vars),
	}
}

func substitute(text string, vars map[string]string) string {
	result := text
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// LeadVars builds the standard variable set for rendering outreach
// against a lead.
func LeadVars(lead models.Lead, senderName string) map[string]string {
	firstName := lead.ContactName
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return map[string]string{
		"first_name":   firstName,
		"contact_name": lead.ContactName,
		"company":      lead.CompanyName,
		"role":         lead.RoleTitle,
		"sender_name":  senderName,
	}
}
