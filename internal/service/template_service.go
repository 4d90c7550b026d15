// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

// RenderTemplate substitutes {placeholder} markers with contact fields.
// Empty fields render as <unknown> so a half-filled contact never produces
// a dangling placeholder.
func RenderTemplate(template model.MessageTemplate, contact model.Contact) string {
	result := template.Body
	result = replace(result, "{first_name}", contact.FirstName)
	result = replace(result, "{last_name}", contact.LastName)
	result = replace(result, "{phone}", contact.Phone)
	result = replace(result, "{company}", contact.Company)
	return result
}

func replace(template, placeholder, value string) string {
	if value == "" {
		value = "<unknown>"
	}
	return strings.ReplaceAll(template, placeholder, value)
}
