// internal/notify/template.go
package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

// DefaultTemplate is used when a rule carries no template of its own.
const DefaultTemplate = "Hi {{ first_name }}, your subscription with {{ company_name }} expires on {{ expiry_date }}. {{ days_left }} day(s) left to renew."

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// RenderTemplate substitutes {{ name }} placeholders against vars. Unknown
// placeholders render as empty string. No nesting, no conditionals.
func RenderTemplate(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		return vars[key]
	})
}

// TemplateVars builds the fixed variable set a reminder template may use.
func TemplateVars(customer *model.Customer, tenant *model.Tenant, now time.Time) map[string]string {
	vars := map[string]string{}
	if tenant != nil {
		vars["company_name"] = tenant.Name
	}
	if customer == nil {
		return vars
	}

	vars["first_name"] = customer.FirstName
	vars["last_name"] = customer.LastName
	if customer.ExpiryDate != nil {
		expiry := *customer.ExpiryDate
		vars["expiry_date"] = expiry.Format("2006-01-02")

		daysLeft := int(expiry.Sub(now).Hours() / 24)
		if daysLeft < 0 {
			daysLeft = 0
		}
		vars["days_left"] = fmt.Sprintf("%d", daysLeft)
	}
	return vars
}

// TemplateOrDefault falls back to the stock reminder text for rules with
// an empty template.
func TemplateOrDefault(template string) string {
	if strings.TrimSpace(template) == "" {
		return DefaultTemplate
	}
	return template
}
