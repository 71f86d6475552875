package app

import (
	"regexp"
	"strings"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// Template is one message body in canonical {{name}} placeholder syntax.
type Template struct {
	Subject string
	Body    string
}

// legacyPlaceholder matches the canonical form first so it is left untouched,
// then the #{name}, {name} and #name# forms older templates use.
var legacyPlaceholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}|#\{(\w+)\}|\{(\w+)\}|#(\w+)#`)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NormalizeTemplate rewrites every accepted placeholder syntax to {{name}}.
func NormalizeTemplate(tpl string) string {
	return legacyPlaceholder.ReplaceAllStringFunc(tpl, func(m string) string {
		sub := legacyPlaceholder.FindStringSubmatch(m)
		for _, name := range sub[1:] {
			if name != "" {
				return "{{" + name + "}}"
			}
		}
		return m
	})
}

// Render substitutes {{name}} placeholders. Unknown names are left in place.
func Render(tpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m, "{{"), "}}")
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// DefaultTemplates is the fixed reminder catalogue.
var DefaultTemplates = map[domain.NotificationType]Template{
	domain.NotificationSMSDateReminder: {
		Body: "Reminder: tomorrow ({{sms_date}}) send PORT {{mobile_number}} to {{short_code}} from your phone to get your porting code (UPC). Ref {{reference}}",
	},
	domain.NotificationSMSDateEmail: {
		Subject: "Today: request your porting code for {{mobile_number}}",
		Body: "<p>Today is the day to request your Unique Porting Code.</p>" +
			"<p>Send <strong>PORT {{mobile_number}}</strong> to <strong>{{short_code}}</strong> from the number you are porting. " +
			"The code is valid until {{porting_date}}.</p><p>Reference: {{reference}}</p>",
	},
	domain.NotificationPortingVisitSMS: {
		Body: "Your port of {{mobile_number}} to {{new_provider}} is due {{porting_date}}. Visit {{center_name}}, {{center_address}} ({{center_hours}}) with your UPC and ID proof. Ref {{reference}}",
	},
	domain.NotificationSIMActivationEmail: {
		Subject: "Insert your new SIM today",
		Body: "<p>Your number {{mobile_number}} moves to {{new_provider}} today, {{porting_date}}.</p>" +
			"<p>Insert the new SIM once your old one loses signal. Activation can take a few hours.</p><p>Reference: {{reference}}</p>",
	},
	domain.NotificationStatusUpdate: {
		Subject: "Porting update",
		Body:    "Your porting request {{reference}} is now {{status}}.",
	},
}

// Catalogue overlays operator overrides on DefaultTemplates. Overrides may use
// any accepted placeholder syntax; the result is always canonical.
func Catalogue(overrides map[domain.NotificationType]Template) map[domain.NotificationType]Template {
	out := make(map[domain.NotificationType]Template, len(DefaultTemplates)+len(overrides))
	for typ, tpl := range DefaultTemplates {
		out[typ] = tpl
	}
	for typ, tpl := range overrides {
		base := out[typ]
		if tpl.Subject != "" {
			base.Subject = tpl.Subject
		}
		if tpl.Body != "" {
			base.Body = tpl.Body
		}
		out[typ] = base
	}
	for typ, tpl := range out {
		out[typ] = Template{Subject: NormalizeTemplate(tpl.Subject), Body: NormalizeTemplate(tpl.Body)}
	}
	return out
}
