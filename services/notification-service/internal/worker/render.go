package worker

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/jobs"
)

type rendered struct {
	Subject string
	Body    string
	SMS     string
}

type templateSet struct {
	subject *template.Template
	body    *template.Template
	sms     *template.Template
}

var funcs = template.FuncMap{
	"when":  formatWhen,
	"money": formatCents,
}

func mustSet(subject, body, sms string) templateSet {
	return templateSet{
		subject: template.Must(template.New("subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New("body").Funcs(funcs).Parse(body)),
		sms:     template.Must(template.New("sms").Funcs(funcs).Parse(sms)),
	}
}

var templates = map[string]templateSet{
	jobs.TemplateConfirmation: mustSet(
		`Your appointment is booked`,
		"Hi {{.client_name}},\n\nYour appointment on {{when .start_time .timezone}} is booked.\n"+
			"{{if eq .status \"pending_deposit\"}}A deposit of {{money .deposit_cents}} is due to confirm it.\n{{end}}",
		`Booked: {{when .start_time .timezone}}.{{if eq .status "pending_deposit"}} Deposit {{money .deposit_cents}} due.{{end}}`,
	),
	jobs.TemplateReminder: mustSet(
		`Reminder: your appointment {{if eq (printf "%v" .hours_before) "1"}}in an hour{{else}}is coming up{{end}}`,
		"Hi {{.client_name}},\n\nThis is a reminder of your appointment on {{when .start_time .timezone}}.\n",
		`Reminder: appointment {{when .start_time .timezone}}.`,
	),
	jobs.TemplateCancelled: mustSet(
		`Your appointment was cancelled`,
		"Hi {{.client_name}},\n\nYour appointment on {{when .start_time \"\"}} was cancelled.{{if .reason}}\nReason: {{.reason}}{{end}}\n",
		`Cancelled: appointment {{when .start_time ""}}.`,
	),
	jobs.TemplateRescheduled: mustSet(
		`Your appointment has moved`,
		"Hi {{.client_name}},\n\nYour appointment moved from {{when .previous_start .timezone}} to {{when .start_time .timezone}}.\n",
		`Moved: appointment now {{when .start_time .timezone}}.`,
	),
	jobs.TemplateOrder: mustSet(
		`We received your order`,
		"Hi {{.customer_name}},\n\nThanks for your order of {{.item_count}} item(s), total {{money .total_cents}} ({{.fulfillment}}).\n",
		`Order received: {{.item_count}} item(s), {{money .total_cents}}.`,
	),
}

// render produces the message for job. Unknown templates are a permanent
// failure.
func render(job jobs.Job) (rendered, error) {
	set, ok := templates[job.Template]
	if !ok {
		return rendered{}, fmt.Errorf("unknown template %q", job.Template)
	}
	var out rendered
	for _, part := range []struct {
		t   *template.Template
		dst *string
	}{
		{set.subject, &out.Subject},
		{set.body, &out.Body},
		{set.sms, &out.SMS},
	} {
		var buf bytes.Buffer
		if err := part.t.Execute(&buf, job.Data); err != nil {
			return rendered{}, fmt.Errorf("render %s: %w", job.Template, err)
		}
		*part.dst = buf.String()
	}
	return out, nil
}

func formatWhen(v any, tz any) string {
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	if name, _ := tz.(string); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			t = t.In(loc)
		}
	}
	return t.Format("Mon Jan 2, 15:04 MST")
}

// formatCents accepts the numeric types JSON decoding produces.
func formatCents(v any) string {
	var c int64
	switch n := v.(type) {
	case int64:
		c = n
	case int:
		c = int64(n)
	case float64:
		c = int64(n)
	}
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
