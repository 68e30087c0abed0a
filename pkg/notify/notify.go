// Package notify renders and delivers guardian-facing messages. Rendering is
// template based so schools get consistent wording; delivery is pluggable per
// provider.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
}

// Sender delivers rendered messages. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var templates = map[string]struct {
	subject string
	body    string
}{
	"fee_reminder": {
		subject: "Fee Payment Reminder - {{.student_name}}",
		body: `Dear {{.guardian_name}},

This is a gentle reminder regarding the pending fee payment for your child {{.student_name}} studying in {{.class_name}}.

Payment Details:
- Student Name: {{.student_name}}
- Class: {{.class_name}}
- Amount Due: {{.outstanding_amount}}
- Due Date: {{.due_date}}

Please make the payment at your earliest convenience. You can pay online through our portal or visit the school office during working hours.

Thank you for your cooperation.

Best regards,
{{.school_name}}
Accounts Department`,
	},
	"payment_confirmation": {
		subject: "Payment Received - Receipt {{.receipt_no}}",
		body: `Dear {{.guardian_name}},

We have received a fee payment for your child {{.student_name}}.

Payment Details:
- Receipt No: {{.receipt_no}}
- Amount Paid: {{.amount}}
- Payment Date: {{.payment_date}}
- Remaining Balance: {{.remaining_amount}}

Please retain the receipt number for your records.

Best regards,
{{.school_name}}
Accounts Department`,
	},
}

// Render fills the named template with the supplied variables.
func Render(templateKey string, vars map[string]string) (subject, body string, err error) {
	tpl, ok := templates[templateKey]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown template %q", templateKey)
	}

	subject, err = execute(templateKey+"-subject", tpl.subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err = execute(templateKey+"-body", tpl.body, vars)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("notify: parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("notify: render template %s: %w", name, err)
	}
	return buf.String(), nil
}
