package models

// NotificationChannel identifies a delivery channel.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelSMS      NotificationChannel = "sms"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

// Template keys understood by the notification renderer.
const (
	TemplateFeeReminder         = "fee_reminder"
	TemplatePaymentConfirmation = "payment_confirmation"
)

// Notification is a single outbound message handed to a delivery provider.
type Notification struct {
	Recipient   string              `json:"recipient"`
	RecipientID string              `json:"recipient_id"`
	Channel     NotificationChannel `json:"channel"`
	TemplateKey string              `json:"template_key"`
	Variables   map[string]string   `json:"variables"`
}

// ReminderFailure records one recipient that could not be notified.
type ReminderFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// ReminderReport summarises a reminder dispatch run.
type ReminderReport struct {
	Sent           int               `json:"sent_count"`
	Failed         int               `json:"failed_count"`
	TotalProcessed int               `json:"total_processed"`
	Failures       []ReminderFailure `json:"failures,omitempty"`
}
