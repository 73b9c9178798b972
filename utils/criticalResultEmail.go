package utils

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
}

// CriticalResultAlert is what the ordering doctor is told about a critical result.
type CriticalResultAlert struct {
	DoctorEmail    string
	DoctorName     string
	PatientID      string
	PatientName    string
	TestName       string
	ResultValue    string
	ResultUnit     string
	Interpretation string
}

// AlertSender delivers critical result alerts.
type AlertSender interface {
	SendCriticalResult(alert CriticalResultAlert) error
}

// Mailer sends alerts over SMTP with gomail.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.User,
	}
}

func (m *Mailer) SendCriticalResult(alert CriticalResultAlert) error {
	if alert.DoctorEmail == "" {
		return fmt.Errorf("doctor for patient %s has no email address", alert.PatientID)
	}
	return m.dialer.DialAndSend(BuildCriticalResultMessage(m.from, alert))
}

// BuildCriticalResultMessage renders the alert email.
func BuildCriticalResultMessage(from string, alert CriticalResultAlert) *gomail.Message {
	subject := fmt.Sprintf("CRITICAL lab result: %s for patient %s", alert.TestName, alert.PatientID)
	value := alert.ResultValue
	if alert.ResultUnit != "" {
		value += " " + alert.ResultUnit
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", alert.DoctorEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf(
		"Dr. %s,\n\nA critical result was entered for %s (%s).\nTest: %s\nResult: %s\nInterpretation: %s\n\nPlease review the patient immediately.",
		alert.DoctorName, alert.PatientName, alert.PatientID, alert.TestName, value, alert.Interpretation))

	htmlBody := `
	<!DOCTYPE html>
	<html>
	<head>
		<title>Critical Lab Result</title>
		<style>
			body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0; }
			.container { background-color: #ffffff; margin: 20px auto; padding: 20px; border-radius: 8px; max-width: 600px; }
			h1 { color: #b00020; }
			p { color: #444444; }
			.value { font-weight: bold; color: #b00020; }
		</style>
	</head>
	<body>
		<div class="container">
			<h1>Critical Lab Result</h1>
			<p>Dr. ` + html.EscapeString(alert.DoctorName) + `,</p>
			<p>A critical result was entered for ` + html.EscapeString(alert.PatientName) + ` (` + html.EscapeString(alert.PatientID) + `).</p>
			<p>Test: ` + html.EscapeString(alert.TestName) + `</p>
			<p class="value">` + html.EscapeString(value) + ` (` + html.EscapeString(alert.Interpretation) + `)</p>
			<p>Please review the patient immediately.</p>
		</div>
	</body>
	</html>
	`
	m.AddAlternative("text/html", htmlBody)
	return m
}
