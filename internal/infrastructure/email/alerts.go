// Package email sends operational alert emails through the Resend API.
package email

import (
	"fmt"
	"time"

	"github.com/resendlabs/resend-go"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
)

// AlertService notifies operators about conversions that were parked in
// the dead-letter store. Implementations must be safe for concurrent
// use.
type AlertService interface {
	SendDeadLetterAlert(dl *attribution.DeadLetter) error
}

// ResendAlerter is the Resend-backed AlertService.
type ResendAlerter struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
}

// NewResendAlerter builds the alerter from config values. It returns an
// error when the required settings are missing; callers treat a nil
// AlertService as alerts disabled.
func NewResendAlerter(apiKey, fromEmail, toEmail string) (AlertService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if toEmail == "" {
		return nil, fmt.Errorf("alert recipient address is required")
	}
	if fromEmail == "" {
		fromEmail = "alerts@convertlens.io"
	}

	return &ResendAlerter{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		toEmail:   toEmail,
	}, nil
}

// SendDeadLetterAlert composes and sends the parked-conversion alert.
func (a *ResendAlerter) SendDeadLetterAlert(dl *attribution.DeadLetter) error {
	subject := fmt.Sprintf("ConvertLens: conversion %s parked after %d attempts", dl.ConversionID, dl.Attempts)

	htmlContent := fmt.Sprintf(
		`<h2>Conversion parked in dead-letter store</h2>
<p>A conversion exhausted its retry budget and needs operator attention.</p>
<table>
<tr><td><strong>Conversion</strong></td><td>%s</td></tr>
<tr><td><strong>Customer</strong></td><td>%s</td></tr>
<tr><td><strong>Attempts</strong></td><td>%d</td></tr>
<tr><td><strong>Parked at</strong></td><td>%s</td></tr>
<tr><td><strong>Reason</strong></td><td>%s</td></tr>
</table>
<p>Retry it with <code>POST /api/v1/admin/dead-letters/%s/retry</code> once the upstream issue is resolved.</p>`,
		dl.ConversionID, dl.CustomerID, dl.Attempts,
		dl.ParkedAt.Format(time.RFC3339), dl.Reason, dl.ID)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("ConvertLens Alerts <%s>", a.fromEmail),
		To:      []string{a.toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	if _, err := a.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send dead letter alert via Resend: %w", err)
	}
	return nil
}
