package session

import (
	"fmt"

	"github.com/a-h/templ"
)

// Fragments are pushed over SSE, so every component renders on a single line.

// StatusMessages maps a session status to the line shown under the QR code.
var StatusMessages = map[string]string{
	"pending":   "Waiting for QR code scan...",
	"paid":      "Payment received",
	"failed":    "Payment failed",
	"cancelled": "Payment cancelled",
	"expired":   "Payment expired",
	"refunded":  "Payment refunded",
}

// GetStatusMessage returns the display line for status.
func GetStatusMessage(status string) string {
	if message, exists := StatusMessages[status]; exists {
		return message
	}
	return "Processing payment..."
}

// StatusBadge renders the session status line.
func StatusBadge(paymentID, status string) templ.Component {
	return templ.Raw(fmt.Sprintf(
		`<div class="payment-status status-%s" data-payment-id="%s"><p>%s</p></div>`,
		templ.EscapeString(status),
		templ.EscapeString(paymentID),
		templ.EscapeString(GetStatusMessage(status)),
	))
}

// Countdown renders the remaining time.
func Countdown(seconds int) templ.Component {
	var stopAttr string
	if seconds <= 0 {
		stopAttr = ` hx-trigger="none"`
	}
	return templ.Raw(fmt.Sprintf(
		`<p class="payment-countdown"%s>Payment expires in <span id="countdown">%s</span></p>`,
		stopAttr,
		FormatRemaining(seconds),
	))
}

// QRView is what the QR panel needs from a render decision.
type QRView struct {
	PaymentID   string
	Strategy    string
	Payload     string
	Action      string
	ImageBase64 string
	MimeType    string
}

// QRPanel renders the QR image, or the raw payload with its action when no
// image could be produced.
func QRPanel(v QRView) templ.Component {
	if v.ImageBase64 != "" {
		return templ.Raw(fmt.Sprintf(
			`<div class="qr-panel qr-%s"><img src="data:%s;base64,%s" alt="Payment QR code" width="256" height="256"/></div>`,
			templ.EscapeString(v.Strategy),
			templ.EscapeString(v.MimeType),
			v.ImageBase64,
		))
	}

	var action string
	switch v.Action {
	case "open_link":
		action = fmt.Sprintf(`<a class="qr-action" href="%s" target="_blank" rel="noopener">Open payment page</a>`, templ.EscapeString(v.Payload))
	case "copy":
		action = fmt.Sprintf(`<button class="qr-action" data-copy='%s'>Copy payment code</button>`, templ.EscapeString(ToJSON(v.Payload)))
	}
	return templ.Raw(fmt.Sprintf(
		`<div class="qr-panel qr-raw"><code class="qr-payload">%s</code>%s</div>`,
		templ.EscapeString(v.Payload),
		action,
	))
}

// SuccessPanel replaces the payment view once the payment is confirmed.
func SuccessPanel(orderCode, amount int64, description string) templ.Component {
	var amountLine string
	if amount > 0 {
		amountLine = fmt.Sprintf(`<p class="amount">%s</p>`, FormatAmount(amount))
	}
	var descLine string
	if description != "" {
		descLine = fmt.Sprintf(`<p class="description">%s</p>`, templ.EscapeString(description))
	}
	return templ.Raw(fmt.Sprintf(
		`<div class="payment-success" hx-trigger="none"><h4>Payment Successful</h4><p>Order #%d</p>%s%s</div>`,
		orderCode,
		amountLine,
		descLine,
	))
}
