package templates

import "time"

// AppConfig represents the application configuration
type AppConfig struct {
	// System configuration
	Port      string `mapstructure:"port" json:"port"`
	DataDir   string `mapstructure:"dataDir" json:"dataDir"`
	LogLevel  string `mapstructure:"logLevel" json:"logLevel"`
	LogFormat string `mapstructure:"logFormat" json:"logFormat"` // "text" or "json"

	// Payment provider: "api" (HTTP payment service) or "stripe" (payment links)
	Provider string `mapstructure:"provider" json:"provider"`

	// HTTP payment service
	PaymentAPIBaseURL string `mapstructure:"paymentApiBaseUrl" json:"paymentApiBaseUrl"`
	PaymentAPIKey     string `mapstructure:"paymentApiKey" json:"paymentApiKey"`

	// Stripe configuration
	StripeSecretKey     string `mapstructure:"stripeSecretKey" json:"stripeSecretKey"`
	StripeWebhookSecret string `mapstructure:"stripeWebhookSecret" json:"stripeWebhookSecret"`
	// Public base URL; when set with the stripe provider a webhook endpoint is registered
	PublicURL string `mapstructure:"publicUrl" json:"publicUrl"`

	// Session timing
	PollInterval      time.Duration `mapstructure:"pollInterval" json:"pollInterval"`
	TickInterval      time.Duration `mapstructure:"tickInterval" json:"tickInterval"`
	FetchTimeout      time.Duration `mapstructure:"fetchTimeout" json:"fetchTimeout"`
	CancelTimeout     time.Duration `mapstructure:"cancelTimeout" json:"cancelTimeout"`
	QRLoadTimeout     time.Duration `mapstructure:"qrLoadTimeout" json:"qrLoadTimeout"`
	ImageFetchTimeout time.Duration `mapstructure:"imageFetchTimeout" json:"imageFetchTimeout"`

	// QR rendering
	QRSize int `mapstructure:"qrSize" json:"qrSize"` // PNG edge length in pixels
}

// SessionIntent is the JSON body accepted when a payment session is opened.
type SessionIntent struct {
	PaymentID   string    `json:"paymentId"`
	OrderCode   int64     `json:"orderCode"`
	CheckoutURL string    `json:"checkoutUrl"`
	QRCode      string    `json:"qrCode"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Amount      int64     `json:"amount,omitempty"`
	Description string    `json:"description,omitempty"`
}

// SessionView is the JSON shape of the current session for the UI shell.
type SessionView struct {
	PaymentID        string    `json:"paymentId"`
	OrderCode        int64     `json:"orderCode"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds int       `json:"remainingSeconds"`
	PollingActive    bool      `json:"pollingActive"`
	SuccessNotified  bool      `json:"successNotified"`
	QRStrategy       string    `json:"qrStrategy,omitempty"`
	QRAction         string    `json:"qrAction,omitempty"`
}

// ErrorView is the JSON body returned on request failures.
type ErrorView struct {
	Error string `json:"error"`
}
