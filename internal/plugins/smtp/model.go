// Package smtp provides outbound email for the campus service. Verification
// codes and password reset codes are delivered through it. Settings come
// from the environment; the password is never logged or serialized.
package smtp

// Encryption modes for the SMTP connection.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

// Settings holds the SMTP configuration.
type Settings struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	FromAddress string `json:"fromAddress"`
	FromName    string `json:"fromName"`
	Encryption  string `json:"encryption"` // "starttls", "ssl", or "none".
}
