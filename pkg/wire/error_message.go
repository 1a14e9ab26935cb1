package wire

import "strings"

// ErrorPrefix marks a plaintext OTR error notice, per §6.1's
// showError/§7's "emit an outbound ERROR frame" requirement. Unlike the
// AKE and data messages, an OTR error is carried as plain text, never
// base64-enveloped, so a client with no OTR support at all still shows
// the human-readable text to its user.
const ErrorPrefix = "?OTR Error:"

// BuildErrorMessage wraps text in the OTR error-message envelope.
func BuildErrorMessage(text string) string {
	return ErrorPrefix + text
}

// IsErrorMessage reports whether msg is an OTR error notice.
func IsErrorMessage(msg string) bool {
	return strings.HasPrefix(msg, ErrorPrefix)
}

// ParseErrorMessage strips the error envelope, returning the human
// readable text a Host should display.
func ParseErrorMessage(msg string) string {
	return strings.TrimPrefix(msg, ErrorPrefix)
}
