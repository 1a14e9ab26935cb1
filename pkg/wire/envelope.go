package wire

import (
	"encoding/base64"
	"strings"
)

// WrapEnvelope base64-encodes an encoded OTR message and wraps it in the
// "?OTR:....." text envelope used in plaintext transports.
func WrapEnvelope(encoded []byte) string {
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(encoded) + EnvelopeSuffix
}

// UnwrapEnvelope strips the "?OTR:....." envelope and base64-decodes the
// body.
func UnwrapEnvelope(msg string) ([]byte, error) {
	if !strings.HasPrefix(msg, EnvelopePrefix) {
		return nil, ErrMalformedEnvelope
	}
	body := strings.TrimPrefix(msg, EnvelopePrefix)
	body = strings.TrimSuffix(body, EnvelopeSuffix)
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	return data, nil
}

// IsEnvelope reports whether msg carries the "?OTR:" envelope prefix,
// as opposed to a query message or a fragment.
func IsEnvelope(msg string) bool {
	return strings.HasPrefix(msg, EnvelopePrefix)
}
