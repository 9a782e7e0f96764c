package hyperliquid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// auth signs private requests with HMAC-SHA256 over
// "timestamp + method + path [+ body]", keyed by the API secret.
type auth struct {
	apiKey string
	secret string
}

func newAuth(apiKey, secret string) *auth {
	return &auth{apiKey: apiKey, secret: secret}
}

func (a *auth) configured() bool {
	return a.apiKey != "" && a.secret != ""
}

// headers produces the signed header set for one request.
func (a *auth) headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	sig, err := a.sign(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	return map[string]string{
		"HL-API-KEY":   a.apiKey,
		"HL-SIGNATURE": sig,
		"HL-TIMESTAMP": timestamp,
	}, nil
}

func (a *auth) sign(timestamp, method, path, body string) (string, error) {
	// Secrets arrive in whichever base64 variant the venue console emits.
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
