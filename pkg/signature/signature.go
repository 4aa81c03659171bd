// Package signature validates provider webhook signatures.
//
// The provider signs each callback with HMAC-SHA1 keyed by the account auth token over
// the full callback URL followed by every POST parameter as key+value, sorted by key.
// Validation is delegated to the provider SDK's request validator.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// HeaderName request header carrying the signature
const HeaderName = "X-Twilio-Signature"

type Validator struct {
	secret []byte
	sdk    client.RequestValidator
}

func NewValidator(authToken string) *Validator {
	return &Validator{
		secret: []byte(authToken),
		sdk:    client.NewRequestValidator(authToken),
	}
}

// Validate reports whether signatureHeader matches the body posted to callbackURL.
// It fails closed on an empty secret, an empty header, an undecodable body or a
// repeated form key.
func (v *Validator) Validate(rawBody []byte, signatureHeader, callbackURL string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return false
	}
	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return false
	}
	params := make(map[string]string, len(form))
	for k, values := range form {
		// the SDK signs one value per key
		if len(values) != 1 {
			return false
		}
		params[k] = values[0]
	}
	return v.sdk.Validate(callbackURL, params, signatureHeader)
}

// Sign returns the header value the provider would send for params posted to
// callbackURL. Used to replay callbacks locally.
func (v *Validator) Sign(callbackURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, val := range values {
			b.WriteString(k)
			b.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, v.secret)
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
