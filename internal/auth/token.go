package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Audience selects the store partition a token's subject lives in.
type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceClient Audience = "client"
)

// Slot selects which of a subject's two token slots is in play. Each
// slot carries its own signing key and expiry.
type Slot string

const (
	SlotBearer  Slot = "bearer"
	SlotRefresh Slot = "refresh"
)

// ErrMalformedToken is returned by Parse when a presented token does not
// split into exactly three dot-separated segments or a segment fails
// base64 or JSON decoding.
var ErrMalformedToken = errors.New("malformed token")

// TokenHeader is the fixed header of the private token scheme. The
// values mimic a JWT header for format familiarity only; the scheme is
// not interoperable with standards-compliant JWT (the signature segment
// is uppercase hex, not base64url).
type TokenHeader struct {
	Alg  string `json:"alg"`
	Type string `json:"type"`
}

// TokenBody carries the signed claims.
type TokenBody struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	Audience Audience `json:"aud"`
	Expiry   float64  `json:"exp"` // unix epoch seconds
}

// TokenParts is the parsed decomposition of a presented token. The
// SigningInput is the exact header.body substring the signature covers;
// validation recomputes the HMAC over it rather than re-serializing.
type TokenParts struct {
	Header       TokenHeader
	Body         TokenBody
	SigningInput string
	Signature    string
}

var tokenEncoding = base64.RawURLEncoding

// BuildToken assembles and signs a token for the given subject. It
// returns the serialized token and its expiry instant. The key must be
// the slot's current signing key; the caller persists the matching
// expiry alongside it.
func BuildToken(now time.Time, ttl time.Duration, key []byte, subjectID, issuer string, aud Audience) (string, time.Time, error) {
	expiry := now.Add(ttl)
	header, err := json.Marshal(TokenHeader{Alg: "HS256", Type: "JWT"})
	if err != nil {
		return "", time.Time{}, err
	}
	body, err := json.Marshal(TokenBody{
		Issuer:   issuer,
		Subject:  subjectID,
		Audience: aud,
		Expiry:   float64(expiry.Unix()),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	msg := tokenEncoding.EncodeToString(header) + "." + tokenEncoding.EncodeToString(body)
	return msg + "." + Sign(key, msg), expiry, nil
}

// ParseToken splits and decodes a presented token without verifying the
// signature. Signature verification needs the store's current key for
// the subject and is the authenticator's job.
func ParseToken(token string) (TokenParts, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return TokenParts{}, ErrMalformedToken
	}
	rawHeader, err := tokenEncoding.DecodeString(segments[0])
	if err != nil {
		return TokenParts{}, ErrMalformedToken
	}
	rawBody, err := tokenEncoding.DecodeString(segments[1])
	if err != nil {
		return TokenParts{}, ErrMalformedToken
	}
	var parts TokenParts
	if err := json.Unmarshal(rawHeader, &parts.Header); err != nil {
		return TokenParts{}, ErrMalformedToken
	}
	if err := json.Unmarshal(rawBody, &parts.Body); err != nil {
		return TokenParts{}, ErrMalformedToken
	}
	parts.SigningInput = segments[0] + "." + segments[1]
	parts.Signature = segments[2]
	return parts, nil
}

// Sign computes the uppercase-hex HMAC-SHA256 signature over the
// signing input with the given key.
func Sign(key []byte, input string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(input))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
