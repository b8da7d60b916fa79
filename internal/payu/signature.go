package payu

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// SignatureHeaderName is the HTTP header carrying the notification signature.
const SignatureHeaderName = "OpenPayU-Signature"

// ErrMalformedHeader is returned when the signature header cannot be parsed
// or is missing a required field.
var ErrMalformedHeader = errors.New("payu: malformed signature header")

// SignatureHeader is the parsed OpenPayU-Signature header value.
type SignatureHeader struct {
	Signature string
	Algorithm string
	Sender    string
}

// ParseSignatureHeader parses the semicolon separated key=value pairs of an
// OpenPayU-Signature header. The signature and algorithm fields are required.
func ParseSignatureHeader(raw string) (SignatureHeader, error) {
	var header SignatureHeader
	if strings.TrimSpace(raw) == "" {
		return header, ErrMalformedHeader
	}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return SignatureHeader{}, ErrMalformedHeader
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "signature":
			header.Signature = strings.TrimSpace(value)
		case "algorithm":
			header.Algorithm = strings.TrimSpace(value)
		case "sender":
			header.Sender = strings.TrimSpace(value)
		}
	}
	if header.Signature == "" || header.Algorithm == "" {
		return SignatureHeader{}, ErrMalformedHeader
	}
	return header, nil
}

// VerifySignature recomputes the keyed digest of the raw body and compares it
// against the digest carried in the header. The OpenPayU scheme signs
// hash(body || secondKey) with the algorithm named in the header. Comparison
// is constant time; an unsupported algorithm or any mismatch yields false.
func VerifySignature(rawBody []byte, header SignatureHeader, secondKey string) bool {
	hasher := hasherFor(header.Algorithm)
	if hasher == nil {
		return false
	}
	hasher.Write(rawBody)
	hasher.Write([]byte(secondKey))
	expected := hex.EncodeToString(hasher.Sum(nil))
	provided := strings.ToLower(strings.TrimSpace(header.Signature))
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func hasherFor(algorithm string) hash.Hash {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "MD5":
		return md5.New()
	case "SHA", "SHA1", "SHA-1":
		return sha1.New()
	case "SHA256", "SHA-256":
		return sha256.New()
	case "SHA384", "SHA-384":
		return sha512.New384()
	case "SHA512", "SHA-512":
		return sha512.New()
	default:
		return nil
	}
}
