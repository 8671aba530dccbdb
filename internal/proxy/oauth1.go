package proxy

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// oauth1Credentials carries the four secrets of an OAuth 1.0a user context.
type oauth1Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// oauth1Signer computes RFC 5849 HMAC-SHA1 Authorization headers. Nonce
// and clock are injectable so tests can pin signatures bit for bit.
type oauth1Signer struct {
	nonce func() (string, error)
	now   func() time.Time
}

func newOAuth1Signer() *oauth1Signer {
	return &oauth1Signer{
		nonce: randomNonce,
		now:   time.Now,
	}
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// authorizationHeader builds the OAuth header for one request. Query
// parameters participate in the signature base string; JSON bodies do not.
func (s *oauth1Signer) authorizationHeader(method string, u *url.URL, creds oauth1Credentials) (string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return "", connector.Wrap(connector.KindOAuthSigning, err, "generating nonce")
	}
	timestamp := fmt.Sprintf("%d", s.now().Unix())

	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        timestamp,
		"oauth_token":            creds.Token,
		"oauth_version":          "1.0",
	}

	// Signature parameters: oauth params plus the request query.
	sigParams := make(map[string][]string, len(oauthParams))
	for k, v := range oauthParams {
		sigParams[k] = []string{v}
	}
	for k, vs := range u.Query() {
		sigParams[k] = append(sigParams[k], vs...)
	}

	base := signatureBase(method, u, sigParams)
	signingKey := percentEncode(creds.ConsumerSecret) + "&" + percentEncode(creds.TokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	oauthParams["oauth_signature"] = signature

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// signatureBase assembles METHOD&URL&PARAMS per RFC 5849 section 3.4.1.
func signatureBase(method string, u *url.URL, params map[string][]string) string {
	baseURL := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()

	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.k + "=" + p.v
	}
	paramString := strings.Join(encoded, "&")

	return strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString)
}

// percentEncode implements RFC 3986 encoding with the unreserved set
// required by RFC 5849: ALPHA / DIGIT / "-" / "." / "_" / "~".
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
