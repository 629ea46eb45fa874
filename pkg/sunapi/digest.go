package sunapi

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// challenge is a parsed WWW-Authenticate: Digest header.
type challenge struct {
	realm  string
	nonce  string
	opaque string
	qop    string
	nc     int
}

// parseChallenge reads a Digest challenge. Only MD5 is supported.
func parseChallenge(header string) (*challenge, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Digest") {
		return nil, fmt.Errorf("unsupported auth scheme %q", scheme)
	}
	p := parseParams(rest)
	if alg := p["algorithm"]; alg != "" && !strings.EqualFold(alg, "MD5") {
		return nil, fmt.Errorf("unsupported digest algorithm %q", alg)
	}
	c := &challenge{realm: p["realm"], nonce: p["nonce"], opaque: p["opaque"]}
	if c.realm == "" || c.nonce == "" {
		return nil, fmt.Errorf("invalid WWW-Authenticate header: %s", header)
	}
	for _, q := range strings.Split(p["qop"], ",") {
		if strings.TrimSpace(q) == "auth" {
			c.qop = "auth"
		}
	}
	return c, nil
}

// authorize builds the Authorization header for one request and advances
// the nonce count.
func (c *challenge) authorize(user, pass, method, uri, cnonce string) string {
	ha1 := md5hex(user + ":" + c.realm + ":" + pass)
	ha2 := md5hex(method + ":" + uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, user, c.realm, c.nonce, uri)
	if c.qop == "" {
		fmt.Fprintf(&b, `, response="%s"`, md5hex(ha1+":"+c.nonce+":"+ha2))
	} else {
		c.nc++
		nc := fmt.Sprintf("%08x", c.nc)
		response := md5hex(ha1 + ":" + c.nonce + ":" + nc + ":" + cnonce + ":" + c.qop + ":" + ha2)
		fmt.Fprintf(&b, `, cnonce="%s", nc=%s, qop=%s, response="%s"`, cnonce, nc, c.qop, response)
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	b.WriteString(`, algorithm=MD5`)
	return b.String()
}

// parseParams splits comma separated key=value pairs, honoring quotes.
func parseParams(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,\t")
		key, rest, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		key = strings.ToLower(strings.TrimSpace(key))
		rest = strings.TrimLeft(rest, " \t")

		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				val, s = rest[1:], ""
			} else {
				val, s = rest[1:end+1], rest[end+2:]
			}
		} else {
			val, s, _ = strings.Cut(rest, ",")
			val = strings.TrimSpace(val)
		}
		out[key] = val
	}
	return out
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
