package objectstore

import (
	"net/url"
	"strings"
)

// ParseBucketKey extracts bucket and key from a stored object URL.
// Supported formats:
//   - "bucket,key"
//   - https://<bucket>.s3.<region>.amazonaws.com/<key>
//   - https://s3.amazonaws.com/<bucket>/<key> (path-style)
func ParseBucketKey(raw string) (string, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}

	if b, k, found := strings.Cut(raw, ","); found && !strings.Contains(k, ",") {
		b, k = strings.TrimSpace(b), strings.TrimSpace(k)
		if b != "" && k != "" {
			return b, k, true
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}

	host := u.Host
	if strings.Contains(host, ".s3.") && strings.HasSuffix(host, "amazonaws.com") {
		b, _, _ := strings.Cut(host, ".")
		k := strings.TrimPrefix(u.Path, "/")
		if b != "" && k != "" {
			return b, k, true
		}
	}

	if host == "s3.amazonaws.com" || (strings.HasPrefix(host, "s3.") && strings.HasSuffix(host, "amazonaws.com")) {
		b, k, found := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if found && b != "" && k != "" {
			return b, k, true
		}
	}

	return "", "", false
}
