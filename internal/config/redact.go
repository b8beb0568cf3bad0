package config

import (
	"net/url"
	"strings"
)

// RedactURL masks the password of a connection URL with "***" for logging.
// URLs that do not parse or carry no password come back unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, ok := u.User.Password(); !ok {
		return raw
	}

	// Work on the raw text so the rest of the URL keeps its original escaping.
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}

	userinfo, hostAndPath, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}

	user, _, _ := strings.Cut(userinfo, ":")

	return scheme + "://" + user + ":***@" + hostAndPath
}

// RedactSecret hides a shared secret for display, keeping only whether it is set.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}

	return "***"
}
