// Package security masks credentials before they reach logs.
package security

import (
	"net/url"
	"strings"
)

// MaskSecret keeps the first prefixLen characters of secret followed by "...".
// Secrets no longer than prefixLen become "***"; empty stays empty.
//
//	MaskSecret("sk-ant-abc123", 4) -> "sk-a..."
//	MaskSecret("short", 8)         -> "***"
func MaskSecret(secret string, prefixLen int) string {
	if secret == "" {
		return ""
	}
	if prefixLen < 0 || len(secret) <= prefixLen {
		return "***"
	}
	return secret[:prefixLen] + "..."
}

// MaskAPIKey shows the first 4 characters of a provider API key.
func MaskAPIKey(key string) string {
	return MaskSecret(key, 4)
}

// MaskCredentials hides an inline credential blob (service account JSON)
// entirely, reporting only whether one is set.
func MaskCredentials(blob string) string {
	if strings.TrimSpace(blob) == "" {
		return ""
	}
	return "***REDACTED***"
}

// MaskDatabaseURL replaces the password of a PostgreSQL URL with "***".
// Keyword/value DSNs are masked on their password= field.
//
//	MaskDatabaseURL("postgres://admin:secret@db:5432/agents") -> "postgres://admin:***@db:5432/agents"
func MaskDatabaseURL(dbURL string) string {
	if strings.Contains(dbURL, "://") {
		u, err := url.Parse(dbURL)
		if err != nil || u.User == nil {
			return dbURL
		}
		if _, hasPassword := u.User.Password(); !hasPassword {
			return dbURL
		}
		// url.UserPassword would escape the mask, so splice it in by hand.
		scheme := u.Scheme + "://"
		rest := strings.TrimPrefix(dbURL, scheme)
		at := strings.LastIndex(rest[:strings.IndexAny(rest+"/", "/")], "@")
		if at == -1 {
			return dbURL
		}
		return scheme + u.User.Username() + ":***" + rest[at:]
	}

	fields := strings.Fields(dbURL)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
