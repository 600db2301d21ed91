package httpapi

import (
	"errors"
	"net/url"
	"regexp"
)

var forbiddenURLChars = regexp.MustCompile(`[\s<>{}|\\^` + "`" + `]`)

// validateSubmissionURL enforces the submission URL constraints: http(s)
// only, no loopback host, no characters that would let a crafted URL smuggle
// header/control content through downstream HTTP calls.
func validateSubmissionURL(raw string) error {
	if raw == "" || forbiddenURLChars.MatchString(raw) {
		return errors.New("url must not contain whitespace or angle/brace characters")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("url could not be parsed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return errors.New("url must not target localhost")
	}
	return nil
}

var allowedUploadMimes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain":        true,
	"text/html":         true,
	"text/markdown":     true,
	"application/rtf":   true,
}
