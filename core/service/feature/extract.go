// Package feature derives domain/keyword/text features from a parsed
// message (§4.F). Every function here is pure: no I/O, no provider calls.
package feature

import "strings"

// TextFeatures lowercases and concatenates subject and body, matching the
// trained classifier's expected text_features column (§4.G).
func TextFeatures(subject, body string) string {
	return strings.ToLower(subject + " " + body)
}

// SenderDomain extracts the domain part of a sender address. Grounded on
// ml_utils.py's extract_domain: try the bracketed "<addr>" form first, then
// an @-split of the raw string, falling back to a sanitized lowercase copy
// of the whole input when neither yields a domain.
func SenderDomain(sender string) string {
	addr := sender
	if start := strings.IndexByte(sender, '<'); start >= 0 {
		if end := strings.IndexByte(sender[start:], '>'); end >= 0 {
			addr = sender[start+1 : start+end]
		}
	}

	addr = strings.TrimSpace(addr)
	if at := strings.LastIndexByte(addr, '@'); at >= 0 && at+1 < len(addr) {
		return strings.ToLower(addr[at+1:])
	}

	return strings.ToLower(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, addr))
}

// SenderKey canonicalizes a raw sender header into the key the Reasoning
// Engine (§4.H step 1) and Feedback Intake (§4.Q) both use: the lower-cased
// address inside "<...>" when present, else the lower-cased local part
// (text before the first space/bracket). A single implementation, shared,
// so the two never drift.
func SenderKey(rawSender string) string {
	if start := strings.IndexByte(rawSender, '<'); start >= 0 {
		if end := strings.IndexByte(rawSender[start:], '>'); end >= 0 {
			return strings.ToLower(strings.TrimSpace(rawSender[start+1 : start+end]))
		}
	}

	trimmed := strings.TrimSpace(rawSender)
	if sp := strings.IndexByte(trimmed, ' '); sp >= 0 {
		trimmed = trimmed[:sp]
	}
	return strings.ToLower(trimmed)
}
