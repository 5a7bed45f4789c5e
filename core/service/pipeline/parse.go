package pipeline

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
)

// decodeBody implements §4.L step 3's decode strategy: prefer text/plain,
// fall back to stripped text/html, try UTF-8 then latin-1, and fall back to
// the parse-failure sentinel without ever dropping the record.
func decodeBody(raw *out.RawMessage) (text, html string) {
	if raw.PlainTextB64 != "" {
		if decoded, ok := decodeBase64URLText(raw.PlainTextB64); ok {
			return decoded, ""
		}
	}

	if raw.HTMLB64 != "" {
		if decoded, ok := decodeBase64URLText(raw.HTMLB64); ok {
			return stripHTMLTags(decoded), decoded
		}
	}

	return domain.BodyParseSentinel, ""
}

func decodeBase64URLText(b64 string) (string, bool) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(b64)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(b64)
		if err != nil {
			return "", false
		}
	}

	if utf8.Valid(raw) {
		return string(raw), true
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func stripHTMLTags(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

func labelBooleans(labels []string) (isRead, isStarred, isArchived bool) {
	hasUnread, hasStarred, hasInbox := false, false, false
	for _, l := range labels {
		switch l {
		case "UNREAD":
			hasUnread = true
		case "STARRED":
			hasStarred = true
		case "INBOX":
			hasInbox = true
		}
	}
	return !hasUnread, hasStarred, !hasInbox
}

func parseSender(raw string) domain.Sender {
	sender := domain.Sender{Raw: raw}
	trimmed := strings.TrimSpace(raw)

	if start := strings.IndexByte(trimmed, '<'); start >= 0 {
		if end := strings.IndexByte(trimmed[start:], '>'); end >= 0 {
			sender.Address = strings.ToLower(trimmed[start+1 : start+end])
			sender.DisplayName = strings.Trim(strings.TrimSpace(trimmed[:start]), `"`)
			return sender
		}
	}

	sender.Address = strings.ToLower(trimmed)
	return sender
}
