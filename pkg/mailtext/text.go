// Package mailtext cleans inbound bodies and builds outbound MIME messages.
package mailtext

import (
	"html"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

var (
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	blockTagRe  = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/h[1-6])\s*/?>`)
	styleRe     = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	wroteLineRe = regexp.MustCompile(`^On .+wrote:\s*$`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText strips markup while keeping line structure
func HTMLToText(s string) string {
	s = styleRe.ReplaceAllString(s, "")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// StripQuoted keeps only the new content of a reply, cutting at the first
// quoted header block, separator line or quote marker.
func StripQuoted(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "From:") ||
			strings.HasPrefix(trimmed, "Sent:") ||
			strings.HasPrefix(trimmed, "To:") ||
			strings.HasPrefix(trimmed, "Subject:") ||
			strings.Contains(trimmed, "________________________________") ||
			strings.HasPrefix(trimmed, ">") ||
			wroteLineRe.MatchString(trimmed) {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// CleanBody turns a transport body into the text stored in the message log.
// The snippet is used when nothing is left after cleanup.
func CleanBody(body string, isHTML bool, snippet string) string {
	if isHTML {
		body = HTMLToText(body)
	}
	if cleaned := StripQuoted(body); cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(html.UnescapeString(snippet))
}

// ParseAddress splits "Name <addr>" into its parts; the address is lowercased
func ParseAddress(s string) (name, address string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		// fall back to the raw value between angle brackets
		if i, j := strings.Index(s, "<"), strings.LastIndex(s, ">"); i >= 0 && j > i {
			return strings.Trim(strings.TrimSpace(s[:i]), `"`), strings.ToLower(strings.TrimSpace(s[i+1 : j]))
		}
		return "", strings.ToLower(s)
	}
	return addr.Name, strings.ToLower(addr.Address)
}

// ParseAddressList returns the lowercased addresses of a header value
func ParseAddressList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if _, addr := ParseAddress(part); addr != "" {
				out = append(out, addr)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

// ReplySubject prefixes "Re:" once
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	if subject == "" {
		return "Re:"
	}
	return "Re: " + subject
}

// IsNoReply reports automated sender addresses
func IsNoReply(address string) bool {
	local, _, _ := strings.Cut(strings.ToLower(address), "@")
	return strings.Contains(local, "noreply") || strings.Contains(local, "no-reply") || strings.Contains(local, "mailer-daemon")
}

// ThreadRoot picks the id of the first message of a conversation from the
// References and In-Reply-To headers, falling back to the message's own id.
func ThreadRoot(references []string, inReplyTo []string, messageID string) string {
	if len(references) > 0 && references[0] != "" {
		return references[0]
	}
	if len(inReplyTo) > 0 && inReplyTo[0] != "" {
		return inReplyTo[0]
	}
	return messageID
}
