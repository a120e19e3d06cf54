// Package markdown renders drafted replies into the HTML sent to users.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const wrapperOpen = `<div style="font-family: Arial, sans-serif; font-size: 15px; color: #222; line-height: 1.5;">`

var (
	inlineBulletRe = regexp.MustCompile(`\w.*-\s+\w`)
	bulletSplitRe  = regexp.MustCompile(`\s*-\s+`)
)

type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render converts markdown to an HTML email body
func (r *Renderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(wrapperOpen)
	if err := r.md.Convert([]byte(FixInlineBullets(text)), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	buf.WriteString("</div>")
	return buf.String(), nil
}

// FixInlineBullets splits lines like "Events: - hackathons - workshops" into a
// proper markdown list so they render as bullets.
func FixInlineBullets(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || !strings.Contains(line, "- ") || !inlineBulletRe.MatchString(line) {
			out = append(out, line)
			continue
		}

		parts := bulletSplitRe.Split(line, -1)
		intro := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[0]), ":"))
		if intro != "" {
			out = append(out, intro, "")
		}
		for _, p := range parts[1:] {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, "- "+p)
			}
		}
	}
	return strings.Join(out, "\n")
}
