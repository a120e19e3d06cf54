package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixInlineBullets(t *testing.T) {
	in := "Here is what we run: - hackathons - ML reading group\n- already a bullet\nNo list here"
	want := "Here is what we run\n\n- hackathons\n- ML reading group\n- already a bullet\nNo list here"
	assert.Equal(t, want, FixInlineBullets(in))
}

func TestRender(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("Hi **Jane**,\n\nEvents: - hackathons - workshops")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<div style="font-family: Arial`))
	assert.True(t, strings.HasSuffix(out, "</div>"))
	assert.Contains(t, out, "<strong>Jane</strong>")
	assert.Contains(t, out, "<li>hackathons</li>")
	assert.Contains(t, out, "<li>workshops</li>")
}
