package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("/addnode http://node.example.org:8080")
	require.True(t, ok)
	assert.Equal(t, "addnode", cmd)
	assert.Equal(t, []string{"http://node.example.org:8080"}, args)

	cmd, _, ok = p.ParseCommand("/checkin@EH_ArBot")
	require.True(t, ok)
	assert.Equal(t, "checkin", cmd)

	_, _, ok = p.ParseCommand("просто текст")
	assert.False(t, ok)

	_, _, ok = p.ParseCommand("/")
	assert.False(t, ok)
}

func TestGalleryLinkRe(t *testing.T) {
	tests := []struct {
		text  string
		gid   string
		token string
	}{
		{"https://e-hentai.org/g/3301/0123456789/", "3301", "0123456789"},
		{"гляньте https://exhentai.org/g/2097527/f9d4296ae3 пожалуйста", "2097527", "f9d4296ae3"},
	}

	for _, tt := range tests {
		m := galleryLinkRe.FindStringSubmatch(tt.text)
		require.NotNil(t, m, tt.text)
		assert.Equal(t, tt.gid, m[1])
		assert.Equal(t, tt.token, m[2])
	}

	assert.Nil(t, galleryLinkRe.FindStringSubmatch("https://example.org/g/123/abc"))
}
