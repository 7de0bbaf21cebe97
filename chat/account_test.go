package chat

import (
	"encoding/json"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEqual(t *testing.T) {
	a := Snapshot{PlatformKick: {{Channel: "x"}}, PlatformTwitch: {}}
	b := Snapshot{PlatformKick: {{Channel: "x"}}}
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))

	c := b.Clone()
	c[PlatformKick][0].Credential = "tok"
	assert.False(t, b.Equal(c))
	assert.Empty(t, b[PlatformKick][0].Credential, "clone must not share slices")

	d := Snapshot{PlatformKick: {{Channel: "x"}, {Channel: "y"}}}
	assert.False(t, b.Equal(d))
	assert.Equal(t, 2, d.Count())
}

func TestSnapshotRedacted(t *testing.T) {
	s := Snapshot{
		PlatformYouTube: {{Channel: "UC1", Credential: PlaceholderAPIKey}},
		PlatformTwitch:  {{Channel: "c", Credential: "oauth:abcdef1234"}, {Channel: "d", Credential: "ab"}},
	}
	r := s.Redacted()
	assert.Equal(t, PlaceholderAPIKey, r[PlatformYouTube][0].Credential)
	assert.Equal(t, "***1234", r[PlatformTwitch][0].Credential)
	assert.Equal(t, "***", r[PlatformTwitch][1].Credential)
	assert.Equal(t, "oauth:abcdef1234", s[PlatformTwitch][0].Credential)

	// masking counts runes, never splitting a multi-byte character
	m := Snapshot{PlatformRelay: {{Channel: "r", Credential: "clé-pässwörd"}, {Channel: "s", Credential: "ünïç"}}}.Redacted()
	assert.Equal(t, "***wörd", m[PlatformRelay][0].Credential)
	assert.True(t, utf8.ValidString(m[PlatformRelay][0].Credential))
	assert.Equal(t, "***", m[PlatformRelay][1].Credential)
}

func TestDurationJSON(t *testing.T) {
	var a Account
	require.NoError(t, json.Unmarshal([]byte(`{"channel":"c","poll_interval":"1m30s"}`), &a))
	assert.Equal(t, Duration(90*time.Second), a.PollInterval)

	require.NoError(t, json.Unmarshal([]byte(`{"channel":"c","poll_interval":2.5}`), &a))
	assert.Equal(t, Duration(2500*time.Millisecond), a.PollInterval)

	assert.Error(t, json.Unmarshal([]byte(`{"poll_interval":"soon"}`), &a))

	b, err := json.Marshal(Account{Channel: "c", PollInterval: Duration(5 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"c","poll_interval":"5s"}`, string(b))
}

func TestKeyAndTags(t *testing.T) {
	assert.Equal(t, "twitch/2", Key(PlatformTwitch, 2))
	assert.Equal(t, "[YT] <a> b", Message{Author: "a", Body: "b", Platform: PlatformYouTube}.String())
	p, ok := ParsePlatform(" Kick ")
	assert.True(t, ok)
	assert.Equal(t, PlatformKick, p)
	_, ok = ParsePlatform("myspace")
	assert.False(t, ok)
}
