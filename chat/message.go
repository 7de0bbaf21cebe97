package chat

import "strings"

// Platform identifies an external chat source. The set is closed; adding a
// platform means adding a constant, a tag and a Factory in the Registry.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
	PlatformKick    Platform = "kick"
	PlatformDiscord Platform = "discord"
	PlatformRelay   Platform = "relay"
)

// Platforms lists every supported platform in connect order.
var Platforms = []Platform{PlatformYouTube, PlatformTwitch, PlatformKick, PlatformDiscord, PlatformRelay}

// Tag returns the short label used when rendering a message line.
func (p Platform) Tag() string {
	switch p {
	case PlatformYouTube:
		return "YT"
	case PlatformTwitch:
		return "TW"
	case PlatformKick:
		return "KK"
	case PlatformDiscord:
		return "DC"
	case PlatformRelay:
		return "RL"
	default:
		return strings.ToUpper(string(p))
	}
}

// Valid reports whether p is one of Platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform accepts a platform name in any case.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Message is a normalized chat line. It is a value type and is never mutated
// after an adapter builds it.
type Message struct {
	Author   string   `json:"author"`
	Body     string   `json:"body"`
	Platform Platform `json:"platform"`
}

// String renders the message as "[YT] <author> body".
func (m Message) String() string {
	return "[" + m.Platform.Tag() + "] <" + m.Author + "> " + m.Body
}
