package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Placeholder values written into a fresh accounts file. An adapter refuses to
// connect while its credential (or identifier) still equals one of these.
const (
	PlaceholderAPIKey     = "YOUR_API_KEY_HERE"
	PlaceholderOAuthToken = "YOUR_OAUTH_TOKEN_HERE"
	PlaceholderBotToken   = "YOUR_BOT_TOKEN_HERE"
	PlaceholderChannel    = "YOUR_CHANNEL_HERE"
	PlaceholderChannelID  = "UCYOURCHANNELID_HERE"
)

var placeholders = []string{
	PlaceholderAPIKey,
	PlaceholderOAuthToken,
	PlaceholderBotToken,
	PlaceholderChannel,
	PlaceholderChannelID,
}

// IsPlaceholder reports whether v is blank or one of the template placeholders.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, p := range placeholders {
		if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}

// RequireValue returns an ErrConfiguration when v is missing or a placeholder.
// what names the value in the error ("api key", "oauth token", ...).
func RequireValue(what, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is missing", ErrConfiguration, what)
	}
	if IsPlaceholder(v) {
		return fmt.Errorf("%w: %s is still the placeholder value", ErrConfiguration, what)
	}
	return nil
}

// Duration is a time.Duration that encodes as a Go duration string ("10s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	// bare numbers are seconds
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Account is the configuration of one chat account on one platform. Which
// fields matter depends on the platform:
//
//	youtube: Channel = channel id, Credential = API key, LiveChatID optional override
//	twitch:  Channel = channel login, Credential = OAuth token, Username = bot login
//	kick:    Channel = channel slug
//	discord: Channel = channel id, Credential = bot token
//	relay:   Channel = account id, Credential = bearer token, Endpoint = base URL
//
// An Account is immutable for the lifetime of the adapter built from it.
type Account struct {
	Channel      string   `json:"channel"`
	Credential   string   `json:"credential,omitempty"`
	Username     string   `json:"username,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	LiveChatID   string   `json:"live_chat_id,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty"`
}

// Key formats the (platform, slot) identity of an account.
func Key(p Platform, slot int) string {
	return fmt.Sprintf("%s/%d", p, slot)
}

// Snapshot is the full account configuration: platform -> ordered accounts.
// The slot of an account is its index in the slice.
type Snapshot map[Platform][]Account

// Clone returns a deep copy so callers can derive a new snapshot without
// touching one an Aggregator may still be reading.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for p, accts := range s {
		cp := make([]Account, len(accts))
		copy(cp, accts)
		out[p] = cp
	}
	return out
}

// Count returns the number of accounts across all platforms.
func (s Snapshot) Count() int {
	n := 0
	for _, accts := range s {
		n += len(accts)
	}
	return n
}

// Redacted returns a copy with credentials masked to their last 4 characters.
func (s Snapshot) Redacted() Snapshot {
	out := s.Clone()
	for p := range out {
		for i := range out[p] {
			out[p][i].Credential = mask(out[p][i].Credential)
		}
	}
	return out
}

func mask(v string) string {
	if v == "" || IsPlaceholder(v) {
		return v
	}
	r := []rune(v)
	if len(r) <= 4 {
		return "***"
	}
	return "***" + string(r[len(r)-4:])
}

// SnapshotSource produces a validated configuration snapshot on demand.
type SnapshotSource interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Equal reports whether s and o hold the same accounts in the same slots.
// A platform with no accounts equals a missing platform.
func (s Snapshot) Equal(o Snapshot) bool {
	for _, pair := range [2][2]Snapshot{{s, o}, {o, s}} {
		for p, accts := range pair[0] {
			other := pair[1][p]
			if len(accts) != len(other) {
				return false
			}
			for i := range accts {
				if accts[i] != other[i] {
					return false
				}
			}
		}
	}
	return true
}
