package config

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/onnwee/chatter/chat"
)

// Command names.
const (
	CmdSetCredential        = "set-credential"
	CmdSetAccountIdentifier = "set-account-identifier"
	CmdSetChannel           = "set-channel" // alias of set-account-identifier
	CmdReload               = "reload"
)

// setters maps each editing command to the one account field it writes.
var setters = map[string]func(*chat.Account, string){
	CmdSetCredential:        func(a *chat.Account, v string) { a.Credential = v },
	CmdSetAccountIdentifier: func(a *chat.Account, v string) { a.Channel = v },
	CmdSetChannel:           func(a *chat.Account, v string) { a.Channel = v },
}

// Command is a runtime reconfiguration request. Editing commands target the
// account in Slot of Platform. Setting the account identifier on the slot
// equal to the current account count appends a new account; set-credential
// only edits existing ones. No command writes Endpoint, so relay accounts are
// created by editing the accounts file or row.
type Command struct {
	Name     string        `json:"name"`
	Platform chat.Platform `json:"platform"`
	Slot     int           `json:"slot"`
	Value    string        `json:"value"`
}

func (c Command) Validate() error {
	edit := c.Name != CmdReload
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required,
			validation.In(CmdSetCredential, CmdSetAccountIdentifier, CmdSetChannel, CmdReload)),
		validation.Field(&c.Platform, validation.When(edit, validation.Required,
			validation.In(chat.PlatformYouTube, chat.PlatformTwitch, chat.PlatformKick, chat.PlatformDiscord, chat.PlatformRelay))),
		validation.Field(&c.Slot, validation.Min(0)),
		validation.Field(&c.Value, validation.When(edit, validation.Required, validation.Length(1, 512))),
	)
}

// Apply returns a new snapshot with cmd applied. snap is not modified. A
// reload command returns an unchanged copy.
func Apply(snap chat.Snapshot, cmd Command) (chat.Snapshot, error) {
	cmd.Name = strings.ToLower(strings.TrimSpace(cmd.Name))
	cmd.Value = strings.TrimSpace(cmd.Value)
	if p, ok := chat.ParsePlatform(string(cmd.Platform)); ok {
		cmd.Platform = p
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrConfiguration, err)
	}

	out := snap.Clone()
	if cmd.Name == CmdReload {
		return out, nil
	}

	accts := out[cmd.Platform]
	switch {
	case cmd.Slot < len(accts):
	case cmd.Slot == len(accts) && cmd.Name == CmdSetCredential:
		// a new account is named first; a bare credential never validates
		return nil, fmt.Errorf("%w: %s slot %d does not exist, set its account identifier first", chat.ErrConfiguration, cmd.Platform, cmd.Slot)
	case cmd.Slot == len(accts):
		accts = append(accts, chat.Account{})
		out[cmd.Platform] = accts
	default:
		return nil, fmt.Errorf("%w: %s has %d accounts, cannot set slot %d", chat.ErrConfiguration, cmd.Platform, len(accts), cmd.Slot)
	}
	setters[cmd.Name](&accts[cmd.Slot], cmd.Value)
	return out, nil
}

// Execute loads the current snapshot from store, applies cmd and saves the
// result. The caller reloads the aggregator afterwards.
func Execute(ctx context.Context, store Store, cmd Command) (chat.Snapshot, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := Apply(snap, cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Name == CmdReload {
		return next, nil
	}
	if err := store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save accounts: %w", err)
	}
	return next, nil
}
