package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/onnwee/chatter/chat"
)

// Store is a SnapshotSource that can also persist a snapshot.
type Store interface {
	chat.SnapshotSource
	Save(ctx context.Context, snap chat.Snapshot) error
}

// Document is the on-disk layout of the accounts file.
type Document struct {
	Accounts chat.Snapshot `json:"accounts"`
}

// Template returns the snapshot written on first run: one placeholder
// account per platform that needs no extra endpoint.
func Template() chat.Snapshot {
	return chat.Snapshot{
		chat.PlatformYouTube: {{Channel: chat.PlaceholderChannelID, Credential: chat.PlaceholderAPIKey}},
		chat.PlatformTwitch:  {{Channel: chat.PlaceholderChannel, Credential: chat.PlaceholderOAuthToken}},
		chat.PlatformKick:    {{Channel: chat.PlaceholderChannel}},
		chat.PlatformDiscord: {{Channel: chat.PlaceholderChannel, Credential: chat.PlaceholderBotToken}},
	}
}

// ValidateSnapshot checks the structure of snap. Placeholder values are
// allowed here; the adapters reject them at connect time.
func ValidateSnapshot(snap chat.Snapshot) error {
	platforms := make([]string, 0, len(snap))
	for p := range snap {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)

	for _, name := range platforms {
		p := chat.Platform(name)
		if !p.Valid() {
			return fmt.Errorf("%w: unknown platform %q", chat.ErrConfiguration, name)
		}
		for slot, acct := range snap[p] {
			if err := validateAccount(p, acct); err != nil {
				return fmt.Errorf("%w: %s: %v", chat.ErrConfiguration, chat.Key(p, slot), err)
			}
		}
	}
	return nil
}

func validateAccount(p chat.Platform, acct chat.Account) error {
	return validation.ValidateStruct(&acct,
		validation.Field(&acct.Channel, validation.Required),
		validation.Field(&acct.Endpoint,
			validation.Required.When(p == chat.PlatformRelay),
			is.URL),
		validation.Field(&acct.PollInterval,
			validation.When(acct.PollInterval != 0, validation.Min(chat.Duration(time.Second)))),
	)
}

// Decode parses and validates an accounts document.
func Decode(b []byte) (chat.Snapshot, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse accounts: %v", chat.ErrConfiguration, err)
	}
	if doc.Accounts == nil {
		doc.Accounts = chat.Snapshot{}
	}
	if err := ValidateSnapshot(doc.Accounts); err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// Encode renders snap as an indented accounts document.
func Encode(snap chat.Snapshot) ([]byte, error) {
	b, err := json.MarshalIndent(Document{Accounts: snap}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// FileStore keeps the snapshot in a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Load reads the accounts file. A missing file is created from Template and
// the template is returned.
func (f *FileStore) Load(ctx context.Context) (chat.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		tmpl := Template()
		if err := f.writeLocked(tmpl); err != nil {
			return nil, fmt.Errorf("write accounts template: %w", err)
		}
		return tmpl, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return Decode(b)
}

// Save validates snap and replaces the file atomically.
func (f *FileStore) Save(ctx context.Context, snap chat.Snapshot) error {
	if err := ValidateSnapshot(snap); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(snap)
}

func (f *FileStore) writeLocked(snap chat.Snapshot) error {
	b, err := Encode(snap)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".accounts-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
