package progress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Settings keys.
const (
	KeyNickname  = "nickname"
	KeyEmail     = "email"
	KeyStartDate = "startDate"
	KeyLicence   = "licence"
	KeyPrefix    = "prefix"
	KeyCreated   = "created"
)

// settingsOrder is the key order used when writing the settings dataset.
var settingsOrder = []string{KeyNickname, KeyEmail, KeyStartDate, KeyLicence, KeyPrefix, KeyCreated}

// Profile is the user's identity and pacing data held in Settings.
type Profile struct {
	Nickname  string `json:"nickname" yaml:"nickname"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
	StartDate string `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	Licence   string `json:"licence,omitempty" yaml:"licence,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Validate checks the fields a profile must carry.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Nickname) == "" {
		return errors.New("nickname is required")
	}
	if strings.ContainsAny(p.Nickname, "\t\n\r") {
		return errors.New("nickname must not contain tabs or newlines")
	}
	if p.StartDate != "" {
		if _, err := ParseStartDate(p.StartDate); err != nil {
			return err
		}
	}
	if p.Licence != "" {
		if _, err := LicenceTier(p.Licence); err != nil {
			return err
		}
	}
	return nil
}

// Settings returns the settings dataset. An absent dataset is empty.
func (e *Engine) Settings() (map[string]string, error) {
	text, err := cache.Dataset(e.cache, store.Settings)
	if errors.Is(err, store.ErrAbsent) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return tabular.DecodeSettings(text)
}

// Profile reads the profile from settings.
func (e *Engine) Profile() (Profile, error) {
	s, err := e.Settings()
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Nickname:  s[KeyNickname],
		Email:     s[KeyEmail],
		StartDate: s[KeyStartDate],
		Licence:   s[KeyLicence],
		Prefix:    s[KeyPrefix],
	}, nil
}

// SaveProfile writes p into settings, generating a licence and prefix when
// they are missing. Unrelated settings keys are kept. The prefix is also
// stored under its own cache key for export naming.
func (e *Engine) SaveProfile(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	now := e.opts.Now()
	if p.Licence == "" {
		p.Licence = GenerateLicence(p.Nickname)
	}
	if p.Prefix == "" {
		p.Prefix = GeneratePrefix(p.Nickname, now)
	}

	s, err := e.Settings()
	if err != nil {
		return Profile{}, err
	}
	s[KeyNickname] = p.Nickname
	s[KeyLicence] = p.Licence
	s[KeyPrefix] = p.Prefix
	setOrDelete(s, KeyEmail, p.Email)
	setOrDelete(s, KeyStartDate, p.StartDate)
	if s[KeyCreated] == "" {
		s[KeyCreated] = now.UTC().Format("2006-01-02T15:04:05Z")
	}

	if err := e.cache.Set(store.Settings.String(), tabular.EncodeSettings(s, settingsOrder)); err != nil {
		return Profile{}, fmt.Errorf("failed to write settings: %w", err)
	}
	if err := e.cache.Set(store.PrefixKey, p.Prefix); err != nil {
		return Profile{}, fmt.Errorf("failed to write prefix: %w", err)
	}
	e.logger.Printf("Saved profile for %s (licence %s)", p.Nickname, p.Licence)
	return p, nil
}

func setOrDelete(m map[string]string, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}
