package safebox

import (
	"fmt"
	"strings"
)

// Mode selects the durability policy of a [Manipulator].
type Mode int

const (
	// ModeInvalid is the zero value. It is rejected by New.
	ModeInvalid Mode = iota

	// ModePlain stores each logical file as one physical file, unverified.
	ModePlain

	// ModeHashVerified stores name.d plus a hash companion name.m and
	// verifies the pair on every load.
	ModeHashVerified

	// ModeHashVerifiedWithBackup reserves backup companions name.b and
	// name_b.m. Every operation in this mode returns ErrUnimplemented.
	ModeHashVerifiedWithBackup
)

// ParseMode resolves the textual form of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "normal":
		return ModePlain, nil
	case "hash", "md5", "hash-verified":
		return ModeHashVerified, nil
	case "hash+backup", "md5+backup", "hash-verified-backup":
		return ModeHashVerifiedWithBackup, nil
	}
	return ModeInvalid, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the three real modes.
func (m Mode) Valid() bool {
	return m >= ModePlain && m <= ModeHashVerifiedWithBackup
}

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeHashVerified:
		return "hash"
	case ModeHashVerifiedWithBackup:
		return "hash+backup"
	}
	return fmt.Sprintf("invalid(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so a Mode can be set
// directly from YAML or JSON configuration.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
