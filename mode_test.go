package safebox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"plain":       ModePlain,
		"Normal":      ModePlain,
		"hash":        ModeHashVerified,
		" md5 ":       ModeHashVerified,
		"hash+backup": ModeHashVerifiedWithBackup,
		"md5+backup":  ModeHashVerifiedWithBackup,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("mirror")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMode_Valid(t *testing.T) {
	assert.False(t, ModeInvalid.Valid())
	assert.True(t, ModePlain.Valid())
	assert.True(t, ModeHashVerifiedWithBackup.Valid())
	assert.False(t, Mode(4).Valid())
	assert.Equal(t, "invalid(4)", Mode(4).String())
}

func TestMode_JSON(t *testing.T) {
	data, err := json.Marshal(struct{ Mode Mode }{ModeHashVerified})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Mode":"hash"}`, string(data))

	var v struct{ Mode Mode }
	require.NoError(t, json.Unmarshal([]byte(`{"Mode":"plain"}`), &v))
	assert.Equal(t, ModePlain, v.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"Mode":"bogus"}`), &v))
	_, err = json.Marshal(struct{ Mode Mode }{ModeInvalid})
	assert.Error(t, err)
}
