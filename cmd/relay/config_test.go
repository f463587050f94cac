package main

import (
	"game-relay/domain"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{
		"SECRET_KEYS":     "first|second",
		"BADGER_FILEPATH": "/tmp/relay",
	}, &config)

	req.NoError(err)
	req.Equal([]string{"first", "second"}, config.SecretKeys)
	req.Equal("0.0.0.0:8212", config.Address())
	req.Equal(64, config.ConnectionBufferSize)
	req.Equal(10*time.Second, config.HandshakeTimeout)
	req.Equal(5.0, config.RateLimitRPS)
	req.Equal(10, config.RateLimitBurst)
	req.False(config.KickRequiresMembership)
	req.Empty(config.CensoredWordsFile)

	char, err := config.CharacterRune()
	req.NoError(err)
	req.Equal('*', char)

	mode, err := config.Mode()
	req.NoError(err)
	req.Equal(domain.InviteRequired, mode)
}

func TestConfig_Required(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{"BADGER_FILEPATH": "/tmp/relay"}, &config)

	var missing *env.ErrMissingRequiredValue
	req.ErrorAs(err, &missing)
	req.Equal("SECRET_KEYS", missing.Value)
}

func TestConfig_Overrides(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{
		"SECRET_KEYS":              "only",
		"BADGER_FILEPATH":          "/tmp/relay",
		"SERVER_PORT":              "9000",
		"INVITE_MODE":              "direct",
		"CHARACTER_REPLACEMENT":    "#",
		"KICK_REQUIRES_MEMBERSHIP": "true",
		"HANDSHAKE_TIMEOUT":        "250ms",
	}, &config)
	req.NoError(err)

	mode, err := config.Mode()
	req.NoError(err)
	req.Equal(domain.DirectAdd, mode)
	char, err := config.CharacterRune()
	req.NoError(err)
	req.Equal('#', char)
	req.True(config.KickRequiresMembership)
	req.Equal(250*time.Millisecond, config.HandshakeTimeout)
	req.Equal("0.0.0.0:9000", config.Address())
}

func TestConfig_Invalid_Values(t *testing.T) {
	req := require.New(t)

	_, err := Config{CharReplacement: "**"}.CharacterRune()
	req.Error(err)

	_, err = Config{InviteMode: "open"}.Mode()
	req.Error(err)
}
