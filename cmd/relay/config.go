package main

import (
	"fmt"
	"game-relay/domain"
	"time"
)

type Config struct {
	Host                   string        `env:"HOST,default=0.0.0.0"`
	Port                   int           `env:"SERVER_PORT,default=8212"`
	InviteMode             string        `env:"INVITE_MODE,default=invite"`
	SecretKeys             []string      `env:"SECRET_KEYS,required=true"`
	BadgerFilepath         string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel               string        `env:"LOG_LEVEL,default=INFO"`
	ConnectionBufferSize   int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	HandshakeTimeout       time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	CensoredWordsFile      string        `env:"CENSORED_WORDS_FILE"`
	CharReplacement        string        `env:"CHARACTER_REPLACEMENT,default=*"`
	RateLimitRPS           float64       `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst         int           `env:"RATE_LIMIT_BURST,default=10"`
	KickRequiresMembership bool          `env:"KICK_REQUIRES_MEMBERSHIP,default=false"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}

func (c Config) Mode() (domain.InviteMode, error) {
	return domain.ParseInviteMode(c.InviteMode)
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
