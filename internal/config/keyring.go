package config

import (
	"github.com/zalando/go-keyring"
)

const (
	keyringService  = "digmbot"
	keyringTokenKey = "discord_token"
)

// TokenFromKeyring returns the Discord token stored in the OS keyring, or ""
// when the keyring is unavailable or holds no token.
func TokenFromKeyring() string {
	val, err := keyring.Get(keyringService, keyringTokenKey)
	if err != nil {
		return ""
	}
	return val
}

// StoreToken saves the Discord token to the OS keyring.
func StoreToken(token string) error {
	return keyring.Set(keyringService, keyringTokenKey, token)
}
