package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Credentials are the secrets for one device, resolved from the environment.
type Credentials struct {
	Username  string
	Password  string
	Community string
	APIKey    string

	// SNMPv3
	AuthProtocol   string
	AuthPassphrase string
	PrivProtocol   string
	PrivPassphrase string
}

// ResolveCredentials reads the variables <REF>_USERNAME, <REF>_PASSWORD,
// <REF>_COMMUNITY, <REF>_API_KEY and the SNMPv3 <REF>_AUTH_*/<REF>_PRIV_* set.
// An empty ref yields empty credentials.
func ResolveCredentials(ref string) Credentials {
	if ref == "" {
		return Credentials{}
	}
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(ref))
	v.AutomaticEnv()

	return Credentials{
		Username:       v.GetString("username"),
		Password:       v.GetString("password"),
		Community:      v.GetString("community"),
		APIKey:         v.GetString("api_key"),
		AuthProtocol:   v.GetString("auth_protocol"),
		AuthPassphrase: v.GetString("auth_passphrase"),
		PrivProtocol:   v.GetString("priv_protocol"),
		PrivPassphrase: v.GetString("priv_passphrase"),
	}
}

// Empty reports whether no credential material was found.
func (c Credentials) Empty() bool {
	return c == Credentials{}
}
