package smtp

// Config is the option set consumed by the core engine.
type Config struct {
	// Name is the server hostname used in banners; default OS hostname.
	Name string `json:"name"`

	// Banner is appended to the ESMTP banner.
	Banner string `json:"banner"`

	// Size is the optional message size cap, announced in EHLO and
	// enforced in MAIL and DATA. Zero means unlimited.
	Size int64 `json:"size"`

	// AuthMethods lists mechanism names; empty disables AUTH
	// advertisement.
	AuthMethods []string `json:"authMethods"`

	DisabledCommands []string `json:"disabledCommands"`

	HideSTARTTLS bool `json:"hideSTARTTLS"`

	UseXClient bool `json:"useXClient"`

	UseProxy bool `json:"useProxy"`

	// MaxClients caps concurrent connections; zero means unlimited.
	MaxClients int `json:"maxClients"`

	// SocketTimeoutMS is the idle timeout in milliseconds, default 60000.
	SocketTimeoutMS int64 `json:"socketTimeout"`

	// Secure starts the connection already TLS-secured from the first
	// byte.
	Secure bool `json:"secure"`
}

// DefaultConfig fills in the engine's zero-value defaults.
func DefaultConfig() Config {
	return Config{
		Name:            "localhost",
		SocketTimeoutMS: 60000,
	}
}
