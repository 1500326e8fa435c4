package config

// Config is the contents of config.toml: the two knobs this daemon needs
// to locate its local root and its remote root.
type Config struct {
	LocalDir string      `toml:"local_dir"`
	Drive    DriveConfig `toml:"drive"`
}

// DriveConfig names the remote folder to synchronize against, by name
// (resolved to an id at startup — see engine.Supervisor) rather than id,
// since ids are opaque to the operator editing this file by hand.
type DriveConfig struct {
	Dir string `toml:"dir"`
}

// Creds is the contents of creds.toml: the OAuth2 client identity the
// operator registered with the hosted drive service.
type Creds struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Session is the contents of session.toml: the bearer credentials obtained
// from a prior authorize_with_code or refresh_token call.
type Session struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}
