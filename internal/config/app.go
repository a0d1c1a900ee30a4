package config

// AppConfig bundles everything the table server reads from the environment.
type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

// LoadApp parses the full configuration. Logging comes first so a broken
// server section still fails with the log settings already known.
func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Log:    logCfg,
	}, nil
}
