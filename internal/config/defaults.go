package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Editor: EditorConfig{
			Host:                  "localhost",
			DialTimeoutSeconds:    5,
			RequestTimeoutSeconds: 30,
			ListenHost:            "127.0.0.1",
			ListenPort:            0,
		},
		Journal: JournalConfig{
			Enabled:       false,
			DBPath:        "~/.lukebridge/journal.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
