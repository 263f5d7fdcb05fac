package config

const (
	DefaultBaseURL            = "http://localhost:8000"
	DefaultPlaceholderMessage = "New conversation created"
	DefaultMaxSizeBytes       = 5 * 1024 * 1024
)

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: 120,
			RateBurst:      5,
		},
		General: GeneralConfig{
			LogLevel: "warn",
			DataDir:  "~/.ragchat",
		},
		Chat: ChatConfig{
			SummaryLength:      20,
			PlaceholderMessage: DefaultPlaceholderMessage,
			EmptyLabel:         "Empty conversation",
			RAG:                "auto",
		},
		Attachments: AttachmentsConfig{
			MaxSizeBytes: DefaultMaxSizeBytes,
		},
	}
}
