package api

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string // CORS and websocket origins; empty allows all
	MaxUploadBytes int64    // raw import body limit; 0 selects 100 MiB
}

const defaultMaxUpload = 100 << 20
