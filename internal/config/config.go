package config

import (
	"runtime"
	"time"

	"github.com/8gudbits/WhisperChat/internal/utils"
)

const (
	AppName = "WhisperChat"
	Version = "2.0.0"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	Host string
	Port string

	RoomCodeLength   int
	RoomCleanupDelay time.Duration

	MaxImageBytes     int
	MaxImageDimension int
	ImageQuality      int
	ImageWorkers      int
}

// Load reads the configuration from the environment, falling back to the
// defaults the original deployment shipped with.
func Load() Config {
	cfg := Config{
		Host:              utils.GetEnv("HOST", "0.0.0.0"),
		Port:              utils.GetEnv("PORT", "8080"),
		RoomCodeLength:    utils.GetEnvInt("ROOM_CODE_LENGTH", 7),
		RoomCleanupDelay:  utils.GetEnvSeconds("ROOM_CLEANUP_DELAY_SECONDS", 120*time.Second),
		MaxImageBytes:     utils.GetEnvInt("MAX_IMAGE_SIZE_MB", 24) * 1024 * 1024,
		MaxImageDimension: utils.GetEnvInt("MAX_IMAGE_DIMENSION", 1200),
		ImageQuality:      utils.GetEnvInt("IMAGE_QUALITY", 85),
		ImageWorkers:      utils.GetEnvInt("IMAGE_WORKERS", runtime.NumCPU()),
	}
	return cfg
}
