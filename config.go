package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// envConfig is read once at startup. Every field without a default must be set.
// S3_CF_DISTRO must be present too but may be empty.
type envConfig struct {
	DBPath           string        `env:"DB_PATH" env-required:"true"`
	JWTSecret        string        `env:"JWT_SECRET" env-required:"true"`
	Platform         string        `env:"PLATFORM" env-required:"true"`
	FilepathRoot     string        `env:"FILEPATH_ROOT" env-required:"true"`
	AssetsRoot       string        `env:"ASSETS_ROOT" env-required:"true"`
	TempRoot         string        `env:"TEMP_ROOT" env-required:"true"`
	S3Bucket         string        `env:"S3_BUCKET" env-required:"true"`
	S3Region         string        `env:"S3_REGION" env-required:"true"`
	S3CfDistribution string        `env:"S3_CF_DISTRO" env-description:"CDN host fronting the bucket; must be present, empty serves straight from S3"`
	Port             string        `env:"PORT" env-required:"true"`
	ProcessTimeout   time.Duration `env:"PROCESS_TIMEOUT" env-default:"2m"`
	FFprobePath      string        `env:"FFPROBE_PATH" env-default:"ffprobe"`
	FFmpegPath       string        `env:"FFMPEG_PATH" env-default:"ffmpeg"`
}

// loadConfig reads .env when one exists, then the process environment.
func loadConfig() (envConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return envConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg envConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return envConfig{}, fmt.Errorf("read environment: %w", err)
	}
	if _, ok := os.LookupEnv("S3_CF_DISTRO"); !ok {
		return envConfig{}, errors.New("read environment: S3_CF_DISTRO must be set, use an empty value to serve from S3 directly")
	}
	return cfg, nil
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
