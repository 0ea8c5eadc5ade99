package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// SkillflowDir is the name of the skillflow configuration directory.
	SkillflowDir = ".skillflow"
	// EnvFileName is the name of the environment variables file.
	EnvFileName = ".env"
)

// LoadDotEnv loads environment variables from .skillflow/.env if it exists.
// godotenv.Load does not override variables already present in the
// environment, so system env vars keep priority over .env values.
// Returns nil if the file doesn't exist.
func LoadDotEnv(baseDir string) error {
	envPath := filepath.Join(baseDir, SkillflowDir, EnvFileName)

	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(envPath)
}

// LoadDotEnvFromCwd loads .env from the current working directory's
// .skillflow/.env.
func LoadDotEnvFromCwd() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	return LoadDotEnv(cwd)
}
