package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFileName is the dotenv file read from the project root.
const EnvFileName = ".env"

// LoadEnv loads rootDir/.env into the process environment. Variables that
// are already set keep their value. A missing file is not an error.
func LoadEnv(rootDir string) error {
	path := filepath.Join(rootDir, EnvFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
