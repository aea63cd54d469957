package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"
)

var dotenvOnce sync.Once

// LoadDotenvOnce imports .env files before config files expand ${VAR}
// references. It honours three variables:
//
//	NO_DOTENV=1        skip loading entirely
//	ENV_FILE=path      load only this file
//	DOTENV_OVERLOAD=1  let .env values replace variables already set
//
// Otherwise every .env between the working directory and the project root is
// loaded, nearest first, so a local file wins over the root one.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	files := dotenvFiles()
	if len(files) == 0 {
		return
	}
	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}
	for _, f := range files {
		if err := load(f); err != nil {
			logx.Errorf("confkit: load %s: %v", f, err)
		}
	}
}

func dotenvFiles() []string {
	if f := os.Getenv("ENV_FILE"); f != "" {
		return []string{f}
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	var files []string
	findUp(wd, func(dir string) bool {
		if f := filepath.Join(dir, ".env"); exists(f) {
			files = append(files, f)
		}
		return isProjectRoot(dir)
	})
	return files
}
