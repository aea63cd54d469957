package confkit

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const maxWalkDepth = 8

var errNoProjectRoot = errors.New("confkit: project root not found")

// ProjectRoot finds the nearest directory holding go.mod, searching upwards
// from the working directory and then from this package's source location.
func ProjectRoot() (string, error) {
	for _, start := range searchStarts() {
		if root, ok := findUp(start, isProjectRoot); ok {
			return root, nil
		}
	}
	return "", errNoProjectRoot
}

// ProjectPath joins rel to the project root. Outside a source checkout, such
// as a deployed binary, rel is returned relative to the working directory.
func ProjectPath(rel string) string {
	root, err := ProjectRoot()
	if err != nil {
		return rel
	}
	return filepath.Join(root, rel)
}

func searchStarts() []string {
	var starts []string
	if wd, err := os.Getwd(); err == nil {
		starts = append(starts, wd)
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		starts = append(starts, filepath.Dir(file))
	}
	return starts
}

// findUp walks from start towards the filesystem root and returns the first
// directory accepted by match.
func findUp(start string, match func(dir string) bool) (string, bool) {
	dir := start
	for i := 0; i < maxWalkDepth; i++ {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func isProjectRoot(dir string) bool {
	return exists(filepath.Join(dir, "go.mod"))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
