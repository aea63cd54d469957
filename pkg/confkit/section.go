// Package confkit holds the pieces shared by every config loader: split-file
// sections, go-zero file loading, .env bootstrapping and project-relative paths.
package confkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeromicro/go-zero/core/conf"
)

// Section is a block of the main config that lives in its own file. File is
// resolved against the main config's directory; Value is filled by Hydrate or
// set directly in code.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File with loader. Sections without a file are left untouched,
// so an inline Value survives.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	path := ResolvePath(base, s.File)
	v, err := loader(path)
	if err != nil {
		return err
	}
	s.File = path
	s.Value = v
	return nil
}

// ResolvePath expands env references in file and anchors relative results at base.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) || base == "" {
		return file
	}
	return filepath.Join(base, file)
}

// LoadFile reads a go-zero style config file (yaml, json or toml) into T,
// expanding ${VAR} references when useEnv is set.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	var opts []conf.Option
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	out := new(T)
	if err := conf.Load(path, out, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return out, nil
}
