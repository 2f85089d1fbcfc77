// Package configx holds the file and environment layers shared by the
// server and client configuration loaders. Both follow the same order:
// defaults, then a config file, then environment, then flags.
package configx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/flagx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is read when present and no -env-file flag is given.
const DefaultEnvFile = ".env"

// DecodeFile unmarshals the file at path into v. Files ending in .yaml or
// .yml are YAML; everything else is JSON. Keys absent from the file leave
// the corresponding fields of v untouched.
func DecodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Env reads prefixed variables. Conversion errors are collected and
// reported once by Err.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
	errs   []error
}

func NewEnv(prefix string, lookup func(string) (string, bool)) *Env {
	return &Env{prefix: prefix, lookup: lookup}
}

// LoadEnv builds an Env over the process environment, falling back to the
// dotenv file named by -env-file (or ./.env when it exists). Process
// variables win over the file.
func LoadEnv(args []string, prefix string) (*Env, error) {
	path := flagx.EnvFileFlags(args)
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			path = DefaultEnvFile
		}
	}

	file := map[string]string{}
	if path != "" {
		var err error
		if file, err = godotenv.Read(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("env file %s: %w", path, err)
			}
			return nil, fmt.Errorf("parse env file %s: %w", path, err)
		}
	}

	return NewEnv(prefix, func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := file[k]
		return v, ok
	}), nil
}

func (e *Env) get(name string) (string, bool) {
	v, ok := e.lookup(e.prefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *Env) fail(name string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s: %w", e.prefix, name, err))
}

func (e *Env) String(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *Env) Bool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

func (e *Env) Int(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *Env) Int64(name string, dst *int64) {
	if v, ok := e.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *Env) Duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = d
	}
}

// List splits a comma-separated value, dropping blanks.
func (e *Env) List(name string, dst *[]string) {
	if v, ok := e.get(name); ok {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

// Err returns every conversion failure seen so far.
func (e *Env) Err() error { return errors.Join(e.errs...) }
