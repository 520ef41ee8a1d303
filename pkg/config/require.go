package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrMissingEnv = errors.New("missing required environment variables")

// Required reads mandatory variables and remembers every one that was empty,
// so startup can report all of them at once.
type Required struct {
	missing []string
}

func (r *Required) Get(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *Required) Missing() []string {
	return r.missing
}

func (r *Required) Err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(r.missing, ", "))
}
