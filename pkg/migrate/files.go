package migrate

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"
)

// DefaultDir is where new migration files are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9_]+`)
)

// FS returns the migrations compiled into the binary.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func versionString(now time.Time) string {
	return now.UTC().Format("20060102150405")
}

func slug(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Trim(slugRe.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	return s, nil
}
