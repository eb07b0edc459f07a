package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameCleanRe = regexp.MustCompile(`[^a-z0-9]+`)
)

type sqlFile struct {
	version int64
	name    string
	path    string
}

// listFiles returns the .sql files in dir ordered by version. Names that do
// not match the goose layout are reported, not skipped.
func listFiles(dir string) ([]sqlFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var (
		files []sqlFile
		errs  error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name()))
			continue
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		files = append(files, sqlFile{version: version, name: m[2], path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, errs
}

// ValidateDir checks file names, duplicate versions and the goose section
// markers of every migration in dir. All problems are reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	files, errs := listFiles(dir)
	if files == nil && errs == nil {
		return nil
	}

	for i, f := range files {
		if i > 0 && files[i-1].version == f.version {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q",
				f.version, filepath.Base(files[i-1].path), filepath.Base(f.path)))
		}
		errs = multierr.Append(errs, checkSections(f))
	}
	return errs
}

func checkSections(f sqlFile) error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", f.path, err)
	}
	txt := string(raw)
	base := filepath.Base(f.path)

	var errs error
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(txt, marker) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", base, marker))
		}
	}
	if begin, end := strings.Count(txt, "-- +goose StatementBegin"), strings.Count(txt, "-- +goose StatementEnd"); begin != end {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", base, begin, end))
	}
	return errs
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<version>_<name>.sql. The version is the current UTC time, bumped
// past the newest existing file so ordering survives clock skew.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.Trim(nameCleanRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	if files, _ := listFiles(dir); len(files) > 0 {
		if last := files[len(files)-1].version; last >= version {
			version = last + 1
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration already exists: %s", path)
	}

	body := fmt.Sprintf("-- +goose Up\n-- +goose StatementBegin\n-- %[1]s\n-- +goose StatementEnd\n\n"+
		"-- +goose Down\n-- +goose StatementBegin\n-- rollback %[1]s\n-- +goose StatementEnd\n", safe)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
