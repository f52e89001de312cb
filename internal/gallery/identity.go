package gallery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrBadSampleName is returned for files that do not follow <identity>_<index>.<ext>.
var ErrBadSampleName = errors.New("sample name must look like <name>_<index>.<ext>")

// sampleExts are the image formats the gallery can decode.
var sampleExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// IsSampleFile reports whether the file extension is a supported image format.
func IsSampleFile(name string) bool {
	return sampleExts[strings.ToLower(filepath.Ext(name))]
}

// ParseIdentity derives the identity from a sample file name.
// The extension is dropped and the stem is split on its last underscore:
// everything before is the identity, everything after must be a
// non-negative integer index. "mary_ann_3.jpg" is ("mary_ann", 3).
func ParseIdentity(filename string) (string, int, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	i := strings.LastIndex(stem, "_")
	if i <= 0 || i == len(stem)-1 {
		return "", 0, fmt.Errorf("%q: %w", base, ErrBadSampleName)
	}

	suffix := stem[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return "", 0, fmt.Errorf("%q: index %q is not a number: %w", base, suffix, ErrBadSampleName)
		}
	}
	index, err := strconv.Atoi(suffix)
	if err != nil {
		return "", 0, fmt.Errorf("%q: %w", base, err)
	}

	name := strings.TrimSpace(stem[:i])
	if name == "" {
		return "", 0, fmt.Errorf("%q: %w", base, ErrBadSampleName)
	}
	return name, index, nil
}

// ValidateName checks that name can be written as a sample file and parsed back.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	got, _, err := ParseIdentity(SampleFileName(name, 0))
	if err != nil {
		return err
	}
	if got != name {
		return fmt.Errorf("name %q would be read back as %q", name, got)
	}
	return nil
}

// SampleFileName is the inverse of ParseIdentity for JPEG samples.
func SampleFileName(name string, index int) string {
	return fmt.Sprintf("%s_%d.jpg", name, index)
}

// NextIndex returns the first free sample index for name in dir, so a second
// enrollment session never overwrites earlier captures.
func NextIndex(dir, name string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	next := 0
	for _, e := range entries {
		if e.IsDir() || !IsSampleFile(e.Name()) {
			continue
		}
		id, idx, err := ParseIdentity(e.Name())
		if err != nil || id != name {
			continue
		}
		if idx >= next {
			next = idx + 1
		}
	}
	return next, nil
}
