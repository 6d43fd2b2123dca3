package recognition

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// RootPrefix is the blob prefix every class folder lives under.
const RootPrefix = "classes/"

// ErrInvalidKey is returned by ParseKey for keys outside the roster layout.
var ErrInvalidKey = errors.New("not a roster key")

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Identity is a student within a class. Names are unique per class only.
type Identity struct {
	Class string `json:"class"`
	Name  string `json:"name"`
}

// Key returns the composite class|name identifier.
func (id Identity) Key() string {
	return id.Class + "|" + id.Name
}

func (id Identity) String() string { return id.Key() }

// Reference is one enrolled image of a student.
type Reference struct {
	Identity Identity
	Key      string
}

// ClassPrefix returns the blob prefix holding all references of class.
func ClassPrefix(class string) string {
	return RootPrefix + class + "/"
}

// BuildKey returns classes/<class>/<student>/<unix.micros>_<file>.
func BuildKey(class, student, filename string, at time.Time) string {
	ts := fmt.Sprintf("%d.%06d", at.Unix(), at.Nanosecond()/1000)
	return ClassPrefix(class) + student + "/" + ts + "_" + SanitizeFilename(filename)
}

// ParseKey extracts the owning identity from a reference key.
func ParseKey(key string) (Identity, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 4 || parts[0] != strings.TrimSuffix(RootPrefix, "/") || parts[1] == "" || parts[2] == "" {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return Identity{Class: parts[1], Name: parts[2]}, nil
}

// IsImageKey reports whether key names a png/jpg/jpeg object.
func IsImageKey(key string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(key))]
	return ok
}

// ContentType returns the MIME type for an image filename, or "" when unsupported.
func ContentType(filename string) string {
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}

// ValidSegment reports whether s can be used as a class or student path segment.
func ValidSegment(s string) bool {
	if strings.TrimSpace(s) == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\|")
}

// SanitizeFilename keeps letters, digits, dot, dash and underscore; other runs become "_".
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "image.jpg"
	}
	return out
}
