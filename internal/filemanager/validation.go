package filemanager

import (
	"fmt"
	"path"
	"strings"
)

// Rule checks an incoming upload. A non-empty result is a violation.
type Rule interface {
	Check(up *Upload) string
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(up *Upload) string

func (f RuleFunc) Check(up *Upload) string { return f(up) }

// MaxSize rejects uploads larger than n bytes.
func MaxSize(n int64) Rule {
	return RuleFunc(func(up *Upload) string {
		if n > 0 && up.Size > n {
			return fmt.Sprintf("file is %d bytes, limit is %d", up.Size, n)
		}
		return ""
	})
}

// AllowedExtensions accepts only the listed extensions.
func AllowedExtensions(exts ...string) Rule {
	set := extensionSet(exts)
	return RuleFunc(func(up *Upload) string {
		if len(set) == 0 {
			return ""
		}
		ext := extensionOf(up.Name)
		if _, ok := set[ext]; !ok {
			return fmt.Sprintf("extension %q is not allowed", ext)
		}
		return ""
	})
}

// DeniedExtensions rejects the listed extensions.
func DeniedExtensions(exts ...string) Rule {
	set := extensionSet(exts)
	return RuleFunc(func(up *Upload) string {
		ext := extensionOf(up.Name)
		if _, ok := set[ext]; ok {
			return fmt.Sprintf("extension %q is denied", ext)
		}
		return ""
	})
}

// AllowedMimeClasses accepts only files whose extension falls in one of
// the given classes.
func AllowedMimeClasses(classes ...MimeClass) Rule {
	return RuleFunc(func(up *Upload) string {
		if len(classes) == 0 {
			return ""
		}
		class := ClassifyExtension(extensionOf(up.Name))
		for _, c := range classes {
			if c == class {
				return ""
			}
		}
		return fmt.Sprintf("file type %q is not allowed", class)
	})
}

// Validate runs every rule and collects all violations.
func Validate(up *Upload, rules ...Rule) error {
	var violations []string
	for _, r := range rules {
		if r == nil {
			continue
		}
		if v := r.Check(up); v != "" {
			violations = append(violations, v)
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Name: up.Name, Violations: violations}
}

func extensionOf(name string) string {
	_, ext := splitExt(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = struct{}{}
	}
	return set
}

// inGroup reports whether the file name's extension is listed in exts.
func inGroup(name string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}
