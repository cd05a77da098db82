package filemanager

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// Upload is a single incoming file.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// NamingStrategy picks the stored name for an upload. The returned name must
// not collide with an existing entry in folder at call time.
type NamingStrategy interface {
	Name(ctx context.Context, disk storage.Disk, folder string, up *Upload) (string, error)
}

// NamingStrategyFunc adapts a function to NamingStrategy.
type NamingStrategyFunc func(ctx context.Context, disk storage.Disk, folder string, up *Upload) (string, error)

func (f NamingStrategyFunc) Name(ctx context.Context, disk storage.Disk, folder string, up *Upload) (string, error) {
	return f(ctx, disk, folder, up)
}

const (
	suffixLength   = 7
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxNameTries   = 32
)

// DefaultNaming keeps the original name and, while it is taken, retries with
// "{stem}_{random7}{ext}".
type DefaultNaming struct{}

func (DefaultNaming) Name(ctx context.Context, disk storage.Disk, folder string, up *Upload) (string, error) {
	name := up.Name
	stem, ext := splitExt(name)

	for i := 0; i < maxNameTries; i++ {
		exists, err := disk.Exists(ctx, key(joinPath(folder, name)))
		if err != nil {
			return "", backendErr("name", joinPath(folder, name), err)
		}
		if !exists {
			return name, nil
		}
		suffix, err := randomSuffix(suffixLength)
		if err != nil {
			return "", opErr("name", folder, ErrBackendFailure, err)
		}
		name = stem + "_" + suffix + ext
	}
	return "", opErr("name", joinPath(folder, up.Name), ErrAlreadyExists,
		fmt.Errorf("no free name after %d attempts", maxNameTries))
}

// UUIDNaming stores every upload under a random UUID, keeping the extension.
type UUIDNaming struct{}

func (UUIDNaming) Name(_ context.Context, _ storage.Disk, _ string, up *Upload) (string, error) {
	_, ext := splitExt(up.Name)
	return uuid.NewString() + strings.ToLower(ext), nil
}

// TimestampNaming prefixes the original name with the current unix time in
// nanoseconds.
type TimestampNaming struct {
	now func() time.Time
}

func (s TimestampNaming) Name(ctx context.Context, disk storage.Disk, folder string, up *Upload) (string, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	for i := 0; i < maxNameTries; i++ {
		name := fmt.Sprintf("%d_%s", now().UnixNano(), up.Name)
		exists, err := disk.Exists(ctx, key(joinPath(folder, name)))
		if err != nil {
			return "", backendErr("name", joinPath(folder, name), err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", opErr("name", joinPath(folder, up.Name), ErrAlreadyExists, nil)
}

var (
	namingMu         sync.RWMutex
	namingStrategies = map[string]func() NamingStrategy{
		"default":   func() NamingStrategy { return DefaultNaming{} },
		"uuid":      func() NamingStrategy { return UUIDNaming{} },
		"timestamp": func() NamingStrategy { return TimestampNaming{} },
	}
)

// RegisterNamingStrategy makes a custom strategy selectable by name.
func RegisterNamingStrategy(name string, factory func() NamingStrategy) {
	namingMu.Lock()
	defer namingMu.Unlock()
	namingStrategies[name] = factory
}

// NewNamingStrategy returns the strategy registered under name. An empty
// name selects the default strategy.
func NewNamingStrategy(name string) (NamingStrategy, error) {
	if name == "" {
		name = "default"
	}
	namingMu.RLock()
	factory, ok := namingStrategies[name]
	namingMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown naming strategy %q (have %s)", name, strings.Join(NamingStrategies(), ", "))
	}
	return factory(), nil
}

// NamingStrategies lists the registered strategy names.
func NamingStrategies() []string {
	namingMu.RLock()
	defer namingMu.RUnlock()
	names := make([]string, 0, len(namingStrategies))
	for n := range namingStrategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// splitExt splits "archive.tar.gz" into "archive.tar" and ".gz".
// Dotfiles such as ".env" have no extension.
func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf), nil
}
