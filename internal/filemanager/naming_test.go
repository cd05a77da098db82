package filemanager

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/memory"
)

func TestDefaultNamingKeepsFreeName(t *testing.T) {
	disk := memory.New()
	name, err := DefaultNaming{}.Name(context.Background(), disk, "/", &Upload{Name: "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", name)
}

func TestDefaultNamingAddsRandomSuffix(t *testing.T) {
	disk := memory.New()
	disk.WriteFile("docs/report.pdf", []byte("x"))

	name, err := DefaultNaming{}.Name(context.Background(), disk, "/docs", &Upload{Name: "report.pdf"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^report_[A-Za-z0-9]{7}\.pdf$`), name)
}

func TestDefaultNamingPropagatesBackendError(t *testing.T) {
	name, err := DefaultNaming{}.Name(context.Background(), failingExists{memory.New()}, "/", &Upload{Name: "a.txt"})
	assert.Empty(t, name)
	assert.ErrorIs(t, err, ErrBackendFailure)
}

func TestUUIDNaming(t *testing.T) {
	name, err := UUIDNaming{}.Name(context.Background(), memory.New(), "/", &Upload{Name: "Photo.JPG"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f-]{36}\.jpg$`), name)
}

func TestTimestampNaming(t *testing.T) {
	s := TimestampNaming{now: func() time.Time { return time.Unix(0, 42) }}
	name, err := s.Name(context.Background(), memory.New(), "/", &Upload{Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "42_a.txt", name)
}

func TestNewNamingStrategy(t *testing.T) {
	s, err := NewNamingStrategy("")
	require.NoError(t, err)
	assert.IsType(t, DefaultNaming{}, s)

	s, err = NewNamingStrategy("uuid")
	require.NoError(t, err)
	assert.IsType(t, UUIDNaming{}, s)

	_, err = NewNamingStrategy("nope")
	assert.Error(t, err)
}

func TestRegisterNamingStrategy(t *testing.T) {
	RegisterNamingStrategy("fixed", func() NamingStrategy {
		return NamingStrategyFunc(func(context.Context, storage.Disk, string, *Upload) (string, error) {
			return "fixed.bin", nil
		})
	})

	s, err := NewNamingStrategy("fixed")
	require.NoError(t, err)
	name, err := s.Name(context.Background(), memory.New(), "/", &Upload{Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "fixed.bin", name)
	assert.Contains(t, NamingStrategies(), "fixed")
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		name, stem, ext string
	}{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".env", ".env", ""},
		{"Makefile", "Makefile", ""},
	}
	for _, tt := range tests {
		stem, ext := splitExt(tt.name)
		assert.Equal(t, tt.stem, stem, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

// failingExists fails every existence check.
type failingExists struct{ *memory.MemoryDisk }

func (failingExists) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}
