package filemanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		upload     Upload
		rules      []Rule
		violations int
	}{
		{"no rules", Upload{Name: "a.exe", Size: 10}, nil, 0},
		{"within size", Upload{Name: "a.txt", Size: 10}, []Rule{MaxSize(10)}, 0},
		{"too large", Upload{Name: "a.txt", Size: 11}, []Rule{MaxSize(10)}, 1},
		{"zero limit disables", Upload{Name: "a.txt", Size: 1 << 30}, []Rule{MaxSize(0)}, 0},
		{"allowed", Upload{Name: "photo.JPG"}, []Rule{AllowedExtensions("jpg", ".png")}, 0},
		{"not allowed", Upload{Name: "doc.pdf"}, []Rule{AllowedExtensions("jpg", "png")}, 1},
		{"empty allow list", Upload{Name: "doc.pdf"}, []Rule{AllowedExtensions()}, 0},
		{"denied", Upload{Name: "setup.EXE"}, []Rule{DeniedExtensions(" exe ")}, 1},
		{"mime class", Upload{Name: "clip.mp4"}, []Rule{AllowedMimeClasses(ClassImage, ClassVideo)}, 0},
		{"wrong mime class", Upload{Name: "song.mp3"}, []Rule{AllowedMimeClasses(ClassImage)}, 1},
		{"nil rule skipped", Upload{Name: "a.txt"}, []Rule{nil}, 0},
		{
			"all violations collected",
			Upload{Name: "setup.exe", Size: 100},
			[]Rule{MaxSize(10), DeniedExtensions("exe"), AllowedExtensions("txt")},
			3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := tt.upload
			err := Validate(&up, tt.rules...)
			if tt.violations == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, up.Name, verr.Name)
			assert.Len(t, verr.Violations, tt.violations)
		})
	}
}

func TestRuleFunc(t *testing.T) {
	noSpaces := RuleFunc(func(up *Upload) string {
		if up.Name == "has space.txt" {
			return "spaces are not allowed"
		}
		return ""
	})

	assert.NoError(t, Validate(&Upload{Name: "ok.txt"}, noSpaces))
	assert.ErrorIs(t, Validate(&Upload{Name: "has space.txt"}, noSpaces), ErrValidation)
}
