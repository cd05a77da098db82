package filemanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sortFixture() []FileDescriptor {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []FileDescriptor{
		{Name: "zeta.txt", Extension: "txt", Size: 5, MimeClass: ClassDocument, LastModified: t0.Add(time.Hour)},
		{Name: "photos", IsDirectory: true, MimeClass: ClassDirectory},
		{Name: "Alpha.png", Extension: "png", Size: 50, MimeClass: ClassImage, LastModified: t0.Add(3 * time.Hour)},
		{Name: "beta.pdf", Extension: "pdf", Size: 5, MimeClass: ClassDocument, LastModified: t0},
		{Name: "archive", IsDirectory: true, MimeClass: ClassDirectory},
	}
}

func TestSortDescriptors(t *testing.T) {
	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortName, []string{"archive", "photos", "Alpha.png", "beta.pdf", "zeta.txt"}},
		{SortSize, []string{"archive", "photos", "beta.pdf", "zeta.txt", "Alpha.png"}},
		{SortDate, []string{"archive", "photos", "beta.pdf", "zeta.txt", "Alpha.png"}},
		{SortMime, []string{"archive", "photos", "beta.pdf", "zeta.txt", "Alpha.png"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			items := sortFixture()
			sortDescriptors(items, tt.order)
			assert.Equal(t, tt.want, names(items))
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, SortSize, ParseSortOrder("size", SortName))
	assert.Equal(t, SortDate, ParseSortOrder(" DATE ", SortName))
	assert.Equal(t, SortName, ParseSortOrder("", SortName))
	assert.Equal(t, SortMime, ParseSortOrder("color", SortMime))
}
