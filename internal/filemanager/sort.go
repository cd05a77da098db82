package filemanager

import (
	"cmp"
	"slices"
	"strings"
)

// SortOrder selects the listing comparator.
type SortOrder string

const (
	SortName SortOrder = "name"
	SortSize SortOrder = "size"
	SortDate SortOrder = "date"
	SortMime SortOrder = "mime"
)

// ParseSortOrder returns the order named by s, or fallback when s is not a
// known order.
func ParseSortOrder(s string, fallback SortOrder) SortOrder {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortName, SortSize, SortDate, SortMime:
		return o
	}
	return fallback
}

// sortDescriptors orders directories before files, then by the selected
// key, then by name. Equal entries keep their relative order.
func sortDescriptors(items []FileDescriptor, order SortOrder) {
	slices.SortStableFunc(items, func(a, b FileDescriptor) int {
		if a.IsDirectory != b.IsDirectory {
			if a.IsDirectory {
				return -1
			}
			return 1
		}
		var c int
		switch order {
		case SortSize:
			c = cmp.Compare(a.Size, b.Size)
		case SortDate:
			c = a.LastModified.Compare(b.LastModified)
		case SortMime:
			c = cmp.Or(cmp.Compare(a.MimeClass, b.MimeClass), cmp.Compare(a.Extension, b.Extension))
		}
		return cmp.Or(c, cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)))
	})
}
