// Package factory instantiates storage disks from their type and JSON config.
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/local"
	"github.com/fruitsalade/filemanager/internal/storage/memory"
	s3disk "github.com/fruitsalade/filemanager/internal/storage/s3"
	"github.com/fruitsalade/filemanager/internal/storage/smb"
)

// NewDiskFromConfig creates a Disk from a backend type string and JSON config.
func NewDiskFromConfig(ctx context.Context, diskType string, config json.RawMessage) (storage.Disk, error) {
	switch diskType {
	case "s3":
		// The S3 disk records its own per-request metrics.
		return s3disk.NewFromJSON(ctx, config)
	case "local":
		d, err := local.NewFromJSON(config)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(d), nil
	case "smb":
		d, err := smb.NewFromJSON(config)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(d), nil
	case "memory":
		return storage.Instrument(memory.New()), nil
	default:
		return nil, fmt.Errorf("unknown disk type: %s", diskType)
	}
}

// Load instantiates every configured disk and registers it.
// Configs maps disk name to its type and raw config.
func Load(ctx context.Context, disks *storage.Disks, configs map[string]Definition) error {
	for name, def := range configs {
		disk, err := NewDiskFromConfig(ctx, def.Type, def.Config)
		if err != nil {
			return fmt.Errorf("disk %s: %w", name, err)
		}
		disks.Register(name, disk)
	}
	if _, _, err := disks.Resolve(""); err != nil {
		return fmt.Errorf("default disk: %w", err)
	}
	return nil
}

// Definition pairs a disk type with its backend config.
type Definition struct {
	Type   string
	Config json.RawMessage
}
