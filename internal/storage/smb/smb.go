// Package smb provides an SMB/CIFS network share storage disk.
// The SMB share must be pre-mounted on the OS (via mount.cifs or fstab).
// This disk delegates to the local filesystem disk at the mount path.
package smb

import (
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/filemanager/internal/storage/local"
)

// Config holds SMB disk settings.
// Server/Username/Domain are kept for admin reference only.
// Actual I/O uses the MountPath where the share is pre-mounted.
type Config struct {
	Server    string `json:"server"`     // SMB server path (e.g., //server/share)
	Username  string `json:"username"`   // SMB credentials
	Domain    string `json:"domain"`     // SMB domain
	MountPath string `json:"mount_path"` // Local mount point where share is mounted
}

// SMBDisk wraps a LocalDisk at the SMB mount point.
type SMBDisk struct {
	*local.LocalDisk
	config Config
}

// New creates a new SMB disk from the given config.
func New(cfg Config) (*SMBDisk, error) {
	if cfg.MountPath == "" {
		return nil, fmt.Errorf("mount_path is required")
	}

	ld, err := local.New(local.Config{RootPath: cfg.MountPath})
	if err != nil {
		return nil, fmt.Errorf("smb disk at %s: %w", cfg.MountPath, err)
	}

	return &SMBDisk{
		LocalDisk: ld,
		config:    cfg,
	}, nil
}

// NewFromJSON creates an SMBDisk from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*SMBDisk, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return New(cfg)
}

// Server returns the configured share address.
func (d *SMBDisk) Server() string { return d.config.Server }

// Type returns "smb".
func (d *SMBDisk) Type() string { return "smb" }
