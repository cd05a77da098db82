package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
)

// ErrUnknownDisk is returned when a disk identifier is not registered.
var ErrUnknownDisk = errors.New("unknown disk")

// Disks resolves which storage backend serves a disk identifier.
type Disks struct {
	mu          sync.RWMutex
	disks       map[string]Disk
	defaultName string
}

// NewDisks creates an empty registry whose default disk is defaultName.
func NewDisks(defaultName string) *Disks {
	return &Disks{
		disks:       make(map[string]Disk),
		defaultName: defaultName,
	}
}

// Register adds or replaces the disk served under name.
// A replaced disk is closed.
func (d *Disks) Register(name string, disk Disk) {
	d.mu.Lock()
	existing := d.disks[name]
	d.disks[name] = disk
	d.mu.Unlock()

	if existing != nil && existing != disk {
		existing.Close()
	}

	logging.Info("disk registered",
		zap.String("disk", name),
		zap.String("type", disk.Type()),
		zap.Bool("default", name == d.defaultName))
}

// Resolve returns the disk registered under name together with its
// canonical identifier. An empty name selects the default disk.
func (d *Disks) Resolve(name string) (Disk, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if name == "" {
		name = d.defaultName
	}
	disk, ok := d.disks[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrUnknownDisk, name)
	}
	return disk, name, nil
}

// Default returns the name of the default disk.
func (d *Disks) Default() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaultName
}

// Names returns all registered disk identifiers in sorted order.
func (d *Disks) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.disks))
	for name := range d.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all backend connections.
func (d *Disks) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, disk := range d.disks {
		if err := disk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
