// Package filemanager turns user-supplied paths into validated storage
// operations on a named disk.
//
// Every public operation of Manager normalizes its paths, checks presence
// or absence on the disk before mutating anything, and reports failures as
// one of the kind errors (ErrNotFound, ErrAlreadyExists, ...). Directory
// rename and move are implemented as copy, verify, then delete, so a
// failure part way never loses the source tree.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/events"
	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/storage"
)

// ButtonDownloadFile is the feature flag guarding DownloadFile.
const ButtonDownloadFile = "download_file"

// Config is the read-only configuration consulted by Manager.
type Config struct {
	DefaultSort       SortOrder
	DefaultFilter     string
	DefaultVisibility storage.Visibility
	// Buttons maps a feature flag to its state. Missing flags are enabled.
	Buttons map[string]bool
	// Filters maps a filter group name to its extensions.
	Filters map[string][]string
	// Rules apply to every upload in addition to per-call rules.
	Rules          []Rule
	NamingStrategy string
}

// Dispatcher queues background work for an uploaded file.
type Dispatcher interface {
	Dispatch(ctx context.Context, disk, path string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithNaming overrides the strategy selected by Config.NamingStrategy.
func WithNaming(s NamingStrategy) Option {
	return func(m *Manager) { m.naming = s }
}

// WithEvents sets the sink receiving domain events.
func WithEvents(s events.Sink) Option {
	return func(m *Manager) { m.events = s }
}

// WithDispatcher sets the job dispatcher invoked after uploads.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.jobs = d }
}

// Manager coordinates file manager operations across named disks.
// It keeps no state between calls besides its configuration.
type Manager struct {
	disks  *storage.Disks
	cfg    Config
	naming NamingStrategy
	events events.Sink
	jobs   Dispatcher
	now    func() time.Time
}

// New creates a Manager over disks.
func New(disks *storage.Disks, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.DefaultSort == "" {
		cfg.DefaultSort = SortName
	}
	if cfg.DefaultVisibility == "" {
		cfg.DefaultVisibility = storage.VisibilityPublic
	}

	m := &Manager{
		disks:  disks,
		cfg:    cfg,
		events: events.Discard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.naming == nil {
		s, err := NewNamingStrategy(cfg.NamingStrategy)
		if err != nil {
			return nil, err
		}
		m.naming = s
	}
	return m, nil
}

// ButtonEnabled reports whether the feature flag is on.
func (m *Manager) ButtonEnabled(name string) bool {
	enabled, ok := m.cfg.Buttons[name]
	return !ok || enabled
}

// Buttons returns a copy of the configured feature flags.
func (m *Manager) Buttons() map[string]bool {
	out := make(map[string]bool, len(m.cfg.Buttons))
	for k, v := range m.cfg.Buttons {
		out[k] = v
	}
	return out
}

// Breadcrumb is one ancestor of a listed folder.
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is the result of ListFolder.
type Listing struct {
	Disk        string           `json:"disk"`
	Path        string           `json:"path"`
	Sort        SortOrder        `json:"sort"`
	Filter      string           `json:"filter,omitempty"`
	Parent      *FileDescriptor  `json:"parent,omitempty"`
	Breadcrumbs []Breadcrumb     `json:"breadcrumbs"`
	Files       []FileDescriptor `json:"files"`
	Filters     []string         `json:"filters"`
	Buttons     map[string]bool  `json:"buttons"`
}

// ListFolder lists the immediate children of p. A folder that does not
// exist lists the root instead. An unknown filter name is ignored.
func (m *Manager) ListFolder(ctx context.Context, diskName, p string, order, filter string) (_ *Listing, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "list_folder", diskName, p, start, err, false) }()

	disk, diskName, err := m.disk(diskName)
	if err != nil {
		return nil, err
	}
	p, err = Normalize(p)
	if err != nil {
		return nil, err
	}
	if p != Root {
		ok, err := disk.DirectoryExists(ctx, key(p))
		if err != nil {
			return nil, backendErr("list folder", p, err)
		}
		if !ok {
			p = Root
		}
	}

	items, err := m.children(ctx, disk, p)
	if err != nil {
		return nil, err
	}

	if filter == "" {
		filter = m.cfg.DefaultFilter
	}
	exts, known := m.cfg.Filters[filter]
	if !known {
		filter = ""
	}

	l := &Listing{
		Disk:        diskName,
		Path:        p,
		Sort:        ParseSortOrder(order, m.cfg.DefaultSort),
		Filter:      filter,
		Breadcrumbs: breadcrumbs(p),
		Filters:     m.applicableFilters(items),
		Buttons:     m.Buttons(),
	}

	if known {
		kept := items[:0]
		for _, d := range items {
			if !d.IsDirectory && inGroup(d.Name, exts) {
				kept = append(kept, d)
			}
		}
		items = kept
	}
	sortDescriptors(items, l.Sort)
	l.Files = items

	if p != Root {
		parent, err := Describe(ctx, disk, parentOf(p), false)
		if err != nil {
			parent = FileDescriptor{
				Name:        baseOf(parentOf(p)),
				Path:        parentOf(p),
				IsDirectory: true,
				MimeClass:   ClassDirectory,
			}
		}
		l.Parent = &parent
	}
	return l, nil
}

func (m *Manager) children(ctx context.Context, disk storage.Disk, p string) ([]FileDescriptor, error) {
	dirs, err := disk.Directories(ctx, key(p), false)
	if err != nil {
		return nil, backendErr("list folder", p, err)
	}
	files, err := disk.Files(ctx, key(p), false)
	if err != nil {
		return nil, backendErr("list folder", p, err)
	}

	items := make([]FileDescriptor, 0, len(dirs)+len(files))
	for _, k := range append(dirs, files...) {
		entry, err := disk.Stat(ctx, k)
		if errors.Is(err, storage.ErrNotExist) {
			// removed since it was listed
			continue
		}
		if err != nil {
			return nil, backendErr("list folder", fromKey(k), err)
		}
		items = append(items, descriptorFromEntry(ctx, disk, fromKey(k), entry))
	}
	return items, nil
}

func (m *Manager) applicableFilters(items []FileDescriptor) []string {
	out := []string{}
	for group, exts := range m.cfg.Filters {
		for _, d := range items {
			if !d.IsDirectory && inGroup(d.Name, exts) {
				out = append(out, group)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func breadcrumbs(p string) []Breadcrumb {
	crumbs := []Breadcrumb{{Name: "", Path: Root}}
	if p == Root {
		return crumbs
	}
	cur := Root
	for _, seg := range splitSegments(p) {
		cur = joinPath(cur, seg)
		crumbs = append(crumbs, Breadcrumb{Name: seg, Path: cur})
	}
	return crumbs
}

// CreateFolder creates name inside parent.
func (m *Manager) CreateFolder(ctx context.Context, diskName, parent, name string) (_ FileDescriptor, err error) {
	start := time.Now()
	target := parent
	defer func() { m.observe(ctx, "create_folder", diskName, target, start, err, true) }()

	disk, _, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	parent, err = m.existingFolder(ctx, disk, "create folder", parent)
	if err != nil {
		return FileDescriptor{}, err
	}
	name, err = FixDirname(name)
	if err != nil {
		return FileDescriptor{}, err
	}

	target = joinPath(parent, name)
	taken, err := disk.Exists(ctx, key(target))
	if err != nil {
		return FileDescriptor{}, backendErr("create folder", target, err)
	}
	if taken {
		return FileDescriptor{}, opErr("create folder", target, ErrAlreadyExists, nil)
	}
	if err := disk.MakeDirectory(ctx, key(target)); err != nil {
		return FileDescriptor{}, backendErr("create folder", target, err)
	}
	return Describe(ctx, disk, target, false)
}

// DeleteFolder removes p and everything beneath it.
func (m *Manager) DeleteFolder(ctx context.Context, diskName, p string) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "delete_folder", diskName, p, start, err, true) }()

	disk, diskName, err := m.disk(diskName)
	if err != nil {
		return err
	}
	if p, err = Normalize(p); err != nil {
		return err
	}
	if p == Root {
		return opErr("delete folder", p, ErrInvalidPath, fmt.Errorf("cannot delete the root folder"))
	}
	ok, err := disk.DirectoryExists(ctx, key(p))
	if err != nil {
		return backendErr("delete folder", p, err)
	}
	if !ok {
		return opErr("delete folder", p, ErrNotFound, nil)
	}
	if err := disk.DeleteDirectory(ctx, key(p)); err != nil {
		return backendErr("delete folder", p, err)
	}
	m.emit(events.FolderRemoved, diskName, p)
	return nil
}

// UploadOptions tunes a single upload.
type UploadOptions struct {
	// Visibility of the stored file. Empty uses the configured default.
	Visibility storage.Visibility
	// SuppressEvents skips job dispatch and the FileUploaded event.
	SuppressEvents bool
	// Rules are checked in addition to the configured rules.
	Rules []Rule
}

// UploadFile stores up inside folder under a name chosen by the naming
// strategy.
func (m *Manager) UploadFile(ctx context.Context, diskName, folder string, up *Upload, opts UploadOptions) (_ FileDescriptor, err error) {
	start := time.Now()
	target := folder
	defer func() { m.observe(ctx, "upload_file", diskName, target, start, err, true) }()

	disk, diskName, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	folder, err = m.existingFolder(ctx, disk, "upload", folder)
	if err != nil {
		return FileDescriptor{}, err
	}

	d, err := m.store(ctx, disk, folder, up, opts)
	if err != nil {
		return FileDescriptor{}, err
	}
	target = d.Path

	if !opts.SuppressEvents {
		m.dispatch(ctx, diskName, d.Path)
		m.emit(events.FileUploaded, diskName, d.Path)
	}
	return d, nil
}

// store validates, names, writes and flags a single upload.
func (m *Manager) store(ctx context.Context, disk storage.Disk, folder string, up *Upload, opts UploadOptions) (FileDescriptor, error) {
	name, err := FixFilename(up.Name)
	if err != nil {
		return FileDescriptor{}, err
	}
	named := *up
	named.Name = name

	rules := append(append([]Rule{}, m.cfg.Rules...), opts.Rules...)
	if err := Validate(&named, rules...); err != nil {
		return FileDescriptor{}, opErr("upload", joinPath(folder, name), ErrValidation, err)
	}

	stored, err := m.naming.Name(ctx, disk, folder, &named)
	if err != nil {
		return FileDescriptor{}, err
	}
	if stored, err = FixFilename(stored); err != nil {
		return FileDescriptor{}, err
	}

	k, err := disk.PutFileAs(ctx, key(folder), named.Body, named.Size, stored)
	if err != nil {
		return FileDescriptor{}, backendErr("upload", joinPath(folder, stored), err)
	}
	p := fromKey(k)

	vis := opts.Visibility
	if vis == "" {
		vis = m.cfg.DefaultVisibility
	}
	if err := disk.SetVisibility(ctx, k, vis); err != nil {
		if derr := disk.Delete(ctx, k); derr != nil {
			logging.WithContext(ctx).Warn("failed to remove upload after visibility error",
				zap.String("path", p), zap.Error(derr))
		}
		return FileDescriptor{}, backendErr("upload", p, err)
	}

	d, err := Describe(ctx, disk, p, false)
	if err != nil {
		return FileDescriptor{}, err
	}
	metrics.RecordUpload(d.Size)
	return d, nil
}

// FolderFile is one file of a folder upload. RelativePath is the file's
// path inside the uploaded folder, including its name.
type FolderFile struct {
	RelativePath string
	Upload       *Upload
}

// FolderUploadResult reports a folder upload.
type FolderUploadResult struct {
	Folder   FileDescriptor    `json:"folder"`
	Uploaded []FileDescriptor  `json:"uploaded"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// UploadFolder creates name inside parent and uploads files into it,
// recreating their relative directories. A single FolderUploaded event is
// emitted; per-file events are not. Files that fail are reported in the
// result and the call returns ErrPartialFailure.
func (m *Manager) UploadFolder(ctx context.Context, diskName, parent, name string, files []FolderFile, opts UploadOptions) (_ *FolderUploadResult, err error) {
	start := time.Now()
	target := parent
	defer func() { m.observe(ctx, "upload_folder", diskName, target, start, err, true) }()

	folder, err := m.CreateFolder(ctx, diskName, parent, name)
	if err != nil {
		return nil, err
	}
	target = folder.Path
	disk, diskName, err := m.disk(diskName)
	if err != nil {
		return nil, err
	}

	res := &FolderUploadResult{Folder: folder, Uploaded: []FileDescriptor{}}
	fail := func(rel string, err error) {
		if res.Failed == nil {
			res.Failed = make(map[string]string)
		}
		res.Failed[rel] = err.Error()
	}

	for _, f := range files {
		dir, fileName, err := m.ensureSubfolder(ctx, disk, folder.Path, f.RelativePath)
		if err != nil {
			fail(f.RelativePath, err)
			continue
		}
		up := *f.Upload
		up.Name = fileName
		d, err := m.store(ctx, disk, dir, &up, opts)
		if err != nil {
			fail(f.RelativePath, err)
			continue
		}
		res.Uploaded = append(res.Uploaded, d)
		if !opts.SuppressEvents {
			m.dispatch(ctx, diskName, d.Path)
		}
	}

	if !opts.SuppressEvents && len(res.Uploaded) > 0 {
		m.emit(events.FolderUploaded, diskName, folder.Path)
	}
	if len(res.Failed) > 0 {
		return res, opErr("upload folder", folder.Path, ErrPartialFailure,
			fmt.Errorf("%d of %d files failed", len(res.Failed), len(files)))
	}
	return res, nil
}

// ensureSubfolder creates the directories of rel beneath root. It returns
// the folder the file belongs in and the file's name.
func (m *Manager) ensureSubfolder(ctx context.Context, disk storage.Disk, root, rel string) (string, string, error) {
	p, err := Normalize(rel)
	if err != nil {
		return "", "", err
	}
	if p == Root {
		return "", "", opErr("upload folder", rel, ErrInvalidPath, nil)
	}
	dir := root
	for _, seg := range splitSegments(parentOf(p)) {
		name, err := FixDirname(seg)
		if err != nil {
			return "", "", err
		}
		dir = joinPath(dir, name)
	}
	if dir != root {
		if err := disk.MakeDirectory(ctx, key(dir)); err != nil {
			return "", "", backendErr("upload folder", dir, err)
		}
	}
	return dir, baseOf(p), nil
}

// DownloadFile opens p for reading. The caller closes the reader.
func (m *Manager) DownloadFile(ctx context.Context, diskName, p string) (_ io.ReadCloser, _ FileDescriptor, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "download_file", diskName, p, start, err, false) }()

	if !m.ButtonEnabled(ButtonDownloadFile) {
		return nil, FileDescriptor{}, opErr("download", p, ErrFeatureDisabled, nil)
	}
	disk, _, err := m.disk(diskName)
	if err != nil {
		return nil, FileDescriptor{}, err
	}
	if p, err = m.existingFile(ctx, disk, "download", p); err != nil {
		return nil, FileDescriptor{}, err
	}

	d, err := Describe(ctx, disk, p, false)
	if err != nil {
		return nil, FileDescriptor{}, err
	}
	rc, err := disk.Download(ctx, key(p))
	if err != nil {
		return nil, FileDescriptor{}, backendErr("download", p, err)
	}
	metrics.RecordDownload(d.Size)
	return rc, d, nil
}

// RemoveFile deletes the file p.
func (m *Manager) RemoveFile(ctx context.Context, diskName, p string) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "remove_file", diskName, p, start, err, true) }()

	disk, diskName, err := m.disk(diskName)
	if err != nil {
		return err
	}
	if p, err = m.existingFile(ctx, disk, "remove", p); err != nil {
		return err
	}
	if err := disk.Delete(ctx, key(p)); err != nil {
		return backendErr("remove", p, err)
	}
	m.emit(events.FileRemoved, diskName, p)
	return nil
}

// DuplicateFile copies the file p next to itself as "name(N).ext".
func (m *Manager) DuplicateFile(ctx context.Context, diskName, p string) (_ FileDescriptor, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "duplicate_file", diskName, p, start, err, true) }()

	disk, _, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	if p, err = Normalize(p); err != nil {
		return FileDescriptor{}, err
	}
	dst, err := DuplicateFile(ctx, disk, p)
	if err != nil {
		return FileDescriptor{}, err
	}
	return Describe(ctx, disk, dst, false)
}

// RenameFile gives the file or directory p the basename newName.
// Directories go through RenameSubtree.
func (m *Manager) RenameFile(ctx context.Context, diskName, p, newName string) (_ FileDescriptor, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "rename", diskName, p, start, err, true) }()

	disk, _, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	if p, err = Normalize(p); err != nil {
		return FileDescriptor{}, err
	}
	if p == Root {
		return FileDescriptor{}, opErr("rename", p, ErrInvalidPath, nil)
	}
	entry, err := disk.Stat(ctx, key(p))
	if err != nil {
		return FileDescriptor{}, backendErr("rename", p, err)
	}

	if entry.IsDir {
		res, err := RenameSubtree(ctx, disk, p, newName)
		if err != nil {
			return FileDescriptor{}, err
		}
		return Describe(ctx, disk, res.Destination, false)
	}

	name, err := FixFilename(newName)
	if err != nil {
		return FileDescriptor{}, err
	}
	return m.moveFile(ctx, disk, "rename", p, joinPath(parentOf(p), name))
}

// MoveFile moves the file or directory from to the full path to.
func (m *Manager) MoveFile(ctx context.Context, diskName, from, to string) (_ FileDescriptor, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "move", diskName, from, start, err, true) }()

	disk, _, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	if from, err = Normalize(from); err != nil {
		return FileDescriptor{}, err
	}
	if to, err = Normalize(to); err != nil {
		return FileDescriptor{}, err
	}
	if from == Root || to == Root {
		return FileDescriptor{}, opErr("move", from, ErrInvalidPath, nil)
	}
	if _, err := m.existingFolder(ctx, disk, "move", parentOf(to)); err != nil {
		return FileDescriptor{}, err
	}

	entry, err := disk.Stat(ctx, key(from))
	if err != nil {
		return FileDescriptor{}, backendErr("move", from, err)
	}
	fix := FixFilename
	if entry.IsDir {
		fix = FixDirname
	}
	name, err := fix(baseOf(to))
	if err != nil {
		return FileDescriptor{}, err
	}
	to = joinPath(parentOf(to), name)

	if entry.IsDir {
		res, err := MoveSubtree(ctx, disk, from, to)
		if err != nil {
			return FileDescriptor{}, err
		}
		return Describe(ctx, disk, res.Destination, false)
	}
	return m.moveFile(ctx, disk, "move", from, to)
}

func (m *Manager) moveFile(ctx context.Context, disk storage.Disk, op, from, to string) (FileDescriptor, error) {
	if from == to {
		return Describe(ctx, disk, to, false)
	}
	taken, err := disk.Exists(ctx, key(to))
	if err != nil {
		return FileDescriptor{}, backendErr(op, to, err)
	}
	if taken {
		return FileDescriptor{}, opErr(op, to, ErrAlreadyExists, nil)
	}
	if err := disk.Move(ctx, key(from), key(to)); err != nil {
		return FileDescriptor{}, backendErr(op, from, err)
	}
	return Describe(ctx, disk, to, false)
}

// Describe returns the descriptor of p, reading extras on request.
func (m *Manager) Describe(ctx context.Context, diskName, p string, withExtras bool) (FileDescriptor, error) {
	disk, _, err := m.disk(diskName)
	if err != nil {
		return FileDescriptor{}, err
	}
	if p, err = Normalize(p); err != nil {
		return FileDescriptor{}, err
	}
	return Describe(ctx, disk, p, withExtras)
}

func (m *Manager) disk(name string) (storage.Disk, string, error) {
	disk, resolved, err := m.disks.Resolve(name)
	if err != nil {
		return nil, resolved, opErr("resolve disk", name, ErrNotFound, err)
	}
	return disk, resolved, nil
}

// existingFolder normalizes p and checks it is the root or an existing
// directory.
func (m *Manager) existingFolder(ctx context.Context, disk storage.Disk, op, p string) (string, error) {
	p, err := Normalize(p)
	if err != nil {
		return "", err
	}
	if p == Root {
		return p, nil
	}
	ok, err := disk.DirectoryExists(ctx, key(p))
	if err != nil {
		return "", backendErr(op, p, err)
	}
	if !ok {
		return "", opErr(op, p, ErrNotFound, nil)
	}
	return p, nil
}

func (m *Manager) existingFile(ctx context.Context, disk storage.Disk, op, p string) (string, error) {
	p, err := Normalize(p)
	if err != nil {
		return "", err
	}
	ok, err := disk.FileExists(ctx, key(p))
	if err != nil {
		return "", backendErr(op, p, err)
	}
	if !ok {
		return "", opErr(op, p, ErrNotFound, nil)
	}
	return p, nil
}

func (m *Manager) emit(eventType, disk, p string) {
	m.events.Emit(events.Event{
		Type:      eventType,
		Disk:      disk,
		Path:      p,
		Timestamp: m.now().Unix(),
	})
}

func (m *Manager) dispatch(ctx context.Context, disk, p string) {
	if m.jobs != nil {
		m.jobs.Dispatch(ctx, disk, p)
	}
}

// observe records the outcome of an operation. Mutations log on success;
// every failure logs.
func (m *Manager) observe(ctx context.Context, op, disk, p string, start time.Time, err error, mutation bool) {
	d := time.Since(start)
	metrics.RecordOperation(op, resultLabel(err), d)

	log := logging.WithContext(ctx)
	if err != nil {
		log.Warn("file manager operation failed",
			zap.String("op", op),
			zap.String("disk", disk),
			zap.String("path", p),
			zap.Duration("duration", d),
			zap.Error(err))
		return
	}
	if mutation {
		log.Info("file manager operation",
			zap.String("op", op),
			zap.String("disk", disk),
			zap.String("path", p),
			zap.Duration("duration", d))
	}
}

func resultLabel(err error) string {
	switch KindOf(err) {
	case nil:
		return "success"
	case ErrNotFound:
		return "not_found"
	case ErrAlreadyExists:
		return "already_exists"
	case ErrValidation:
		return "validation"
	case ErrFeatureDisabled:
		return "feature_disabled"
	case ErrPartialFailure:
		return "partial_failure"
	case ErrInvalidPath:
		return "invalid_path"
	default:
		return "backend_failure"
	}
}
