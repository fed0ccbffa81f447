// Package backup snapshots and restores an upkeep installation directory.
//
// Backups live under <install>/backups, one directory per snapshot, named
// <binary>-<version>-backup-<YYYYMMDD-HHMMSS> with an optional -N suffix when
// two snapshots land in the same second.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/upkeep/internal/logging"
)

const (
	// DirName is the backups directory under the installation root.
	DirName = "backups"

	// UnknownVersion is recorded when the current version cannot be determined.
	UnknownVersion = "unknown"

	timestampLayout = "20060102-150405"
	partialSuffix   = ".partial"
	nameSeparator   = "-backup-"
)

var (
	// ErrNoBackup indicates no backup matches the request.
	ErrNoBackup = errors.New("no backup found")

	// ErrAmbiguousBackup indicates several backups match equally well.
	ErrAmbiguousBackup = errors.New("ambiguous backup")
)

// Backup describes one backup directory.
type Backup struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	Version   string    `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Sequence  int       `json:"-" yaml:"-"`
	Size      int64     `json:"size" yaml:"size"`
}

// Manager handles backup operations for one installation directory.
type Manager struct {
	installDir string
	binaryName string
	backupDir  string
	exclude    map[string]struct{}
	logger     *log.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrDiscard(l) }
}

// WithExclude adds top-level entries of the installation directory that are
// never backed up nor touched by Restore.
func WithExclude(names ...string) Option {
	return func(m *Manager) {
		for _, n := range names {
			if n != "" {
				m.exclude[n] = struct{}{}
			}
		}
	}
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a backup manager for installDir. The backups directory
// is always excluded from snapshots.
func NewManager(installDir, binaryName string, opts ...Option) *Manager {
	m := &Manager{
		installDir: installDir,
		binaryName: binaryName,
		backupDir:  filepath.Join(installDir, DirName),
		exclude:    map[string]struct{}{DirName: {}},
		logger:     logging.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackupDir returns the backup directory path.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Create snapshots the installation directory. The copy is written to a
// .partial directory, synced, and renamed into place, so a backup is either
// complete or absent.
func (m *Manager) Create(ctx context.Context, currentVersion string) (*Backup, error) {
	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	version := NormalizeVersion(currentVersion)
	if version == "" {
		version = UnknownVersion
	}
	now := m.now()

	name, seq, err := m.uniqueName(version, now)
	if err != nil {
		return nil, err
	}

	final := filepath.Join(m.backupDir, name)
	partial := final + partialSuffix

	if err := copyTree(ctx, m.installDir, partial, m.excluded); err != nil {
		os.RemoveAll(partial)
		return nil, fmt.Errorf("failed to copy installation: %w", err)
	}
	if err := os.Rename(partial, final); err != nil {
		os.RemoveAll(partial)
		return nil, fmt.Errorf("failed to finalize backup: %w", err)
	}
	syncDir(m.backupDir)

	size, _ := dirSize(final)
	m.logger.Info("Created backup", "path", final, "version", version)

	return &Backup{
		Name:      name,
		Path:      final,
		Version:   version,
		CreatedAt: now.Truncate(time.Second),
		Sequence:  seq,
		Size:      size,
	}, nil
}

func (m *Manager) uniqueName(version string, now time.Time) (string, int, error) {
	base := fmt.Sprintf("%s-%s%s%s", m.binaryName, sanitize(version), nameSeparator, now.Format(timestampLayout))
	for seq := 0; seq < 1000; seq++ {
		name := base
		if seq > 0 {
			name = fmt.Sprintf("%s-%d", base, seq)
		}
		path := filepath.Join(m.backupDir, name)
		if exists(path) || exists(path+partialSuffix) {
			continue
		}
		return name, seq, nil
	}
	return "", 0, fmt.Errorf("too many backups for %s", base)
}

// Restore mirrors the backup at backupPath over the installation directory:
// every backed-up entry is rewritten and entries absent from the backup are
// removed. Excluded entries are left alone. Restoring the same backup twice
// yields the same tree.
//
// Files written after the snapshot are removed too, including the
// <binary>.old copy an install keeps of the replaced binary.
func (m *Manager) Restore(backupPath string) error {
	info, err := os.Stat(backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoBackup, backupPath)
		}
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup %s is not a directory", backupPath)
	}

	if err := mirrorTree(backupPath, m.installDir, m.excluded); err != nil {
		return fmt.Errorf("failed to restore %s: %w", filepath.Base(backupPath), err)
	}

	m.logger.Info("Restored backup", "path", backupPath)
	return nil
}

// FindForVersion returns the newest backup for version. The leading "v" is
// ignored when comparing. Two backups sharing the newest timestamp are
// ambiguous and yield ErrAmbiguousBackup.
func (m *Manager) FindForVersion(version string) (*Backup, error) {
	want := NormalizeVersion(version)
	if want == "" {
		return nil, fmt.Errorf("%w: empty version", ErrNoBackup)
	}

	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	var matches []Backup
	for _, b := range backups {
		if b.Version == want {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w for version %s", ErrNoBackup, want)
	}

	// List is newest first.
	newest := matches[0]
	if len(matches) > 1 && matches[1].CreatedAt.Equal(newest.CreatedAt) {
		return nil, fmt.Errorf("%w: %d backups for version %s at %s",
			ErrAmbiguousBackup, countAt(matches, newest.CreatedAt), want, newest.CreatedAt.Format(timestampLayout))
	}

	return &newest, nil
}

func countAt(backups []Backup, t time.Time) int {
	n := 0
	for _, b := range backups {
		if b.CreatedAt.Equal(t) {
			n++
		}
	}
	return n
}

// List returns all backups sorted by creation time (newest first). Entries
// that do not follow the naming convention are ignored.
func (m *Manager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Backup{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, ok := m.parseName(entry.Name())
		if !ok {
			continue
		}
		b.Path = filepath.Join(m.backupDir, entry.Name())
		b.Size, _ = dirSize(b.Path)
		backups = append(backups, b)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Sequence > backups[j].Sequence
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get retrieves a backup by name. Use "latest" to get the most recent backup.
func (m *Manager) Get(name string) (*Backup, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	if name == "latest" {
		if len(backups) == 0 {
			return nil, ErrNoBackup
		}
		return &backups[0], nil
	}

	for i := range backups {
		if backups[i].Name == name {
			return &backups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBackup, name)
}

// Delete removes a backup by name.
func (m *Manager) Delete(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid backup name: %q", name)
	}
	if _, ok := m.parseName(name); !ok {
		return fmt.Errorf("invalid backup name: %q", name)
	}

	path := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNoBackup, name)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	return nil
}

// parseName decodes <binary>-<version>-backup-<YYYYMMDD-HHMMSS>[-N].
func (m *Manager) parseName(name string) (Backup, bool) {
	prefix := m.binaryName + "-"
	if !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, partialSuffix) {
		return Backup{}, false
	}
	rest := strings.TrimPrefix(name, prefix)

	idx := strings.LastIndex(rest, nameSeparator)
	if idx <= 0 {
		return Backup{}, false
	}
	version := rest[:idx]
	stamp := rest[idx+len(nameSeparator):]

	if len(stamp) < len(timestampLayout) {
		return Backup{}, false
	}
	created, err := time.ParseInLocation(timestampLayout, stamp[:len(timestampLayout)], time.Local)
	if err != nil {
		return Backup{}, false
	}

	seq := 0
	if suffix := stamp[len(timestampLayout):]; suffix != "" {
		if !strings.HasPrefix(suffix, "-") {
			return Backup{}, false
		}
		seq, err = strconv.Atoi(suffix[1:])
		if err != nil || seq < 1 {
			return Backup{}, false
		}
	}

	return Backup{
		Name:      name,
		Version:   version,
		CreatedAt: created,
		Sequence:  seq,
	}, true
}

func (m *Manager) excluded(rel string) bool {
	top := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	_, ok := m.exclude[top]
	return ok
}

// NormalizeVersion trims whitespace and a leading "v".
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, v)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
