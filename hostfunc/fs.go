package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows writes to existing files.
	MountReadWrite
	// MountReadWriteCreate also allows creating files and directories.
	MountReadWriteCreate
)

var mountModes = map[string]MountMode{
	"ro":  MountReadOnly,
	"rw":  MountReadWrite,
	"rwc": MountReadWriteCreate,
}

// ParseMountMode parses "ro", "rw" or "rwc".
func ParseMountMode(s string) (MountMode, error) {
	m, ok := mountModes[s]
	if !ok {
		return 0, fmt.Errorf("invalid mount mode %q (want ro, rw or rwc)", s)
	}
	return m, nil
}

// ParseMount parses a "virtual:host[:mode]" mount specification.
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return Mount{}, fmt.Errorf("invalid mount %q (want virtual:host[:mode])", spec)
	}
	m := Mount{VirtualPath: parts[0], HostPath: parts[1]}
	if len(parts) == 3 {
		mode, err := ParseMountMode(parts[2])
		if err != nil {
			return Mount{}, err
		}
		m.Mode = mode
	}
	return m, nil
}

// Mount maps a virtual path seen by scripts onto a host directory.
type Mount struct {
	VirtualPath string
	HostPath    string
	Mode        MountMode
}

var (
	errReadOnly   = errors.New("permission denied: read-only mount")
	errNoCreate   = errors.New("permission denied: mount does not allow creation")
	errNotMounted = errors.New("permission denied: path not in any mount")
)

// FS gives scripts filesystem access restricted to explicit mounts.
type FS struct {
	mounts []Mount
}

func NewFS(mounts ...Mount) *FS {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: "/" + strings.Trim(m.VirtualPath, "/"),
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	return &FS{mounts: normalized}
}

// Register installs the fs module functions into r.
func (f *FS) Register(r *Registry) {
	r.Register("fs.read", f.Read, "path")
	r.Register("fs.write", f.Write, "path", "content")
	r.Register("fs.list", f.List, "path")
	r.Register("fs.exists", f.Exists, "path")
	r.Register("fs.mkdir", f.Mkdir, "path")
	r.Register("fs.remove", f.Remove, "path")
	r.Register("fs.stat", f.Stat, "path")
}

// target is a resolved virtual path.
type target struct {
	virtual string
	host    string
	mount   *Mount
}

// resolve maps the "path" argument onto the host, refusing paths outside
// every mount and writes to read-only mounts.
func (f *FS) resolve(args map[string]any, write bool) (target, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return target{}, errors.New("path required")
	}
	vp := filepath.Clean("/" + strings.TrimPrefix(path, "/"))

	for i := range f.mounts {
		m := &f.mounts[i]
		if vp != m.VirtualPath && !strings.HasPrefix(vp, m.VirtualPath+"/") {
			continue
		}
		if write && m.Mode == MountReadOnly {
			return target{}, errReadOnly
		}
		host := filepath.Join(m.HostPath, strings.TrimPrefix(vp, m.VirtualPath))
		if host != m.HostPath && !strings.HasPrefix(host, m.HostPath+string(filepath.Separator)) {
			return target{}, errors.New("permission denied: path escape attempt")
		}
		return target{virtual: path, host: host, mount: m}, nil
	}
	return target{}, errNotMounted
}

func notFound(err error, what, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s not found: %s", what, path)
	}
	return err
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.host)
	if err != nil {
		return nil, notFound(err, "file", t.virtual)
	}
	return string(data), nil
}

// Write replaces the contents of a file. New files need a creating mount.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	content, ok := args["content"].(string)
	if !ok {
		return nil, errors.New("content required")
	}
	t, err := f.resolve(args, true)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(t.host); errors.Is(err, fs.ErrNotExist) && t.mount.Mode != MountReadWriteCreate {
		return nil, errNoCreate
	}
	if err := os.WriteFile(t.host, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", t.virtual, err)
	}
	return nil, nil
}

// List returns the entries of a directory as dicts with name, is_dir and
// size.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, false)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(t.host)
	if err != nil {
		return nil, notFound(err, "directory", t.virtual)
	}

	result := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}
	return result, nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, false)
	if errors.Is(err, errNotMounted) {
		return false, nil
	}
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(t.host)
	return err == nil, nil
}

func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, true)
	if err != nil {
		return nil, err
	}
	if t.mount.Mode != MountReadWriteCreate {
		return nil, errNoCreate
	}
	if err := os.MkdirAll(t.host, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", t.virtual, err)
	}
	return nil, nil
}

// Remove deletes a file or an empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, true)
	if err != nil {
		return nil, err
	}
	if t.host == t.mount.HostPath {
		return nil, errors.New("permission denied: cannot remove a mount root")
	}
	if err := os.Remove(t.host); err != nil {
		return nil, notFound(err, "file", t.virtual)
	}
	return nil, nil
}

func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	t, err := f.resolve(args, false)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(t.host)
	if err != nil {
		return nil, notFound(err, "file", t.virtual)
	}
	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}
