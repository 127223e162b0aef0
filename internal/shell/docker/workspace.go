package docker

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// Deployment Workspace
// =============================================================================

// Workspace lays out one directory per deployment slug holding the rewritten
// compose file and its .env file.
type Workspace struct {
	// BaseDir is where docklite writes the files.
	BaseDir string
	// RuntimeDir is the same directory as seen by the runtime host. It differs
	// from BaseDir when the projects directory is mounted at another path
	// there. Empty means BaseDir.
	RuntimeDir string
}

// NewWorkspace returns a workspace rooted at baseDir.
func NewWorkspace(baseDir, runtimeDir string) *Workspace {
	return &Workspace{BaseDir: baseDir, RuntimeDir: runtimeDir}
}

// Dir returns the local directory of a deployment.
func (w *Workspace) Dir(slug string) string {
	return filepath.Join(w.BaseDir, slug)
}

// RuntimePath returns the deployment directory as passed to compose.
func (w *Workspace) RuntimePath(slug string) string {
	if w.RuntimeDir == "" {
		return filepath.ToSlash(w.Dir(slug))
	}
	return path.Join(w.RuntimeDir, slug)
}

// Write stores compose content and env vars for slug. The .env file is always
// created, empty when there are no variables, so compose never warns about it.
func (w *Workspace) Write(slug, composeContent string, env map[string]string) error {
	if slug == "" || strings.ContainsAny(slug, `/\`) || slug == "." || slug == ".." {
		return fmt.Errorf("invalid deployment slug %q", slug)
	}

	dir := w.Dir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create deployment directory: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, ComposeFileName), []byte(composeContent), 0o644); err != nil {
		return fmt.Errorf("failed to write compose file: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, EnvFileName), []byte(FormatEnvFile(env)), 0o600); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}

// Remove deletes the deployment directory. A missing directory is not an error.
func (w *Workspace) Remove(slug string) error {
	if slug == "" {
		return nil
	}
	return os.RemoveAll(w.Dir(slug))
}

// FormatEnvFile renders env as KEY=value lines in key order.
func FormatEnvFile(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(env[k])
		b.WriteByte('\n')
	}
	return b.String()
}

func writeFileAtomic(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
