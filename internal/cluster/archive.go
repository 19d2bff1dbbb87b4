package cluster

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/ulikunitz/xz"
)

const (
	archiveExt   = ".tar.xz"
	manifestName = "manifest.yaml"
)

// Manifest describes an archived run.
type Manifest struct {
	RunID     string         `yaml:"run_id"`
	CreatedAt time.Time      `yaml:"created_at"`
	Phase     string         `yaml:"phase"`
	Matrix    [][]int        `yaml:"matrix"`
	Nodes     []ManifestNode `yaml:"nodes"`
}

// ManifestNode is one node's entry in the manifest.
type ManifestNode struct {
	Config   netconfig.NodeConfig `yaml:"config"`
	State    string               `yaml:"state"`
	Teardown string               `yaml:"teardown,omitempty"`
}

// archive writes the manifest into staging, packs staging into
// staging.tar.xz and removes it.
func (c *Controller) archive(staging string, phase Phase, teardownErrs map[int]error) error {
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	manifest := Manifest{
		RunID:     c.runID,
		CreatedAt: time.Now().UTC(),
		Phase:     phase.String(),
	}

	c.mu.RLock()
	if c.matrix != nil {
		manifest.Matrix = c.matrix.Rows()
	}
	for i, m := range c.members {
		entry := ManifestNode{Config: m.ctrl.Config(), State: m.ctrl.State().String()}
		if entry.Config.Name == "" {
			entry.Config = m.config.Clone()
		}
		if err := teardownErrs[i]; err != nil {
			entry.Teardown = err.Error()
		}
		manifest.Nodes = append(manifest.Nodes, entry)
	}
	c.mu.RUnlock()

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(staging, manifestName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := bundle(staging, staging+archiveExt); err != nil {
		return err
	}

	return os.RemoveAll(staging)
}

// bundle packs every regular file under dir into an xz-compressed tarball
// at dest, with paths relative to dir's parent.
func bundle(dir, dest string) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	xw, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	root := filepath.Dir(dir)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(tw, src)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("failed to pack %s: %w", dir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}

	if err := xw.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}

	return nil
}
