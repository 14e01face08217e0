// Package setup lays out a new bridge directory: config, world snapshot, base and state
// directories, and empty queue and result files for every feature.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
	"github.com/sudoservertools/sstbridge/templates"
)

const (
	ConfigName = "sstbridge.yaml"
	WorldName  = "world.yaml"
	baseSubdir = "SST/api"
	stateDir   = "sst-state"
	archiveDB  = "results.db"
)

// Layout is where Run put things.
type Layout struct {
	Config  string
	World   string
	BaseDir string
	State   string
	Seeded  []string
}

// Run initializes dir. It refuses to touch a directory that already has a config. Queue
// and result files that already exist are left alone.
func Run(ctx context.Context, dir string, features *queue.Registry) (Layout, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve dir: %w", err)
	}
	l := Layout{
		Config:  filepath.Join(absDir, ConfigName),
		World:   filepath.Join(absDir, WorldName),
		BaseDir: filepath.Join(absDir, filepath.FromSlash(baseSubdir)),
		State:   filepath.Join(absDir, stateDir),
	}

	if _, err := os.Stat(l.Config); err == nil {
		return Layout{}, fmt.Errorf("%s already exists", l.Config)
	}
	for _, d := range []string{l.BaseDir, l.State} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile(WorldName, l.World); err != nil {
		return Layout{}, err
	}
	if err := writeConfig(l); err != nil {
		return Layout{}, err
	}

	seeded, err := seedFiles(ctx, l.BaseDir, features)
	if err != nil {
		return Layout{}, err
	}
	l.Seeded = seeded
	return l, nil
}

func copyTemplateFile(name, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func writeConfig(l Layout) error {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return fmt.Errorf("read config template: %w", err)
	}
	r := strings.NewReplacer(
		"{{base_dir}}", filepath.ToSlash(l.BaseDir),
		"{{state_dir}}", filepath.ToSlash(l.State),
		"{{world_file}}", filepath.ToSlash(l.World),
		"{{archive_path}}", filepath.ToSlash(filepath.Join(l.State, archiveDB)),
	)
	if err := os.WriteFile(l.Config, []byte(r.Replace(string(data))), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", l.Config, err)
	}
	return nil
}

// seedFiles writes an empty document for each missing queue and result file, so the mod
// and the API find the files they expect from the first poll.
func seedFiles(ctx context.Context, baseDir string, features *queue.Registry) ([]string, error) {
	store, err := storage.NewLocal(baseDir, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	var seeded []string
	for _, f := range features.All() {
		for _, path := range []string{f.QueueFile(), f.ResultFile()} {
			_, err := store.Stat(ctx, path)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrNotExist) {
				return seeded, fmt.Errorf("stat %s: %w", path, err)
			}
			if path == f.QueueFile() {
				err = jsonfile.WriteQueue(ctx, store, path, model.QueueFile{Requests: []model.Request{}})
			} else {
				err = jsonfile.WriteResults(ctx, store, path, model.ResultFile{Requests: []model.Result{}})
			}
			if err != nil {
				return seeded, fmt.Errorf("seed %s: %w", path, err)
			}
			seeded = append(seeded, path)
		}
	}
	return seeded, nil
}
