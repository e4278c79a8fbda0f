package hunt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/prospect/idgen"
)

// MissionSpec is one entry of the missions file.
type MissionSpec struct {
	Name      string   `yaml:"name"`
	Goal      string   `yaml:"goal"`
	Languages []string `yaml:"languages"`
	MinStars  int      `yaml:"min_stars"`
	SeedRepos []string `yaml:"seed_repos"`
	Notes     string   `yaml:"notes"`
	Disabled  bool     `yaml:"disabled"`
}

type missionsFile struct {
	Missions []MissionSpec `yaml:"missions"`
}

// LoadMissionsFile parses a missions YAML file.
func LoadMissionsFile(path string) ([]MissionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf missionsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("hunt: parse missions file %s: %w", path, err)
	}
	for i, m := range mf.Missions {
		if m.Name == "" || m.Goal == "" {
			return nil, fmt.Errorf("%w: mission %d needs a name and a goal", ErrInvalidInput, i)
		}
	}
	return mf.Missions, nil
}

// seedMissions upserts the missions file into the store. Learned
// strategies survive (the upsert only touches the declarative fields).
func (s *Service) seedMissions(ctx context.Context) error {
	specs, err := LoadMissionsFile(s.cfg.MissionsFile)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		m := &Mission{
			ID:        idgen.Prefixed("msn_", s.newID)(),
			Name:      spec.Name,
			Goal:      spec.Goal,
			Languages: spec.Languages,
			MinStars:  spec.MinStars,
			SeedRepos: spec.SeedRepos,
			Notes:     spec.Notes,
			Enabled:   !spec.Disabled,
		}
		if err := s.store.UpsertMission(ctx, m); err != nil {
			return err
		}
	}
	s.logger.Info("hunt: missions loaded", "file", s.cfg.MissionsFile, "count", len(specs))
	return nil
}

// watchMissions re-applies the missions file whenever it changes.
// Editors write through renames, so the watch covers the directory and
// filters by name. A malformed file is logged; the stored missions stay.
func (s *Service) watchMissions(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hunt: missions watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.cfg.MissionsFile)
	if err := watcher.Add(dir); err != nil {
		// No directory to watch is not fatal; the daemon runs with the
		// missions it already has.
		s.logger.Warn("hunt: missions watch disabled", "dir", dir, "error", err)
		<-ctx.Done()
		return nil
	}

	target := filepath.Clean(s.cfg.MissionsFile)
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(500 * time.Millisecond)
				debounceCh = debounce.C
			} else {
				debounce.Reset(500 * time.Millisecond)
			}
		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			if err := s.seedMissions(ctx); err != nil {
				s.logger.Warn("hunt: missions reload failed, keeping previous", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("hunt: missions watcher error", "error", err)
		}
	}
}
