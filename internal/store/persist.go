package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/zone-annotator/internal/utils"
)

// snapshotFile is the on-disk form. Alerts are kept in memory only.
type snapshotFile struct {
	Version        int             `json:"version"`
	SavedAt        time.Time       `json:"savedAt"`
	Sites          []Site          `json:"sites"`
	Configurations []Configuration `json:"configurations"`
}

const snapshotVersion = 1

func (s *State) persist() error {
	s.mu.RLock()
	snap := snapshotFile{
		Version:        snapshotVersion,
		SavedAt:        s.opts.Now().UTC(),
		Sites:          make([]Site, len(s.sites)),
		Configurations: make([]Configuration, len(s.configurations)),
	}
	for i, site := range s.sites {
		snap.Sites[i] = cloneSite(site)
	}
	for i, c := range s.configurations {
		snap.Configurations[i] = cloneConfiguration(c)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(s.opts.Path)); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.opts.Path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.opts.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// load reads the state file. A missing file is not an error.
func (s *State) load() (bool, error) {
	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("failed to parse state file: %w", err)
	}
	if snap.Version > snapshotVersion {
		return false, fmt.Errorf("state file version %d is newer than supported %d", snap.Version, snapshotVersion)
	}

	s.sites = snap.Sites
	s.configurations = snap.Configurations
	for i := range s.sites {
		if s.sites[i].Cameras == nil {
			s.sites[i].Cameras = []Camera{}
		}
	}
	s.log.Info("state loaded",
		slog.String("path", s.opts.Path),
		slog.Int("sites", len(s.sites)),
		slog.Int("configurations", len(s.configurations)))
	return true, nil
}

func demoSites(now time.Time) []Site {
	return []Site{
		{
			ID:       "site-1",
			Name:     "Headquarters Building",
			Address:  "123 Main Street, Downtown",
			Location: "Ground Floor",
			Status:   SiteActive,
			Cameras: []Camera{
				{ID: "cam-001", Name: "Main Entrance", CameraID: "CAM-001", StreamURL: "/placeholder.svg", Active: true, SiteID: "site-1"},
				{ID: "cam-002", Name: "Lobby Area", CameraID: "CAM-002", StreamURL: "/placeholder.svg", Active: true, SiteID: "site-1"},
			},
			CreatedAt: now,
		},
		{
			ID:      "site-2",
			Name:    "North Wing Office",
			Address: "456 Oak Avenue, Suite 200",
			Status:  SiteActive,
			Cameras: []Camera{
				{ID: "cam-003", Name: "Reception Desk", CameraID: "CAM-003", StreamURL: "/placeholder.svg", Active: true, SiteID: "site-2"},
			},
			CreatedAt: now,
		},
	}
}
