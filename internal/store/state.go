// Package store holds the application state shared by the HTTP handlers:
// sites and cameras, detection configurations and alerts.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/types"
)

var (
	// ErrNotFound is returned when an id does not match any entity.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for inputs that fail validation.
	ErrInvalid = errors.New("invalid input")
)

// Options configure a State.
type Options struct {
	// Path enables JSON persistence of sites and configurations.
	Path      string
	MaxAlerts int
	// Seed loads the demo sites when no persisted state exists.
	Seed   bool
	Now    func() time.Time
	Logger *slog.Logger
}

// State is the application state. It is created once at startup and passed
// to whoever needs it; every mutation is published to subscribers.
type State struct {
	opts Options
	log  *slog.Logger

	mu             sync.RWMutex
	sites          []Site
	configurations []Configuration
	alerts         []Alert

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// New creates the state, loading persisted data from opts.Path if present.
func New(opts Options) (*State, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = 500
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &State{opts: opts, log: log, observers: make(map[int]func(Change))}

	loaded := false
	if opts.Path != "" {
		var err error
		if loaded, err = s.load(); err != nil {
			return nil, err
		}
	}
	if !loaded && opts.Seed {
		s.sites = demoSites(opts.Now().UTC())
	}
	return s, nil
}

// Subscribe registers fn for every change. The returned function removes it.
func (s *State) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *State) publish(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// changed persists when needed and publishes. Call without holding mu.
func (s *State) changed(c Change) {
	if c.Kind != ChangeAlert && s.opts.Path != "" {
		if err := s.persist(); err != nil {
			s.log.Warn("failed to persist state", slog.String("path", s.opts.Path), slog.String("error", err.Error()))
		}
	}
	s.publish(c)
}

func newID() string {
	return uuid.NewString()
}

// SiteInput is the data needed to create a site.
type SiteInput struct {
	Name     string     `json:"name"`
	Address  string     `json:"address"`
	Location string     `json:"location,omitempty"`
	Status   SiteStatus `json:"status,omitempty"`
}

// SitePatch updates the non-nil fields of a site.
type SitePatch struct {
	Name     *string     `json:"name,omitempty"`
	Address  *string     `json:"address,omitempty"`
	Location *string     `json:"location,omitempty"`
	Status   *SiteStatus `json:"status,omitempty"`
}

func validStatus(st SiteStatus) bool {
	return st == SiteActive || st == SiteInactive
}

// Sites returns every site with its cameras.
func (s *State) Sites() []Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Site, len(s.sites))
	for i, site := range s.sites {
		out[i] = cloneSite(site)
	}
	return out
}

// Site returns one site.
func (s *State) Site(id string) (Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.siteIndexLocked(id)
	if i < 0 {
		return Site{}, fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return cloneSite(s.sites[i]), nil
}

// AddSite creates a site without cameras.
func (s *State) AddSite(in SiteInput) (Site, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Site{}, fmt.Errorf("%w: site name is required", ErrInvalid)
	}
	if in.Status == "" {
		in.Status = SiteActive
	}
	if !validStatus(in.Status) {
		return Site{}, fmt.Errorf("%w: status %q", ErrInvalid, in.Status)
	}
	site := Site{
		ID:        newID(),
		Name:      in.Name,
		Address:   in.Address,
		Location:  in.Location,
		Status:    in.Status,
		Cameras:   []Camera{},
		CreatedAt: s.opts.Now().UTC(),
	}

	s.mu.Lock()
	s.sites = append(s.sites, site)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeSite, Op: OpCreated, ID: site.ID})
	return cloneSite(site), nil
}

// UpdateSite applies a patch.
func (s *State) UpdateSite(id string, p SitePatch) (Site, error) {
	if p.Status != nil && !validStatus(*p.Status) {
		return Site{}, fmt.Errorf("%w: status %q", ErrInvalid, *p.Status)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Site{}, fmt.Errorf("%w: site name is required", ErrInvalid)
	}

	s.mu.Lock()
	i := s.siteIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Site{}, fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	site := &s.sites[i]
	if p.Name != nil {
		site.Name = *p.Name
	}
	if p.Address != nil {
		site.Address = *p.Address
	}
	if p.Location != nil {
		site.Location = *p.Location
	}
	if p.Status != nil {
		site.Status = *p.Status
	}
	out := cloneSite(*site)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeSite, Op: OpUpdated, ID: id})
	return out, nil
}

// DeleteSite removes a site and its cameras.
func (s *State) DeleteSite(id string) error {
	s.mu.Lock()
	i := s.siteIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	s.sites = append(s.sites[:i], s.sites[i+1:]...)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeSite, Op: OpDeleted, ID: id})
	return nil
}

func (s *State) siteIndexLocked(id string) int {
	for i := range s.sites {
		if s.sites[i].ID == id {
			return i
		}
	}
	return -1
}

// CameraInput is the data needed to add a camera.
type CameraInput struct {
	CameraID  string `json:"cameraId"`
	Name      string `json:"name"`
	StreamURL string `json:"streamUrl"`
	Active    *bool  `json:"active,omitempty"`
}

// CameraPatch updates the non-nil fields of a camera.
type CameraPatch struct {
	CameraID      *string   `json:"cameraId,omitempty"`
	Name          *string   `json:"name,omitempty"`
	StreamURL     *string   `json:"streamUrl,omitempty"`
	UploadedMedia *[]string `json:"uploadedMedia,omitempty"`
	Active        *bool     `json:"active,omitempty"`
}

// AddCamera adds a camera to a site.
func (s *State) AddCamera(siteID string, in CameraInput) (Camera, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Camera{}, fmt.Errorf("%w: camera name is required", ErrInvalid)
	}
	cam := Camera{
		ID:        newID(),
		CameraID:  in.CameraID,
		Name:      in.Name,
		SiteID:    siteID,
		StreamURL: in.StreamURL,
		Active:    in.Active == nil || *in.Active,
	}

	s.mu.Lock()
	i := s.siteIndexLocked(siteID)
	if i < 0 {
		s.mu.Unlock()
		return Camera{}, fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	s.sites[i].Cameras = append(s.sites[i].Cameras, cam)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeCamera, Op: OpCreated, ID: cam.ID})
	return cam, nil
}

// UpdateCamera applies a patch to a camera of a site.
func (s *State) UpdateCamera(siteID, cameraID string, p CameraPatch) (Camera, error) {
	s.mu.Lock()
	cam, err := s.cameraLocked(siteID, cameraID)
	if err != nil {
		s.mu.Unlock()
		return Camera{}, err
	}
	if p.CameraID != nil {
		cam.CameraID = *p.CameraID
	}
	if p.Name != nil {
		cam.Name = *p.Name
	}
	if p.StreamURL != nil {
		cam.StreamURL = *p.StreamURL
	}
	if p.UploadedMedia != nil {
		cam.UploadedMedia = append([]string(nil), (*p.UploadedMedia)...)
	}
	if p.Active != nil {
		cam.Active = *p.Active
	}
	out := *cam
	out.UploadedMedia = append([]string(nil), cam.UploadedMedia...)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeCamera, Op: OpUpdated, ID: cameraID})
	return out, nil
}

// DeleteCamera removes a camera from a site.
func (s *State) DeleteCamera(siteID, cameraID string) error {
	s.mu.Lock()
	i := s.siteIndexLocked(siteID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	cams := s.sites[i].Cameras
	j := cameraIndex(cams, cameraID)
	if j < 0 {
		s.mu.Unlock()
		return fmt.Errorf("camera %s: %w", cameraID, ErrNotFound)
	}
	s.sites[i].Cameras = append(cams[:j], cams[j+1:]...)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeCamera, Op: OpDeleted, ID: cameraID})
	return nil
}

// Camera finds a camera on any site, returning it with its site.
func (s *State) Camera(cameraID string) (Camera, Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if j := cameraIndex(site.Cameras, cameraID); j >= 0 {
			return site.Cameras[j], cloneSite(site), nil
		}
	}
	return Camera{}, Site{}, fmt.Errorf("camera %s: %w", cameraID, ErrNotFound)
}

func (s *State) cameraLocked(siteID, cameraID string) (*Camera, error) {
	i := s.siteIndexLocked(siteID)
	if i < 0 {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	j := cameraIndex(s.sites[i].Cameras, cameraID)
	if j < 0 {
		return nil, fmt.Errorf("camera %s: %w", cameraID, ErrNotFound)
	}
	return &s.sites[i].Cameras[j], nil
}

func cameraIndex(cams []Camera, id string) int {
	for i := range cams {
		if cams[i].ID == id {
			return i
		}
	}
	return -1
}

// ConfigurationInput is the data needed to create a configuration.
type ConfigurationInput struct {
	Type      ConfigType        `json:"type"`
	CameraID  string            `json:"cameraId"`
	Threshold int               `json:"threshold,omitempty"`
	Direction Direction         `json:"direction,omitempty"`
	Zone      []types.ZonePoint `json:"zone,omitempty"`
}

// validateZone accepts an empty zone (not drawn yet) or a saveable one.
func validateZone(t ConfigType, zone []types.ZonePoint) error {
	mode, err := t.Mode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(zone) == 0 {
		return nil
	}
	for _, p := range zone {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("%w: zone point (%g,%g) outside the unit square", ErrInvalid, p.X, p.Y)
		}
	}
	if err := editor.NewSession(mode, zone, false).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Configurations returns every configuration, oldest first.
func (s *State) Configurations() []Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Configuration, len(s.configurations))
	for i, c := range s.configurations {
		out[i] = cloneConfiguration(c)
	}
	return out
}

// Configuration returns one configuration.
func (s *State) Configuration(id string) (Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.configIndexLocked(id)
	if i < 0 {
		return Configuration{}, fmt.Errorf("configuration %s: %w", id, ErrNotFound)
	}
	return cloneConfiguration(s.configurations[i]), nil
}

// AddConfiguration creates a configuration for an existing camera.
func (s *State) AddConfiguration(in ConfigurationInput) (Configuration, error) {
	if err := validateZone(in.Type, in.Zone); err != nil {
		return Configuration{}, err
	}
	if !in.Direction.valid() {
		return Configuration{}, fmt.Errorf("%w: direction %q", ErrInvalid, in.Direction)
	}
	if in.Threshold < 0 {
		return Configuration{}, fmt.Errorf("%w: threshold cannot be negative", ErrInvalid)
	}
	cam, site, err := s.Camera(in.CameraID)
	if err != nil {
		return Configuration{}, err
	}

	now := s.opts.Now().UTC()
	cfg := Configuration{
		ID:         newID(),
		Type:       in.Type,
		CameraID:   cam.ID,
		CameraName: cam.Name,
		Site:       site.Name,
		Threshold:  in.Threshold,
		Direction:  in.Direction,
		Zone:       append([]types.ZonePoint(nil), in.Zone...),
		CreatedAt:  now,
	}
	if cfg.Zone == nil {
		cfg.Zone = []types.ZonePoint{}
	}

	s.mu.Lock()
	s.configurations = append(s.configurations, cfg)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeConfiguration, Op: OpCreated, ID: cfg.ID})
	return cloneConfiguration(cfg), nil
}

// UpdateZone stores a zone saved from the editor, with its snapshot if any.
func (s *State) UpdateZone(id string, zone []types.ZonePoint, snapshotURL string) (Configuration, error) {
	s.mu.Lock()
	i := s.configIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Configuration{}, fmt.Errorf("configuration %s: %w", id, ErrNotFound)
	}
	cfg := &s.configurations[i]
	if err := validateZone(cfg.Type, zone); err != nil {
		s.mu.Unlock()
		return Configuration{}, err
	}
	cfg.Zone = append([]types.ZonePoint(nil), zone...)
	if snapshotURL != "" {
		cfg.SnapshotURL = snapshotURL
	}
	cfg.UpdatedAt = s.opts.Now().UTC()
	out := cloneConfiguration(*cfg)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeConfiguration, Op: OpUpdated, ID: id})
	return out, nil
}

// DeleteConfiguration removes a configuration.
func (s *State) DeleteConfiguration(id string) error {
	s.mu.Lock()
	i := s.configIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("configuration %s: %w", id, ErrNotFound)
	}
	s.configurations = append(s.configurations[:i], s.configurations[i+1:]...)
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeConfiguration, Op: OpDeleted, ID: id})
	return nil
}

func (s *State) configIndexLocked(id string) int {
	for i := range s.configurations {
		if s.configurations[i].ID == id {
			return i
		}
	}
	return -1
}

// AlertInput is an incoming detection event.
type AlertInput struct {
	Type        AlertType
	CameraID    string
	CameraName  string
	ZoneID      string
	ZoneName    string
	Count       *int
	Severity    Severity
	Timestamp   time.Time
	SnapshotURL string
}

// AddAlert records an alert, newest first. The oldest alerts beyond the
// configured maximum are dropped.
func (s *State) AddAlert(in AlertInput) Alert {
	a := Alert{
		ID:          newID(),
		Type:        in.Type,
		CameraID:    in.CameraID,
		CameraName:  in.CameraName,
		ZoneID:      in.ZoneID,
		ZoneName:    in.ZoneName,
		Severity:    in.Severity,
		Timestamp:   in.Timestamp,
		SnapshotURL: in.SnapshotURL,
	}
	if in.Count != nil {
		n := *in.Count
		a.Count = &n
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.opts.Now().UTC()
	}

	s.mu.Lock()
	s.alerts = append([]Alert{a}, s.alerts...)
	if len(s.alerts) > s.opts.MaxAlerts {
		s.alerts = s.alerts[:s.opts.MaxAlerts]
	}
	s.mu.Unlock()

	s.changed(Change{Kind: ChangeAlert, Op: OpCreated, ID: a.ID})
	return a
}

// AlertFilter narrows Alerts. Zero values match everything.
type AlertFilter struct {
	Type           AlertType
	Severity       Severity
	CameraID       string
	Unacknowledged bool
}

func (f AlertFilter) match(a Alert) bool {
	return (f.Type == "" || a.Type == f.Type) &&
		(f.Severity == "" || a.Severity == f.Severity) &&
		(f.CameraID == "" || a.CameraID == f.CameraID) &&
		(!f.Unacknowledged || !a.Acknowledged)
}

// Alerts returns matching alerts, newest first.
func (s *State) Alerts(f AlertFilter) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// AcknowledgeAlert marks an alert as reviewed.
func (s *State) AcknowledgeAlert(id string) (Alert, error) {
	s.mu.Lock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Acknowledged = true
			a := s.alerts[i]
			s.mu.Unlock()
			s.changed(Change{Kind: ChangeAlert, Op: OpUpdated, ID: id})
			return a, nil
		}
	}
	s.mu.Unlock()
	return Alert{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
}

// ClearAlerts removes every alert.
func (s *State) ClearAlerts() {
	s.mu.Lock()
	s.alerts = nil
	s.mu.Unlock()
	s.changed(Change{Kind: ChangeAlert, Op: OpCleared})
}

// AlertStats counts alerts per type and severity.
type AlertStats struct {
	Total          int               `json:"total"`
	Unacknowledged int               `json:"unacknowledged"`
	ByType         map[AlertType]int `json:"byType"`
	BySeverity     map[Severity]int  `json:"bySeverity"`
}

// Stats summarizes the alerts for the dashboard.
func (s *State) Stats() AlertStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := AlertStats{ByType: map[AlertType]int{}, BySeverity: map[Severity]int{}}
	for _, a := range s.alerts {
		st.Total++
		if !a.Acknowledged {
			st.Unacknowledged++
		}
		st.ByType[a.Type]++
		st.BySeverity[a.Severity]++
	}
	return st
}
