package store

import (
	"fmt"
	"time"

	"github.com/menta2k/zone-annotator/pkg/types"
)

// SiteStatus is whether a site is monitored.
type SiteStatus string

const (
	SiteActive   SiteStatus = "active"
	SiteInactive SiteStatus = "inactive"
)

// Camera is a video source installed at a site.
type Camera struct {
	ID            string   `json:"id"`
	CameraID      string   `json:"cameraId"`
	Name          string   `json:"name"`
	SiteID        string   `json:"siteId"`
	StreamURL     string   `json:"streamUrl"`
	UploadedMedia []string `json:"uploadedMedia,omitempty"`
	Active        bool     `json:"active"`
}

// Site groups cameras at one location.
type Site struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Location  string     `json:"location,omitempty"`
	Status    SiteStatus `json:"status"`
	Cameras   []Camera   `json:"cameras"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ConfigType is the analytic a configuration drives.
type ConfigType string

const (
	ConfigCrowd     ConfigType = "crowd_detection"
	ConfigIntrusion ConfigType = "intrusion_detection"
)

// Mode returns the zone shape the analytic needs: a polygon region for
// crowd counting, a line for intrusion.
func (t ConfigType) Mode() (types.Mode, error) {
	switch t {
	case ConfigCrowd:
		return types.ModePolygon, nil
	case ConfigIntrusion:
		return types.ModeLine, nil
	default:
		return "", fmt.Errorf("unknown configuration type %q", t)
	}
}

// Direction is the crossing direction that raises an intrusion alert.
type Direction string

const (
	TopToBottom Direction = "top-bottom"
	BottomToTop Direction = "bottom-top"
	LeftToRight Direction = "left-right"
	RightToLeft Direction = "right-left"
)

func (d Direction) valid() bool {
	switch d {
	case "", TopToBottom, BottomToTop, LeftToRight, RightToLeft:
		return true
	}
	return false
}

// Configuration binds an analytic and its zone to a camera.
type Configuration struct {
	ID          string            `json:"id"`
	Type        ConfigType        `json:"type"`
	CameraID    string            `json:"cameraId"`
	CameraName  string            `json:"cameraName"`
	Site        string            `json:"site"`
	Threshold   int               `json:"threshold,omitempty"`
	Direction   Direction         `json:"direction,omitempty"`
	Zone        []types.ZonePoint `json:"zone"`
	SnapshotURL string            `json:"snapshotUrl,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt,omitempty"`
}

// AlertType is the kind of detection that raised an alert.
type AlertType string

const (
	AlertCrowd     AlertType = "crowd_detection"
	AlertIntrusion AlertType = "intrusion_alert"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

// Alert is a detection event shown for review.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	CameraID     string    `json:"cameraId"`
	CameraName   string    `json:"cameraName"`
	ZoneID       string    `json:"zoneId"`
	ZoneName     string    `json:"zoneName"`
	Count        *int      `json:"count,omitempty"`
	Severity     Severity  `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	SnapshotURL  string    `json:"snapshotUrl"`
	Acknowledged bool      `json:"acknowledged"`
}

// ChangeKind names the collection a change touched.
type ChangeKind string

const (
	ChangeSite          ChangeKind = "site"
	ChangeCamera        ChangeKind = "camera"
	ChangeConfiguration ChangeKind = "configuration"
	ChangeAlert         ChangeKind = "alert"
)

// Op is what happened to the entity.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
	OpCleared Op = "cleared"
)

// Change is published to observers after every mutation.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Op   Op         `json:"op"`
	ID   string     `json:"id,omitempty"`
}

func cloneSite(s Site) Site {
	cams := make([]Camera, len(s.Cameras))
	for i, c := range s.Cameras {
		c.UploadedMedia = append([]string(nil), c.UploadedMedia...)
		cams[i] = c
	}
	s.Cameras = cams
	return s
}

func cloneConfiguration(c Configuration) Configuration {
	c.Zone = append([]types.ZonePoint(nil), c.Zone...)
	return c
}
