// Package zoneannotator draws detection zones over camera media.
//
// A zone is a polygon (crowd region of interest, three or more points) or a
// line (intrusion boundary, exactly two points) stored in coordinates
// normalized to the rendered media, so it stays valid at any display size.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		zoneannotator "github.com/menta2k/zone-annotator"
//		"github.com/menta2k/zone-annotator/pkg/types"
//	)
//
//	func main() {
//		za := zoneannotator.New()
//
//		ed, err := za.Edit(context.Background(), zoneannotator.EditRequest{
//			Mode:   types.ModeLine,
//			Source: "lobby.jpg",
//			OnSave: func(points []types.ZonePoint, snapshotURL string) {
//				fmt.Println("saved", points)
//			},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ed.Click(types.PixelPoint{X: 100, Y: 50})
//		ed.Click(types.PixelPoint{X: 500, Y: 400})
//		if _, err := ed.Save(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Geometry (pkg/geometry): normalization between pixels and zone points
//  2. Media (pkg/media): source classification, image loading, upload validation
//  3. Capture (pkg/capture): video playback and snapshot export
//  4. Editor (pkg/editor): the drawing state machine and editor shell
//  5. Render (pkg/render): zone overlay drawing
package zoneannotator

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/render"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// Version of the zone annotator library
const Version = "1.0.0"

// Annotator opens editors and renders zones with a shared configuration.
type Annotator struct {
	loader  media.Config
	capture capture.Config
	decoder capture.VideoDecoder
	limits  media.UploadLimits
	log     *slog.Logger
}

// New creates an Annotator with default configuration and OpenCV video
// decoding.
func New() *Annotator {
	return NewWithConfig(media.DefaultConfig(), capture.DefaultConfig(), capture.NewGoCVDecoder(), nil)
}

// NewWithConfig creates an Annotator with custom configuration. decoder may
// be nil when only images are used; log may be nil.
func NewWithConfig(loaderConfig media.Config, captureConfig capture.Config, decoder capture.VideoDecoder, log *slog.Logger) *Annotator {
	if captureConfig.TargetWidth <= 0 {
		captureConfig.TargetWidth = loaderConfig.TargetWidth
	}
	return &Annotator{
		loader:  loaderConfig,
		capture: captureConfig,
		decoder: decoder,
		limits:  media.UploadLimits{MaxBytes: loaderConfig.MaxBytes},
		log:     log,
	}
}

// EditRequest describes one editing session.
type EditRequest struct {
	Mode        types.Mode
	Source      string
	InitialZone []types.ZonePoint
	OnSave      func(points []types.ZonePoint, snapshotURL string)
	OnCancel    func()
	Notifier    editor.Notifier
}

// Edit opens an editor over req.Source.
func (a *Annotator) Edit(ctx context.Context, req EditRequest) (*editor.Shell, error) {
	return editor.Open(ctx, editor.Options{
		Mode:         req.Mode,
		Source:       req.Source,
		InitialZone:  req.InitialZone,
		OnSave:       req.OnSave,
		OnCancel:     req.OnCancel,
		Notifier:     req.Notifier,
		Loader:       a.loader,
		Capture:      a.capture,
		Decoder:      a.decoder,
		UploadLimits: a.limits,
		Logger:       a.log,
	})
}

// DrawZone renders a stored zone over the media at source.
func (a *Annotator) DrawZone(ctx context.Context, source string, zone types.Zone) (image.Image, error) {
	var loadErr error
	ed, err := a.Edit(ctx, EditRequest{
		Mode:        zone.Mode,
		Source:      source,
		InitialZone: zone.Points,
		Notifier: editor.NotifierFunc(func(n editor.Notice) {
			if n.Level == editor.LevelError && loadErr == nil {
				loadErr = fmt.Errorf("%s: %s", n.Title, n.Message)
			}
		}),
	})
	if err != nil {
		return nil, err
	}
	defer ed.Cancel()
	if loadErr != nil {
		return nil, loadErr
	}
	return ed.Render()
}

// RenderFile draws zone over the media at inputPath and writes the result
// to outputPath as jpg, png or webp.
func (a *Annotator) RenderFile(ctx context.Context, inputPath, outputPath, format string, zone types.Zone) error {
	img, err := a.DrawZone(ctx, inputPath, zone)
	if err != nil {
		return fmt.Errorf("failed to draw zone: %w", err)
	}
	if err := render.Save(img, outputPath, format, a.capture.SnapshotQuality, false); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// ValidateZone applies the save rules to a stored zone. Failures are
// *editor.ValidationError.
func ValidateZone(zone types.Zone) error {
	if _, err := types.ParseMode(string(zone.Mode)); err != nil {
		return &editor.ValidationError{Mode: zone.Mode, Rule: editor.RuleUnknownMode, Points: len(zone.Points)}
	}
	return editor.NewSession(zone.Mode, zone.Points, false).Validate()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
