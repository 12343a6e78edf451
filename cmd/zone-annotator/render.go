package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/menta2k/zone-annotator/internal/logger"
	"github.com/menta2k/zone-annotator/internal/utils"
	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/render"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// runRender draws a zone over an image or video frame and writes the
// overlay, printing the normalized zone as JSON.
func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var in, out, modeName, zoneJSON, ext, snapshotOut string
	var quality, width int
	var lossless, verbose bool
	var seek float64

	fs.StringVar(&in, "in", "", "input image or video (path, URL or data URI)")
	fs.StringVar(&out, "out", "overlay.png", "overlay output path")
	fs.StringVar(&ext, "ext", "", "overlay format: jpg|png|webp (default from -out extension)")
	fs.IntVar(&quality, "quality", capture.DefaultSnapshotQuality, "JPEG/WebP quality (1-100)")
	fs.BoolVar(&lossless, "lossless", false, "WebP lossless mode")
	fs.StringVar(&modeName, "mode", "polygon", "zone mode: polygon|line")
	fs.StringVar(&zoneJSON, "zone", "", `zone points as JSON, e.g. [{"x":0.1,"y":0.2},...]`)
	fs.IntVar(&width, "width", media.DefaultTargetWidth, "render width in pixels")
	fs.Float64Var(&seek, "seek", 0, "video position in seconds")
	fs.StringVar(&snapshotOut, "snapshot", "", "also write the captured frame as a data URI to this file")
	fs.BoolVar(&verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}
	if ext == "" && !utils.IsImageFile(out) {
		return fmt.Errorf("-out %q has no image extension, pass -ext", out)
	}

	mode, err := types.ParseMode(modeName)
	if err != nil {
		return err
	}
	var zone []types.ZonePoint
	if zoneJSON != "" {
		if err := json.Unmarshal([]byte(zoneJSON), &zone); err != nil {
			return fmt.Errorf("invalid -zone: %w", err)
		}
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	lg := logger.NewWithWriter(os.Stderr, level, "text")

	var loadErr error
	shell, err := editor.Open(context.Background(), editor.Options{
		Mode:        mode,
		Source:      in,
		InitialZone: zone,
		Notifier: editor.NotifierFunc(func(n editor.Notice) {
			if n.Level == editor.LevelError {
				loadErr = fmt.Errorf("%s: %s", n.Title, n.Message)
			}
		}),
		Loader:  media.Config{TargetWidth: width},
		Capture: capture.Config{TargetWidth: width, SnapshotQuality: quality},
		Decoder: capture.NewGoCVDecoder(),
		Logger:  lg,
	})
	if err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	if seek > 0 {
		if _, err := shell.Seek(time.Duration(seek * float64(time.Second))); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
	}

	img, err := shell.Render()
	if err != nil {
		return err
	}
	format := ext
	if format == "" {
		format = formatFromPath(out)
	}
	if err := render.Save(img, out, format, quality, lossless); err != nil {
		return err
	}
	log.Printf("wrote %s", out)

	if snapshotOut != "" {
		uri, err := shell.CaptureSnapshot()
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := os.WriteFile(snapshotOut, []byte(uri), 0o644); err != nil {
			return err
		}
		log.Printf("wrote %s", snapshotOut)
	}

	if len(zone) == 0 {
		return shell.Cancel()
	}
	saved, err := shell.Save()
	if err != nil {
		var verr *editor.ValidationError
		if errors.As(err, &verr) {
			log.Printf("zone not saveable: %v", verr)
			return shell.Cancel()
		}
		return err
	}
	saved.SnapshotURL = ""
	js, _ := json.MarshalIndent(saved, "", "  ")
	fmt.Println(string(js))
	return nil
}

func formatFromPath(path string) string {
	switch e := utils.GetFileExtension(path); e {
	case "jpg", "jpeg", "webp":
		return e
	default:
		return "png"
	}
}
