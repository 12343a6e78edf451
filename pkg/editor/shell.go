// Package editor implements the zone drawing state machine and the editor
// shell that composes it with media loading and frame capture.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/render"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// DefaultHitRadius is how close, in render pixels, a click must land to a
// marker to count as a click on that point.
const DefaultHitRadius = 8.0

// Options configure an editor.
type Options struct {
	Mode        types.Mode
	Source      string
	InitialZone []types.ZonePoint

	// OnSave is called exactly once per successful save.
	OnSave func(points []types.ZonePoint, snapshotURL string)
	// OnCancel is called exactly once when editing is abandoned.
	OnCancel func()

	Notifier     Notifier
	Loader       media.Config
	Capture      capture.Config
	Decoder      capture.VideoDecoder
	UploadLimits media.UploadLimits
	HitRadius    float64
	Style        *render.Style
	Logger       *slog.Logger
}

// Shell is one open editor: a drawing session over a media frame with
// save and cancel.
type Shell struct {
	opts     Options
	log      *slog.Logger
	notifier Notifier
	loader   *media.Loader
	capturer *capture.Capturer
	style    render.Style

	mu       sync.Mutex
	session  *Session
	source   media.Source
	snapshot string
	closed   bool
}

// Open creates an editor. A seeded zone starts with drawing enabled. A media
// load failure is reported through the notifier and leaves the editor in
// no-media mode; it is not returned as an error.
func Open(ctx context.Context, opts Options) (*Shell, error) {
	if _, err := types.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{log: log}
	}
	if opts.HitRadius <= 0 {
		opts.HitRadius = DefaultHitRadius
	}
	style := render.DefaultStyle()
	if opts.Style != nil {
		style = *opts.Style
	}
	if opts.Capture.TargetWidth <= 0 {
		opts.Capture.TargetWidth = opts.Loader.TargetWidth
	}

	s := &Shell{
		opts:     opts,
		log:      log,
		notifier: notifier,
		loader:   media.NewLoaderWithConfig(opts.Loader, log),
		capturer: capture.New(opts.Capture, opts.Decoder, log),
		style:    style,
		session:  NewSession(opts.Mode, opts.InitialZone, len(opts.InitialZone) > 0),
	}

	if opts.Source != "" {
		if err := s.LoadSource(ctx, opts.Source); err != nil && !errors.Is(err, media.ErrSuperseded) {
			log.Info("editor opened without media", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// LoadSource replaces the media with src. An empty src detaches the media.
// Failures keep the previous frame and are reported to the notifier.
func (s *Shell) LoadSource(ctx context.Context, src string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	frame, err := s.loader.Load(ctx, src)
	if errors.Is(err, media.ErrNoSource) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.capturer.Detach()
		s.source = media.Source{}
		s.session.SetDimensions(types.Dimensions{})
		return nil
	}
	if err != nil {
		return s.loadFailed(err)
	}
	return s.attach(frame)
}

// ReplaceMedia validates a user-selected file and, when accepted, loads it.
// Rejected files leave the current media untouched.
func (s *Shell) ReplaceMedia(info media.FileInfo, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	kind, err := media.ValidateUpload(info, s.opts.UploadLimits)
	if err != nil {
		title := "Unsupported file type"
		if errors.Is(err, media.ErrFileTooLarge) {
			title = "File too large"
		}
		s.notifier.Notify(Notice{Level: LevelError, Title: title, Message: err.Error()})
		return err
	}

	var frame *media.Frame
	switch kind {
	case media.KindImage:
		frame, err = s.loader.LoadImage(data, info.Name)
	case media.KindVideo:
		gen := s.loader.Invalidate()
		ref := media.EncodeDataURI(media.DetectContentType(info.ContentType, info.Name, data), data)
		frame = &media.Frame{Source: media.Source{Kind: media.KindVideo, Ref: ref}, Generation: gen}
	}
	if err != nil {
		return s.loadFailed(err)
	}
	if err := s.attach(frame); err != nil {
		return err
	}
	s.notifier.Notify(Notice{Level: LevelSuccess, Title: "Media replaced", Message: info.Name})
	return nil
}

func (s *Shell) attach(frame *media.Frame) error {
	var stream capture.VideoStream
	if frame.Source.Kind == media.KindVideo {
		if !s.loader.IsCurrent(frame.Generation) {
			return media.ErrSuperseded
		}
		var err error
		if stream, err = s.capturer.OpenVideo(frame.Source.Ref); err != nil {
			return s.loadFailed(err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A stream opened for a load that lost the race is never attached.
	if !s.loader.IsCurrent(frame.Generation) || s.closed {
		if stream != nil {
			if err := stream.Close(); err != nil {
				s.log.Warn("failed to release stale video", slog.String("error", err.Error()))
			}
		}
		if !s.loader.IsCurrent(frame.Generation) {
			return media.ErrSuperseded
		}
		return ErrSessionClosed
	}
	var meta capture.Metadata
	if stream != nil {
		meta = s.capturer.SetStream(stream)
	} else {
		s.capturer.AttachImage(frame)
	}
	_, dims := s.capturer.Display()
	s.session.SetDimensions(dims)
	s.source = frame.Source
	if s.session.Len() == 0 {
		s.session.EnableDrawing()
	}
	s.log.Debug("media attached",
		slog.String("kind", frame.Source.Kind.String()),
		slog.Int("width", dims.Width),
		slog.Int("height", dims.Height),
		slog.Duration("duration", meta.Duration))
	return nil
}

func (s *Shell) loadFailed(err error) error {
	if errors.Is(err, media.ErrSuperseded) {
		return err
	}
	s.notifier.Notify(Notice{Level: LevelError, Title: "Failed to load media", Message: err.Error()})
	return err
}

func (s *Shell) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// with runs fn on the session while holding the lock.
func (s *Shell) with(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(s.session)
}

// Click handles a pointer click at pos on the media. A click on an existing
// marker selects it instead of adding a point. It reports whether a point was added.
func (s *Shell) Click(pos types.PixelPoint) (bool, error) {
	var added bool
	err := s.with(func(sess *Session) error {
		if i := sess.HitTest(pos, s.opts.HitRadius); i >= 0 {
			return sess.Select(i)
		}
		added = sess.AddPoint(pos, types.TargetSurface)
		return nil
	})
	return added, err
}

// AddPoint applies a click whose target the caller already resolved.
func (s *Shell) AddPoint(pos types.PixelPoint, target types.ClickTarget) (bool, error) {
	var added bool
	err := s.with(func(sess *Session) error {
		added = sess.AddPoint(pos, target)
		return nil
	})
	return added, err
}

// DoubleClick finalizes a polygon.
func (s *Shell) DoubleClick() (bool, error) {
	var closed bool
	err := s.with(func(sess *Session) error {
		closed = sess.FinalizePolygon()
		return nil
	})
	return closed, err
}

// DragPoint moves a point.
func (s *Shell) DragPoint(index int, pos types.PixelPoint) error {
	return s.with(func(sess *Session) error { return sess.DragPoint(index, pos) })
}

// Undo removes the last point.
func (s *Shell) Undo() (bool, error) {
	var removed bool
	err := s.with(func(sess *Session) error {
		removed = sess.Undo()
		return nil
	})
	return removed, err
}

// Clear removes all points.
func (s *Shell) Clear() error {
	return s.with(func(sess *Session) error {
		sess.Clear()
		return nil
	})
}

// EnableDrawing switches the editor into editing.
func (s *Shell) EnableDrawing() error {
	return s.with(func(sess *Session) error {
		sess.EnableDrawing()
		return nil
	})
}

// Select sets the selected point; -1 clears it.
func (s *Shell) Select(index int) error {
	return s.with(func(sess *Session) error { return sess.Select(index) })
}

// CaptureSnapshot stores a still of the current frame for the save payload.
func (s *Shell) CaptureSnapshot() (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	uri, err := s.capturer.CaptureSnapshot()
	if err != nil {
		s.notifier.Notify(Notice{Level: LevelError, Title: "Snapshot failed", Message: err.Error()})
		return "", err
	}

	s.mu.Lock()
	s.snapshot = uri
	s.mu.Unlock()
	s.notifier.Notify(Notice{Level: LevelSuccess, Title: "Snapshot captured"})
	return uri, nil
}

// Play starts video playback.
func (s *Shell) Play() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.capturer.Play()
}

// Pause pauses video playback.
func (s *Shell) Pause() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.capturer.Pause()
}

// Seek moves video playback to t and returns the clamped position.
func (s *Shell) Seek(t time.Duration) (time.Duration, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.capturer.Seek(t)
}

// Save validates the zone. On failure it returns a *ValidationError and
// nothing else changes. On success OnSave receives the points and snapshot
// and the session is closed.
func (s *Shell) Save() (types.Zone, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.Zone{}, ErrSessionClosed
	}
	if err := s.session.Validate(); err != nil {
		s.mu.Unlock()
		s.notifier.Notify(Notice{Level: LevelError, Title: "Invalid zone", Message: err.Error()})
		return types.Zone{}, err
	}
	zone := types.Zone{Mode: s.session.Mode(), Points: s.session.Points(), SnapshotURL: s.snapshot}
	s.closed = true
	s.mu.Unlock()

	s.release()
	if s.opts.OnSave != nil {
		s.opts.OnSave(zone.Points, zone.SnapshotURL)
	}
	s.notifier.Notify(Notice{Level: LevelSuccess, Title: "Zone saved", Message: fmt.Sprintf("%d points", len(zone.Points))})
	return zone, nil
}

// Cancel discards the session without validation.
func (s *Shell) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.release()
	if s.opts.OnCancel != nil {
		s.opts.OnCancel()
	}
	return nil
}

func (s *Shell) release() {
	s.loader.Invalidate()
	if err := s.capturer.Close(); err != nil {
		s.log.Warn("failed to release video", slog.String("error", err.Error()))
	}
}

// Closed reports whether the editor was saved or cancelled.
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Playback is the video transport state.
type Playback struct {
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Playing  bool          `json:"playing"`
}

// View is a read-only copy of the editor state.
type View struct {
	Mode           types.Mode         `json:"mode"`
	State          State              `json:"state"`
	Points         []types.ZonePoint  `json:"points"`
	PixelPoints    []types.PixelPoint `json:"pixelPoints"`
	DrawingEnabled bool               `json:"drawingEnabled"`
	Closed         bool               `json:"isClosed"`
	Selected       int                `json:"selectedPointIndex"`
	Dimensions     types.Dimensions   `json:"dimensions"`
	Media          media.Kind         `json:"media"`
	Snapshot       string             `json:"snapshotUrl,omitempty"`
	CanSave        bool               `json:"canSave"`
	Playback       *Playback          `json:"playback,omitempty"`
	SessionClosed  bool               `json:"sessionClosed"`
}

// View returns the current editor state.
func (s *Shell) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	shape := s.session.Shape()
	v := View{
		Mode:           s.session.Mode(),
		State:          s.session.State(),
		Points:         s.session.Points(),
		PixelPoints:    shape.Points,
		DrawingEnabled: s.session.DrawingEnabled(),
		Closed:         s.session.Closed(),
		Selected:       s.session.Selected(),
		Dimensions:     s.session.Dimensions(),
		Media:          s.source.Kind,
		Snapshot:       s.snapshot,
		CanSave:        s.session.Validate() == nil,
		SessionClosed:  s.closed,
	}
	if pos, dur, playing, ok := s.capturer.PlaybackState(); ok {
		v.Playback = &Playback{Position: pos, Duration: dur, Playing: playing}
	}
	return v
}

// Render draws the zone over the current frame. Video frames are refreshed
// to the playback position first.
func (s *Shell) Render() (image.Image, error) {
	if s.capturer.Kind() == media.KindVideo {
		if err := s.capturer.OnTimeUpdate(); err != nil {
			s.log.Debug("frame refresh failed", slog.String("error", err.Error()))
		}
	}
	background, dims := s.capturer.Display()

	s.mu.Lock()
	shape := s.session.Shape()
	if !dims.Valid() {
		dims = s.session.Dimensions()
	}
	s.mu.Unlock()

	if !dims.Valid() {
		dims = types.Dimensions{Width: s.loader.TargetWidth(), Height: s.loader.TargetWidth() * 3 / 4}
	}
	return render.Overlay(background, dims, shape, s.style), nil
}
