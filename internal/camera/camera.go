package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
)

// FrameSource holds the most recent camera frame pushed by the client. It is
// the single owner of the camera state: disabling drops the held frame and
// further pushes until re-enabled.
type FrameSource struct {
	mu      sync.Mutex
	enabled bool
	latest  string // base64 JPEG, already mirrored
}

func NewFrameSource() *FrameSource {
	return &FrameSource{enabled: true}
}

// SetEnabled toggles the camera. Disabling tears down the held frame so a
// stale capture cannot leak into a later send.
func (f *FrameSource) SetEnabled(on bool) {
	f.mu.Lock()
	f.enabled = on
	if !on {
		f.latest = ""
	}
	f.mu.Unlock()
}

func (f *FrameSource) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Push ingests a raw base64 JPEG frame from the video stream, mirrors it
// horizontally, and stores it as the current frame. Frames pushed while the
// camera is disabled are dropped.
func (f *FrameSource) Push(b64 string) error {
	f.mu.Lock()
	enabled := f.enabled
	f.mu.Unlock()
	if !enabled {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("camera: decode frame: %w", err)
	}
	mirrored, err := mirrorJPEG(raw)
	if err != nil {
		return fmt.Errorf("camera: mirror frame: %w", err)
	}
	f.mu.Lock()
	if f.enabled {
		f.latest = base64.StdEncoding.EncodeToString(mirrored)
	}
	f.mu.Unlock()
	return nil
}

// CaptureFrame returns the current mirrored frame as base64 JPEG, or "" when
// the camera is disabled or no frame has arrived yet.
func (f *FrameSource) CaptureFrame() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return ""
	}
	return f.latest
}

func mirrorJPEG(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, mirror(img), &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mirror flips an image horizontally.
func mirror(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(b.Dx()-1-x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
