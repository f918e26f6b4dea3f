package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/types"
)

// ErrCaptureFailed marks a screenshot that could not be taken. The record is
// still saved without an image.
var ErrCaptureFailed = errors.New("capture failed")

// MaxScreenshotWidth is the widest screenshot kept; wider captures are scaled down.
const MaxScreenshotWidth = 1280

// capture takes a screenshot of tab. The browser can only capture the active
// tab of a window, so the target is brought to the front and the previously
// active tab is put back on every return path.
func (a *Archiver) capture(ctx context.Context, tab types.TabInfo) ([]byte, error) {
	a.capturing.Add(1)
	defer a.capturing.Add(-1)

	prev, err := a.browser.ActiveTab(ctx, tab.WindowID)
	if err != nil {
		// Focus is never moved without a tab to move it back to.
		return nil, fmt.Errorf("%w: active tab in window %d: %w", ErrCaptureFailed, tab.WindowID, err)
	}
	if prev.ID != tab.ID {
		defer a.restoreFocus(ctx, prev.ID)
		if err := a.browser.ActivateTab(ctx, tab.ID); err != nil {
			return nil, fmt.Errorf("%w: activate tab %d: %w", ErrCaptureFailed, tab.ID, err)
		}
		if err := a.sleep(ctx, a.settle); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}
	}

	raw, err := a.browser.CaptureVisible(ctx, tab.WindowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	png, err := downscale(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	return png, nil
}

func (a *Archiver) restoreFocus(ctx context.Context, tabID int) {
	// Restore even if the capture was cancelled.
	if err := a.browser.ActivateTab(context.WithoutCancel(ctx), tabID); err != nil {
		applog.Warn("archive.restore_focus", err, "tab", tabID)
	}
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// downscale re-encodes raw as PNG, no wider than MaxScreenshotWidth. A PNG
// that already fits is returned unchanged.
func downscale(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	fits := img.Bounds().Dx() <= MaxScreenshotWidth
	if fits && bytes.HasPrefix(raw, pngMagic) {
		return raw, nil
	}
	if !fits {
		img = imaging.Resize(img, MaxScreenshotWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
