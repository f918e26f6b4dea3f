package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/protocol"
	"github.com/lotas/tabecho/internal/types"
)

// Call actions understood by the extension.
const (
	CallQueryTabs      = "queryTabs"
	CallGetTab         = "getTab"
	CallActiveTab      = "activeTab"
	CallActivateTab    = "activateTab"
	CallCaptureVisible = "captureVisible"
	CallCloseTab       = "closeTab"
	CallCreateTab      = "createTab"
	CallNotify         = "notify"
)

// CaptureFormat is the image format requested from captureVisible.
const CaptureFormat = "png"

// codeNotFound marks a call response for a tab or window that no longer exists.
const codeNotFound = "notFound"

var _ browser.Browser = (*Server)(nil)

// Call sends a call frame and waits for the matching response. It fails
// with ErrNotConnected if the extension is gone or disconnects mid-call.
func (s *Server) Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	s.mu.Lock()
	done := s.connDone
	s.mu.Unlock()
	if done == nil {
		return IncomingMsg{}, ErrNotConnected
	}

	msg.Type = FrameCall
	msg.ID = "c" + strconv.FormatUint(s.seq.Add(1), 10)
	ch := make(chan IncomingMsg, 1)
	s.pending.Store(msg.ID, ch)
	defer s.pending.Delete(msg.ID)

	if err := s.send(msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("call %s: %w", msg.Action, err)
	}

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.OK != nil && !*resp.OK {
			if resp.Code == codeNotFound {
				return resp, fmt.Errorf("call %s: %w", msg.Action, browser.ErrTabNotFound)
			}
			return resp, fmt.Errorf("call %s: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-done:
		return IncomingMsg{}, fmt.Errorf("call %s: %w", msg.Action, ErrNotConnected)
	case <-timer.C:
		return IncomingMsg{}, fmt.Errorf("call %s: timed out after %s", msg.Action, s.callTimeout)
	case <-ctx.Done():
		return IncomingMsg{}, ctx.Err()
	}
}

func (s *Server) OpenTabIDs(ctx context.Context) ([]int, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: CallQueryTabs})
	if err != nil {
		return nil, err
	}
	return resp.TabIDs, nil
}

func (s *Server) GetTab(ctx context.Context, tabID int) (types.TabInfo, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: CallGetTab, TabID: tabID})
	if err != nil {
		return types.TabInfo{}, err
	}
	return tabFromResponse(resp)
}

func (s *Server) ActiveTab(ctx context.Context, windowID int) (types.TabInfo, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: CallActiveTab, WindowID: windowID})
	if err != nil {
		return types.TabInfo{}, err
	}
	return tabFromResponse(resp)
}

func (s *Server) ActivateTab(ctx context.Context, tabID int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: CallActivateTab, TabID: tabID})
	return err
}

func (s *Server) CaptureVisible(ctx context.Context, windowID int) ([]byte, error) {
	resp, err := s.Call(ctx, OutgoingMsg{Action: CallCaptureVisible, WindowID: windowID, Format: CaptureFormat})
	if err != nil {
		return nil, err
	}
	_, data, err := protocol.DecodeDataURL(resp.DataURL)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", CallCaptureVisible, err)
	}
	return data, nil
}

func (s *Server) CloseTab(ctx context.Context, tabID int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: CallCloseTab, TabID: tabID})
	return err
}

func (s *Server) CreateTab(ctx context.Context, url string, active bool) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: CallCreateTab, URL: url, Active: active})
	return err
}

func (s *Server) Notify(ctx context.Context, title, message string) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: CallNotify, Title: title, Message: message})
	return err
}

func tabFromResponse(resp IncomingMsg) (types.TabInfo, error) {
	if len(resp.Tab) == 0 || string(resp.Tab) == "null" {
		return types.TabInfo{}, browser.ErrTabNotFound
	}
	tab, err := ParseTab(resp.Tab)
	if err != nil {
		return types.TabInfo{}, fmt.Errorf("parse tab: %w", err)
	}
	return tab, nil
}
