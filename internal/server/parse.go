package server

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/types"
)

// Event names carried by event frames.
const (
	EventTabCreated         = "tabCreated"
	EventTabActivated       = "tabActivated"
	EventTabUpdated         = "tabUpdated"
	EventTabRemoved         = "tabRemoved"
	EventWindowFocusChanged = "windowFocusChanged"
	EventAlarm              = "alarm"
)

// wireTab is the JSON shape of a tabs.Tab as sent by the extension.
type wireTab struct {
	ID         int    `json:"id"`
	WindowID   int    `json:"windowId"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl"`
	Active     bool   `json:"active"`
	Status     string `json:"status"`
}

// ParseTab decodes one tab.
func ParseTab(data json.RawMessage) (types.TabInfo, error) {
	var wt wireTab
	if err := json.Unmarshal(data, &wt); err != nil {
		return types.TabInfo{}, err
	}
	return types.TabInfo{
		ID:         wt.ID,
		WindowID:   wt.WindowID,
		URL:        wt.URL,
		Title:      wt.Title,
		FaviconURL: wt.FavIconURL,
		Active:     wt.Active,
		Status:     wt.Status,
	}, nil
}

// ParseEvent converts an event frame into a browser event.
func ParseEvent(msg IncomingMsg) (browser.Event, error) {
	switch msg.Event {
	case EventTabCreated:
		tab, err := ParseTab(msg.Tab)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", msg.Event, err)
		}
		return browser.TabCreated{Tab: tab}, nil
	case EventTabActivated:
		return browser.TabActivated{TabID: msg.TabID, WindowID: msg.WindowID}, nil
	case EventTabUpdated:
		tab, err := ParseTab(msg.Tab)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", msg.Event, err)
		}
		return browser.TabUpdated{TabID: msg.TabID, Tab: tab}, nil
	case EventTabRemoved:
		return browser.TabRemoved{TabID: msg.TabID}, nil
	case EventWindowFocusChanged:
		return browser.WindowFocusChanged{WindowID: msg.WindowID}, nil
	case EventAlarm:
		return browser.AlarmFired{Name: msg.Name}, nil
	}
	return nil, fmt.Errorf("unknown event %q", msg.Event)
}
