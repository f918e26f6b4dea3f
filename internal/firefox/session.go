// Package firefox reads Firefox profiles and session files for offline sweeps.
package firefox

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/types"
	"github.com/pierrec/lz4/v4"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if string(data[:len(mozLz4Magic)]) != string(mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	dst := make([]byte, binary.LittleEndian.Uint32(data[8:12]))
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

// SessionTab is an open tab read from a session file. Group is the name of
// the Firefox tab group holding it, if any. Selected marks the active tab of
// its window.
type SessionTab struct {
	types.TrackedTab
	Group    string
	Selected bool
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Group        string     `json:"groupId"`
}

type rawGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawWindow struct {
	Tabs     []rawTab   `json:"tabs"`
	Groups   []rawGroup `json:"groups"`
	Selected int        `json:"selected"` // 1-based index of the active tab
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// ParseSession parses session JSON into tabs. Each tab's lastAccessed becomes
// its LastActiveAt. Tab ids are assigned in session order starting at 1.
func ParseSession(data []byte) ([]SessionTab, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	var tabs []SessionTab
	nextID := 1
	for winIdx, window := range raw.Windows {
		groups := make(map[string]string, len(window.Groups))
		for _, g := range window.Groups {
			groups[g.ID] = g.Name
		}

		for tabIdx, rt := range window.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}
			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			tabs = append(tabs, SessionTab{
				TrackedTab: types.TrackedTab{
					TabID:        nextID,
					WindowID:     winIdx,
					URL:          entry.URL,
					Title:        entry.Title,
					FaviconURL:   rt.Image,
					LastActiveAt: time.UnixMilli(rt.LastAccessed),
				},
				Group:    groups[rt.Group],
				Selected: tabIdx+1 == window.Selected,
			})
			nextID++
		}
	}
	return tabs, nil
}

// ReadSessionFile reads and parses a Firefox session recovery file from the given profile directory.
// It tries recovery.jsonlz4 first (active session), then previous.jsonlz4 (last closed session).
func ReadSessionFile(profileDir string) ([]SessionTab, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range []string{"recovery.jsonlz4", "previous.jsonlz4"} {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}
