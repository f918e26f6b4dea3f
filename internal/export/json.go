// Package export renders the archive as backup documents and markdown.
package export

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/protocol"
	"github.com/lotas/tabecho/internal/types"
	"github.com/pierrec/lz4/v4"
)

// BackupVersion is the version written into new backup documents.
const BackupVersion = 1

// lz4FrameMagic is the first four bytes of an lz4 frame.
var lz4FrameMagic = []byte{0x04, 0x22, 0x4d, 0x18}

type backup struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Tabs       []protocol.Record `json:"tabs"`
}

// JSON formats records as a backup document. Screenshots are embedded as
// data URLs.
func JSON(records []types.ArchivedTab, now time.Time) ([]byte, error) {
	out := backup{
		Version:    BackupVersion,
		ExportedAt: now.UTC(),
		Tabs:       protocol.FromArchivedList(records),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ParseJSON reads a backup document. A bare array of records, as returned by
// the exportData message, is accepted too.
func ParseJSON(data []byte) ([]types.ArchivedTab, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("parse backup: empty input")
	}

	var records []protocol.Record
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse backup: %w", err)
		}
	} else {
		var doc backup
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse backup: %w", err)
		}
		if doc.Version > BackupVersion {
			return nil, fmt.Errorf("parse backup: unsupported version %d", doc.Version)
		}
		records = doc.Tabs
	}

	tabs, err := protocol.ToArchivedList(records)
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	return tabs, nil
}

// WriteBackup writes a backup document to w, lz4-framed when compress is set.
func WriteBackup(w io.Writer, records []types.ArchivedTab, now time.Time, compress bool) error {
	data, err := JSON(records, now)
	if err != nil {
		return err
	}
	if !compress {
		_, err := w.Write(data)
		return err
	}

	zw := lz4.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress backup: %w", err)
	}
	return zw.Close()
}

// ReadBackup reads a backup written by WriteBackup, detecting lz4 framing
// from the magic bytes.
func ReadBackup(r io.Reader) ([]types.ArchivedTab, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(lz4FrameMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, lz4FrameMagic) {
		src = lz4.NewReader(br)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return ParseJSON(data)
}
