package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabecho/internal/types"
)

// Record is the wire form of an archived tab, field-compatible with the
// extension's own records.
type Record struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	FaviconURL   string   `json:"favIconUrl,omitempty"`
	Timestamp    int64    `json:"timestamp"` // unix ms
	Screenshot   string   `json:"screenshot,omitempty"`
	Tags         []string `json:"tags"`
	Project      string   `json:"project,omitempty"`
	Domain       string   `json:"domain"`
	Archived     bool     `json:"archived"`
	IdleDuration int64    `json:"idleDuration,omitempty"` // ms
}

// FromArchived converts a stored record for transport.
func FromArchived(rec types.ArchivedTab) Record {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	r := Record{
		ID:           rec.ID,
		URL:          rec.URL,
		Title:        rec.Title,
		FaviconURL:   rec.FaviconURL,
		Timestamp:    rec.Timestamp.UnixMilli(),
		Tags:         tags,
		Project:      rec.Project,
		Domain:       rec.Domain,
		Archived:     true,
		IdleDuration: rec.IdleDuration.Milliseconds(),
	}
	if len(rec.Screenshot) > 0 {
		r.Screenshot = EncodeDataURL("image/png", rec.Screenshot)
	}
	return r
}

// FromArchivedList converts a slice of stored records. It never returns nil.
func FromArchivedList(recs []types.ArchivedTab) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromArchived(rec))
	}
	return out
}

// ToArchived converts a wire record back into a stored record.
func (r Record) ToArchived() (types.ArchivedTab, error) {
	if r.ID == "" {
		return types.ArchivedTab{}, errors.New("record has no id")
	}
	rec := types.ArchivedTab{
		ID:           r.ID,
		URL:          r.URL,
		Title:        r.Title,
		FaviconURL:   r.FaviconURL,
		Domain:       r.Domain,
		Timestamp:    time.UnixMilli(r.Timestamp),
		IdleDuration: time.Duration(r.IdleDuration) * time.Millisecond,
		Tags:         r.Tags,
		Project:      r.Project,
		Archived:     true,
	}
	if r.Screenshot != "" {
		_, data, err := DecodeDataURL(r.Screenshot)
		if err != nil {
			return types.ArchivedTab{}, fmt.Errorf("record %s: %w", r.ID, err)
		}
		rec.Screenshot = data
	}
	return rec, nil
}

// ToArchivedList converts wire records, failing on the first malformed one.
func ToArchivedList(recs []Record) ([]types.ArchivedTab, error) {
	out := make([]types.ArchivedTab, 0, len(recs))
	for _, r := range recs {
		rec, err := r.ToArchived()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeDataURL returns data as a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data URL into its media type and payload.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mime, data, nil
}
