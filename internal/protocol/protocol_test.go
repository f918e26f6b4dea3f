package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/types"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		in   string
		want Request
	}{
		{`{"action":"getArchivedTabs","limit":20,"offset":40}`, GetArchivedTabs{Limit: 20, Offset: 40}},
		{`{"action":"getArchivedTabs"}`, GetArchivedTabs{}},
		{`{"action":"searchTabs","query":"golang"}`, SearchTabs{Query: "golang"}},
		{`{"action":"restoreTab","url":"https://go.dev"}`, RestoreTab{URL: "https://go.dev"}},
		{`{"action":"deleteTab","id":"abc"}`, DeleteTab{ID: "abc"}},
		{`{"action":"getTabCount"}`, GetTabCount{}},
		{`{"action":"clearAll"}`, ClearAll{}},
		{`{"action":"forceCheckNow"}`, ForceCheckNow{}},
		{`{"action":"getTabsByDomain","domain":"go.dev"}`, GetTabsByDomain{Domain: "go.dev"}},
		{`{"action":"getTabsByDateRange","startDate":0,"endDate":1700000000000}`, GetTabsByDateRange{EndDate: 1700000000000}},
	}
	for _, tt := range tests {
		got, err := DecodeRequest([]byte(tt.in))
		if err != nil {
			t.Errorf("DecodeRequest(%s): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DecodeRequest(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDecodeUpdateTab(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"action":"updateTab","id":"x","updates":{"tags":["a","b"],"project":"p"}}`))
	if err != nil {
		t.Fatal(err)
	}
	u, ok := req.(UpdateTab)
	if !ok {
		t.Fatalf("got %T, want UpdateTab", req)
	}
	f := u.Updates.Fields()
	if f.Tags == nil || len(*f.Tags) != 2 || f.Project == nil || *f.Project != "p" || f.Title != nil {
		t.Errorf("fields = %+v", f)
	}
}

func TestDecodeUpdateSettings(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"action":"updateSettings","settings":{"idleThreshold":5}}`))
	if err != nil {
		t.Fatal(err)
	}
	u := req.(UpdateSettings)
	if u.Settings.IdleThreshold == nil || *u.Settings.IdleThreshold != 5 || u.Settings.IsPro != nil {
		t.Errorf("patch = %+v", u.Settings)
	}
}

func TestDecodeUnknownAction(t *testing.T) {
	for _, in := range []string{`{"action":"launchRockets"}`, `{}`} {
		_, err := DecodeRequest([]byte(in))
		if !errors.Is(err, ErrUnknownAction) {
			t.Errorf("DecodeRequest(%s) err = %v, want ErrUnknownAction", in, err)
		}
	}
	if _, err := DecodeRequest([]byte(`not json`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestEncodeRequestAddsAction(t *testing.T) {
	data, err := EncodeRequest(SearchTabs{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if back != (SearchTabs{Query: "q"}) {
		t.Errorf("round trip = %#v", back)
	}

	data, err = EncodeRequest(ClearAll{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"action":"clearAll"}` {
		t.Errorf("EncodeRequest(ClearAll) = %s", data)
	}
}

func TestFailureResponseShape(t *testing.T) {
	data, err := EncodeResponse(Fail(ErrUnknownAction))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"success":false,"error":"Unknown action"}` {
		t.Errorf("failure response = %s", data)
	}
}

func TestCountResponseRoundTrip(t *testing.T) {
	data, err := EncodeResponse(CountResponse{Status: OK(), Count: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"success":true`) || !strings.Contains(string(data), `"count":3`) {
		t.Errorf("encoded = %s", data)
	}
	var out CountResponse
	if err := DecodeResponse(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 3 {
		t.Errorf("Count = %d", out.Count)
	}

	var failed CountResponse
	err = DecodeResponse([]byte(`{"success":false,"error":"boom"}`), &failed)
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRecordScreenshotAsDataURL(t *testing.T) {
	rec := types.ArchivedTab{
		ID:           "id1",
		URL:          "https://go.dev",
		Title:        "Go",
		Domain:       "go.dev",
		Timestamp:    time.UnixMilli(1_700_000_000_123),
		IdleDuration: 65 * time.Second,
		Screenshot:   []byte{0x89, 'P', 'N', 'G'},
		Archived:     true,
	}
	wire := FromArchived(rec)
	if !strings.HasPrefix(wire.Screenshot, "data:image/png;base64,") {
		t.Errorf("screenshot = %q", wire.Screenshot)
	}
	if wire.Timestamp != 1_700_000_000_123 || wire.IdleDuration != 65000 {
		t.Errorf("wire = %+v", wire)
	}
	if wire.Tags == nil {
		t.Error("tags should encode as [] not null")
	}

	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	back, err := decoded.ToArchived()
	if err != nil {
		t.Fatal(err)
	}
	if string(back.Screenshot) != string(rec.Screenshot) || !back.Timestamp.Equal(rec.Timestamp) || back.IdleDuration != rec.IdleDuration {
		t.Errorf("round trip = %+v", back)
	}
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := DecodeDataURL("data:image/jpeg;base64,aGVsbG8=")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/jpeg" || string(data) != "hello" {
		t.Errorf("got %q %q", mime, data)
	}
	for _, bad := range []string{"https://x", "data:image/png,raw", "data:image/png;base64"} {
		if _, _, err := DecodeDataURL(bad); err == nil {
			t.Errorf("DecodeDataURL(%q) should fail", bad)
		}
	}
}

func TestRecordWithoutIDRejected(t *testing.T) {
	if _, err := (Record{URL: "https://x"}).ToArchived(); err == nil {
		t.Error("expected error for missing id")
	}
}
