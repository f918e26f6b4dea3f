package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrUnknownAction is returned for an action name outside the protocol. Its
// text is what the extension UI expects to see.
var ErrUnknownAction = errors.New("Unknown action")

// DecodeRequest parses a {"action": ..., ...} message into its request type.
func DecodeRequest(data []byte) (Request, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	req, err := newRequest(head.Action)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", head.Action, err)
	}
	return deref(req), nil
}

// newRequest returns a pointer to a zero request for action.
func newRequest(action string) (any, error) {
	switch action {
	case ActionGetArchivedTabs:
		return &GetArchivedTabs{}, nil
	case ActionSearchTabs:
		return &SearchTabs{}, nil
	case ActionRestoreTab:
		return &RestoreTab{}, nil
	case ActionDeleteTab:
		return &DeleteTab{}, nil
	case ActionUpdateTab:
		return &UpdateTab{}, nil
	case ActionGetTabCount:
		return &GetTabCount{}, nil
	case ActionExportData:
		return &ExportData{}, nil
	case ActionImportData:
		return &ImportData{}, nil
	case ActionClearAll:
		return &ClearAll{}, nil
	case ActionForceCheckNow:
		return &ForceCheckNow{}, nil
	case ActionGetSettings:
		return &GetSettings{}, nil
	case ActionUpdateSettings:
		return &UpdateSettings{}, nil
	case ActionGetTabsByDomain:
		return &GetTabsByDomain{}, nil
	case ActionGetTabsByProject:
		return &GetTabsByProject{}, nil
	case ActionGetTabsByDateRange:
		return &GetTabsByDateRange{}, nil
	}
	return nil, ErrUnknownAction
}

func deref(p any) Request {
	switch r := p.(type) {
	case *GetArchivedTabs:
		return *r
	case *SearchTabs:
		return *r
	case *RestoreTab:
		return *r
	case *DeleteTab:
		return *r
	case *UpdateTab:
		return *r
	case *GetTabCount:
		return *r
	case *ExportData:
		return *r
	case *ImportData:
		return *r
	case *ClearAll:
		return *r
	case *ForceCheckNow:
		return *r
	case *GetSettings:
		return *r
	case *UpdateSettings:
		return *r
	case *GetTabsByDomain:
		return *r
	case *GetTabsByProject:
		return *r
	case *GetTabsByDateRange:
		return *r
	}
	panic(fmt.Sprintf("protocol: unhandled request type %T", p))
}

// EncodeRequest renders req with its action name.
func EncodeRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Action(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Action(), err)
	}
	action, _ := json.Marshal(req.Action())
	fields["action"] = action
	return json.Marshal(fields)
}

// EncodeResponse renders a response.
func EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse parses data into out and returns the remote failure, if any.
func DecodeResponse(data []byte, out Response) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return out.status().Err()
}
