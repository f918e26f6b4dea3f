// Package protocol defines the messages the extension UI and the CLI exchange
// with the daemon: one request and one response type per action.
package protocol

import (
	"errors"

	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/types"
)

// Action names on the wire.
const (
	ActionGetArchivedTabs  = "getArchivedTabs"
	ActionSearchTabs       = "searchTabs"
	ActionRestoreTab       = "restoreTab"
	ActionDeleteTab        = "deleteTab"
	ActionUpdateTab        = "updateTab"
	ActionGetTabCount      = "getTabCount"
	ActionExportData       = "exportData"
	ActionImportData       = "importData"
	ActionClearAll         = "clearAll"
	ActionForceCheckNow    = "forceCheckNow"
	ActionGetSettings      = "getSettings"
	ActionUpdateSettings   = "updateSettings"
	ActionGetTabsByDomain  = "getTabsByDomain"
	ActionGetTabsByProject = "getTabsByProject"

	ActionGetTabsByDateRange = "getTabsByDateRange"
)

// Request is a message sent to the daemon. The set of implementations is closed.
type Request interface {
	Action() string
	request()
}

type GetArchivedTabs struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type SearchTabs struct {
	Query string `json:"query"`
}

type RestoreTab struct {
	URL string `json:"url"`
}

type DeleteTab struct {
	ID string `json:"id"`
}

// UpdateTab changes the user-editable fields of a record.
type UpdateTab struct {
	ID      string     `json:"id"`
	Updates TabUpdates `json:"updates"`
}

// TabUpdates holds the editable fields; omitted fields are left unchanged.
type TabUpdates struct {
	Tags    *[]string `json:"tags,omitempty"`
	Project *string   `json:"project,omitempty"`
	Title   *string   `json:"title,omitempty"`
}

// Fields converts the update for the store.
func (u TabUpdates) Fields() types.UpdateFields {
	return types.UpdateFields{Tags: u.Tags, Project: u.Project, Title: u.Title}
}

type GetTabCount struct{}

type ExportData struct{}

type ImportData struct {
	Data []Record `json:"data"`
}

// ClearAll deletes every record and forgets every tracked tab.
type ClearAll struct{}

// ForceCheckNow runs an idle scan immediately.
type ForceCheckNow struct{}

type GetSettings struct{}

type UpdateSettings struct {
	Settings settings.Patch `json:"settings"`
}

type GetTabsByDomain struct {
	Domain string `json:"domain"`
}

type GetTabsByProject struct {
	Project string `json:"project"`
}

// GetTabsByDateRange lists records archived between two Unix millisecond
// timestamps, both inclusive.
type GetTabsByDateRange struct {
	StartDate int64 `json:"startDate"`
	EndDate   int64 `json:"endDate"`
}

func (GetArchivedTabs) Action() string  { return ActionGetArchivedTabs }
func (SearchTabs) Action() string       { return ActionSearchTabs }
func (RestoreTab) Action() string       { return ActionRestoreTab }
func (DeleteTab) Action() string        { return ActionDeleteTab }
func (UpdateTab) Action() string        { return ActionUpdateTab }
func (GetTabCount) Action() string      { return ActionGetTabCount }
func (ExportData) Action() string       { return ActionExportData }
func (ImportData) Action() string       { return ActionImportData }
func (ClearAll) Action() string         { return ActionClearAll }
func (ForceCheckNow) Action() string    { return ActionForceCheckNow }
func (GetSettings) Action() string      { return ActionGetSettings }
func (UpdateSettings) Action() string   { return ActionUpdateSettings }
func (GetTabsByDomain) Action() string  { return ActionGetTabsByDomain }
func (GetTabsByProject) Action() string { return ActionGetTabsByProject }

func (GetArchivedTabs) request()  {}
func (SearchTabs) request()       {}
func (RestoreTab) request()       {}
func (DeleteTab) request()        {}
func (UpdateTab) request()        {}
func (GetTabCount) request()      {}
func (ExportData) request()       {}
func (ImportData) request()       {}
func (ClearAll) request()         {}
func (ForceCheckNow) request()    {}
func (GetSettings) request()      {}
func (UpdateSettings) request()   {}
func (GetTabsByDomain) request()  {}
func (GetTabsByProject) request() {}

func (GetTabsByDateRange) Action() string { return ActionGetTabsByDateRange }
func (GetTabsByDateRange) request()       {}

// Response is a reply from the daemon. Every response embeds Status.
type Response interface {
	status() Status
}

// Status is the common part of every response.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s Status) status() Status { return s }

// Err returns the failure as an error, or nil on success.
func (s Status) Err() error {
	if s.Success {
		return nil
	}
	if s.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(s.Error)
}

// OK is a bare success response.
func OK() Status { return Status{Success: true} }

// Fail is a failure response carrying err's message.
func Fail(err error) Status { return Status{Error: err.Error()} }

// StatusOf returns the Status of any response.
func StatusOf(r Response) Status { return r.status() }

// TabsResponse answers getArchivedTabs and the getTabsBy* lookups.
type TabsResponse struct {
	Status
	Tabs []Record `json:"tabs"`
}

// ExportResponse answers exportData.
type ExportResponse struct {
	Status
	Data []Record `json:"data"`
}

// SearchResponse answers searchTabs.
type SearchResponse struct {
	Status
	Results []Record `json:"results"`
}

// CountResponse answers getTabCount.
type CountResponse struct {
	Status
	Count int `json:"count"`
}

// ImportResponse answers importData. Duplicates lists ids that were skipped.
type ImportResponse struct {
	Status
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// ForceCheckResponse answers forceCheckNow.
type ForceCheckResponse struct {
	Status
	TrackedTabs int `json:"trackedTabs"`
	Archived    int `json:"archived"`
}

// SettingsResponse answers getSettings and updateSettings.
type SettingsResponse struct {
	Status
	Settings settings.Settings `json:"settings"`
}
