package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/protocol"
)

// Handle answers one request. It never panics and never returns nil: any
// failure becomes a {success:false} response.
func (e *Engine) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if req == nil {
		return protocol.Fail(protocol.ErrUnknownAction)
	}
	resp, err := e.dispatch(ctx, req)
	if err != nil {
		applog.Error("message.failed", err, "action", req.Action())
		return protocol.Fail(err)
	}
	return resp
}

// HandleRaw decodes and answers a wire message.
func (e *Engine) HandleRaw(ctx context.Context, data []byte) protocol.Response {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		if !errors.Is(err, protocol.ErrUnknownAction) {
			applog.Warn("message.decode", err)
		}
		return protocol.Fail(err)
	}
	return e.Handle(ctx, req)
}

func (e *Engine) dispatch(ctx context.Context, req protocol.Request) (resp protocol.Response, err error) {
	defer recoverPanic(req.Action(), &err)

	switch r := req.(type) {
	case protocol.GetArchivedTabs:
		recs, err := e.store.List(ctx, r.Limit, r.Offset)
		if err != nil {
			return nil, err
		}
		return protocol.TabsResponse{Status: protocol.OK(), Tabs: protocol.FromArchivedList(recs)}, nil

	case protocol.SearchTabs:
		recs, err := e.store.Search(ctx, r.Query)
		if err != nil {
			return nil, err
		}
		return protocol.SearchResponse{Status: protocol.OK(), Results: protocol.FromArchivedList(recs)}, nil

	case protocol.RestoreTab:
		if r.URL == "" {
			return nil, errors.New("restoreTab: url is required")
		}
		if err := e.browser.CreateTab(ctx, r.URL, true); err != nil {
			return nil, fmt.Errorf("open tab: %w", err)
		}
		return protocol.OK(), nil

	case protocol.DeleteTab:
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.store.Delete(ctx, r.ID); err != nil {
			return nil, err
		}
		return protocol.OK(), nil

	case protocol.UpdateTab:
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.store.Update(ctx, r.ID, r.Updates.Fields()); err != nil {
			return nil, err
		}
		return protocol.OK(), nil

	case protocol.GetTabCount:
		n, err := e.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.CountResponse{Status: protocol.OK(), Count: n}, nil

	case protocol.ExportData:
		recs, err := e.store.ExportAll(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.ExportResponse{Status: protocol.OK(), Data: protocol.FromArchivedList(recs)}, nil

	case protocol.ImportData:
		recs, err := protocol.ToArchivedList(r.Data)
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		res, err := e.store.ImportMany(ctx, recs)
		if err != nil {
			return nil, err
		}
		applog.Info("message.imported", "imported", res.Imported, "duplicates", len(res.Duplicates))
		return protocol.ImportResponse{Status: protocol.OK(), Imported: res.Imported, Duplicates: res.Duplicates}, nil

	case protocol.ClearAll:
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.store.Clear(ctx); err != nil {
			return nil, err
		}
		e.tracker.Clear()
		applog.Info("message.cleared")
		return protocol.OK(), nil

	case protocol.ForceCheckNow:
		res, err := e.scan(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.ForceCheckResponse{Status: protocol.OK(), TrackedTabs: res.Tracked, Archived: res.Archived}, nil

	case protocol.GetSettings:
		cfg, err := e.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.SettingsResponse{Status: protocol.OK(), Settings: cfg}, nil

	case protocol.UpdateSettings:
		if err := e.settings.Update(ctx, r.Settings); err != nil {
			return nil, err
		}
		cfg, err := e.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		applog.Info("settings.updated", "idleThreshold", cfg.IdleThreshold, "isPro", cfg.IsPro, "autoArchive", cfg.AutoArchive)
		return protocol.SettingsResponse{Status: protocol.OK(), Settings: cfg}, nil

	case protocol.GetTabsByDomain:
		recs, err := e.store.ByDomain(ctx, r.Domain)
		if err != nil {
			return nil, err
		}
		return protocol.TabsResponse{Status: protocol.OK(), Tabs: protocol.FromArchivedList(recs)}, nil

	case protocol.GetTabsByProject:
		recs, err := e.store.ByProject(ctx, r.Project)
		if err != nil {
			return nil, err
		}
		return protocol.TabsResponse{Status: protocol.OK(), Tabs: protocol.FromArchivedList(recs)}, nil

	case protocol.GetTabsByDateRange:
		recs, err := e.store.ByRange(ctx, time.UnixMilli(r.StartDate), time.UnixMilli(r.EndDate))
		if err != nil {
			return nil, err
		}
		return protocol.TabsResponse{Status: protocol.OK(), Tabs: protocol.FromArchivedList(recs)}, nil
	}
	return nil, protocol.ErrUnknownAction
}
