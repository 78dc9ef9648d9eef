package dashboard

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/hemobank/bo-dashboard/internal/refresh"
	"github.com/hemobank/bo-dashboard/internal/viewstate"
)

var (
	// ErrViewNotFound is returned for unknown view names
	ErrViewNotFound = errors.New("view not found")

	// ErrNotReady is returned by CheckReadiness while views are not mounted
	ErrNotReady = errors.New("views are not mounted")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service is what the render layer needs from the dashboard
type Service interface {
	// CheckReadiness reports whether the views are mounted
	CheckReadiness(ctx context.Context) error

	// ListViews returns the status of every view in configuration order
	ListViews(ctx context.Context) []ViewStatus

	// GetView returns the status of one view
	GetView(ctx context.Context, name string) (ViewStatus, error)

	// ForceRefresh starts a forced refresh of one view
	ForceRefresh(ctx context.Context, name string) error

	// SetParams replaces the query parameters of one view
	SetParams(ctx context.Context, name string, params map[string]string) error

	// AutoRefresh returns the shared auto-refresh preference
	AutoRefresh(ctx context.Context) bool

	// SetAutoRefresh writes the shared auto-refresh preference
	SetAutoRefresh(ctx context.Context, enabled bool)
}

// ViewStatus is the rendered state of a view together with its controls
type ViewStatus struct {
	Name string `json:"name"`
	viewstate.State

	AutoRefresh bool              `json:"autoRefresh"`
	Params      map[string]string `json:"params"`
	InFlight    bool              `json:"inFlight"`
	LastFetchAt time.Time         `json:"lastFetchAt,omitzero"`
}

var _ Service = (*Board)(nil)

// CheckReadiness implements Service
func (b *Board) CheckReadiness(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotReady
	}
	return nil
}

// ListViews implements Service
func (b *Board) ListViews(_ context.Context) []ViewStatus {
	statuses := make([]ViewStatus, 0, len(b.names))
	for _, name := range b.names {
		statuses = append(statuses, viewStatus(b.views[name]))
	}
	return statuses
}

// GetView implements Service
func (b *Board) GetView(_ context.Context, name string) (ViewStatus, error) {
	v, ok := b.views[name]
	if !ok {
		return ViewStatus{}, ErrViewNotFound
	}
	return viewStatus(v), nil
}

// ForceRefresh implements Service
func (b *Board) ForceRefresh(_ context.Context, name string) error {
	v, ok := b.views[name]
	if !ok {
		return ErrViewNotFound
	}
	v.ForceRefresh()
	return nil
}

// SetParams implements Service
func (b *Board) SetParams(_ context.Context, name string, params map[string]string) error {
	v, ok := b.views[name]
	if !ok {
		return ErrViewNotFound
	}
	v.SetParams(maps.Clone(params))
	return nil
}

func viewStatus(v *refresh.Coordinator) ViewStatus {
	gs := v.GateState()
	return ViewStatus{
		Name:        v.Name(),
		State:       v.Snapshot(),
		AutoRefresh: v.AutoRefresh(),
		Params:      v.Params(),
		InFlight:    gs.InFlight,
		LastFetchAt: gs.LastFetchAt,
	}
}
