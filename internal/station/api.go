package station

import (
	"context"

	"github.com/orchidlab/synthctl/internal/chem"
	"github.com/orchidlab/synthctl/internal/taskgraph"
)

// API is the upper-computer surface the core depends on. The HTTP
// client implements it; coordinator tests substitute a mock.
type API interface {
	chem.Registry

	// Login exchanges credentials for a bearer token and caches it on
	// the client.
	Login(ctx context.Context, user, pass string) error
	// ClearToken drops the cached token, forcing the next Login.
	ClearToken()
	// Authenticated reports whether a token is cached.
	Authenticated() bool

	StationState(ctx context.Context) (State, error)
	ResourceInfo(ctx context.Context, filter string) ([]InventoryRow, error)
	BatchInTray(ctx context.Context, reqs []TrayLoad) error
	BatchOutTray(ctx context.Context, items []TrayDischarge, mode string) error
	GloveboxEnv(ctx context.Context) (*GloveboxEnv, error)

	AddTask(ctx context.Context, payload *taskgraph.Payload) (int64, error)
	StartTask(ctx context.Context, taskID int64) error
	TaskInfo(ctx context.Context, taskID int64) (*TaskInfo, error)
	TaskOpInfo(ctx context.Context, taskID int64) (*TaskOpInfo, error)
	TaskList(ctx context.Context, opts TaskListOptions) ([]TaskInfo, int, error)
	CheckTaskResource(ctx context.Context, taskID int64) (*ResourceCheck, error)

	DeviceInit(ctx context.Context) error
	ShelfHome(ctx context.Context, position string) error
}
