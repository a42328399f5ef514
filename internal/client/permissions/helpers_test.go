package permissions

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/atinyakov/PermKeeper/internal/models"
)

// fakeFetcher counts calls and can be made to block until released.
type fakeFetcher struct {
	calls   atomic.Int32
	payload models.Payload
	err     error

	mu      sync.Mutex
	release chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) FetchPermissions(ctx context.Context) (models.Payload, error) {
	f.calls.Add(1)
	f.mu.Lock()
	release, entered := f.release, f.entered
	f.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return models.Payload{}, ctx.Err()
		}
	}
	return f.payload, f.err
}

// block makes subsequent fetches wait until the returned func is called.
func (f *fakeFetcher) block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	ch := f.release
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(ch) }) }
}

func blogEditor() models.Payload {
	return models.Payload{
		CurrentUserID:         "42",
		ModuleWisePermissions: models.PermissionMap{"Blog": {"Create", "Edit"}},
	}
}

const testSecret = "console-shared-secret"
