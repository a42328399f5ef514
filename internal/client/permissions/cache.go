// Package permissions resolves the signed-in user's permission map through
// an encrypted client-side cache and answers permission checks from it.
package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/PermKeeper/internal/client/storage"
	"github.com/atinyakov/PermKeeper/internal/models"
	"go.uber.org/zap"
)

// Fetcher loads the permission payload from the source of truth.
type Fetcher interface {
	FetchPermissions(ctx context.Context) (models.Payload, error)
}

// Cache keeps an encrypted copy of the payload in a storage slot and falls
// back to the Fetcher when the slot is empty or unusable.
type Cache struct {
	slot         storage.Slot
	fetcher      Fetcher
	secret       string
	suite        storage.Suite
	superAdminID string
	log          *zap.Logger
}

// NewCache builds a Cache. The key is derived from secret on every use and
// never stored. superAdminID marks the super admin in cached payloads that
// carry no explicit flag; "" disables that.
func NewCache(slot storage.Slot, fetcher Fetcher, secret string, suite storage.Suite, superAdminID string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{slot: slot, fetcher: fetcher, secret: secret, suite: suite, superAdminID: superAdminID, log: log}
}

func (c *Cache) key() (*storage.Key, error) {
	return storage.DeriveKeyWithSuite(c.secret, c.suite)
}

// Load returns the cached payload. Any failure is a miss.
func (c *Cache) Load(ctx context.Context) (models.Payload, bool) {
	p, err := c.load(ctx)
	if err != nil {
		c.log.Debug("permission cache miss", zap.Error(err))
		return models.Payload{}, false
	}
	return p, true
}

func (c *Cache) load(ctx context.Context) (models.Payload, error) {
	raw, err := c.slot.Get(ctx)
	if err != nil {
		return models.Payload{}, err
	}

	var blob models.EncryptedBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return models.Payload{}, fmt.Errorf("decode blob: %w", err)
	}
	if !blob.Complete() {
		return models.Payload{}, errors.New("blob missing iv or data")
	}

	key, err := c.key()
	if err != nil {
		return models.Payload{}, err
	}
	plain, err := storage.Decrypt(key, blob)
	if err != nil {
		return models.Payload{}, err
	}

	// Other clients sharing the secret may write {currentUserId, moduleWisePermissions}
	// without the flag, so decode the way backend data is decoded.
	var data models.BackendData
	if err := json.Unmarshal([]byte(plain), &data); err != nil {
		return models.Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return data.ToPayload(c.superAdminID), nil
}

// Store encrypts p under a fresh nonce and overwrites the slot.
func (c *Cache) Store(ctx context.Context, p models.Payload) error {
	plain, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	key, err := c.key()
	if err != nil {
		return err
	}
	blob, err := storage.Encrypt(key, string(plain))
	if err != nil {
		return err
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode blob: %w", err)
	}
	return c.slot.Set(ctx, string(raw))
}

// Fetch loads the payload from the backend without touching the slot.
func (c *Cache) Fetch(ctx context.Context) (models.Payload, error) {
	p, err := c.fetcher.FetchPermissions(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	if p.ModuleWisePermissions == nil {
		p.ModuleWisePermissions = models.PermissionMap{}
	}
	return p, nil
}

// RefreshFromBackend fetches the payload, stores it and returns it. A store
// failure only costs the next load a round trip, so it is logged and
// swallowed.
func (c *Cache) RefreshFromBackend(ctx context.Context) (models.Payload, error) {
	p, err := c.Fetch(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	if err := c.Store(ctx, p); err != nil {
		c.log.Debug("permission cache store failed", zap.Error(err))
	}
	return p, nil
}

// Resolve returns the cached payload, or the backend's on a miss.
func (c *Cache) Resolve(ctx context.Context) (models.Payload, error) {
	if p, ok := c.Load(ctx); ok {
		c.log.Debug("permission cache hit", zap.String("user", string(p.CurrentUserID)))
		return p, nil
	}
	return c.RefreshFromBackend(ctx)
}

// Clear removes the cached snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	return c.slot.Clear(ctx)
}
