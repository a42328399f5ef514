package storage

import (
	"context"
	"fmt"
)

// Options selects and configures a Slot driver.
type Options struct {
	Driver      Driver
	Dir         string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the configured slot. The returned close func releases any
// connection the driver holds and is never nil.
func Open(ctx context.Context, opts Options) (Slot, func() error, error) {
	noop := func() error { return nil }

	switch opts.Driver {
	case DriverFile, "":
		s, err := NewFileSlot(opts.Dir, SlotKey)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case DriverMemory:
		return NewMemorySlot(), noop, nil
	case DriverRedis:
		client, err := DialRedis(ctx, opts.RedisAddr)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisSlot(client, opts.RedisPrefix, SlotKey), client.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
