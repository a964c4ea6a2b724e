package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/rhsession/pkg/cryptox"
)

// Sealed wraps a store so records are encrypted with passphrase before they
// reach it. Records written before sealing was enabled are still readable
// and get sealed on the next Save.
func Sealed(next Store, passphrase string) Store {
	return &sealedStore{next: next, passphrase: passphrase}
}

type sealedStore struct {
	next       Store
	passphrase string
}

func (s *sealedStore) Save(ctx context.Context, key string, data []byte) error {
	sealed, err := cryptox.Seal(s.passphrase, data)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	return s.next.Save(ctx, key, sealed)
}

func (s *sealedStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !cryptox.IsSealed(data) {
		return data, nil
	}

	plain, err := cryptox.Open(s.passphrase, data)
	if errors.Is(err, cryptox.ErrDecrypt) {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err != nil {
		return nil, err
	}
	return plain, nil
}

func (s *sealedStore) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

// UpdatedAt forwards to the wrapped store when it tracks save times.
func (s *sealedStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	ts, ok := s.next.(Timestamper)
	if !ok {
		return time.Time{}, errors.ErrUnsupported
	}
	return ts.UpdatedAt(ctx, key)
}
