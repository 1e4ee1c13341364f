//go:build integration

package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/outbox"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/utils/testutils"
)

func TestOutboxHookDurability(t *testing.T) {
	ctx := context.Background()
	pool, _ := testutils.StartPostgres(t)
	ob := outbox.NewOutbox("", "", codec.JsonCodec{})
	require.NoError(t, pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			return ob.Setup(tx.(session.DbSession))
		})
	}))
	defer NewOutboxHook(ob, nil).Attach(pool).Dispose()

	pending := func() int64 {
		var n int64
		require.NoError(t, pool.Session(ctx, func(s session.Session) error {
			return s.Atomic(func(tx session.Session) error {
				var err error
				n, err = ob.Pending(tx.(session.DbSession))
				return err
			})
		}))
		return n
	}

	committed := newAccount(2)
	require.NoError(t, pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(track(committed))
	}))
	assert.Equal(t, int64(2), pending())
	assert.Empty(t, committed.PendingDomainEvents())

	aborted := newAccount(1)
	err := pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			tx.(session.AggregateTracker).Track(aborted)
			return errors.New("business rule violated")
		})
	})
	require.Error(t, err)
	assert.Equal(t, int64(2), pending())
	assert.Len(t, aborted.PendingDomainEvents(), 1)
}
