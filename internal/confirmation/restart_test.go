package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/verification"
	"github.com/congo-pay/phonewallet/internal/wallet"
)

func TestSubmitAfterRestart(t *testing.T) {
	ctx := context.Background()
	ids := identity.NewService(identity.NewMemoryRepository(), verification.NewStaticGateway(testPhone), nil, nil)
	_, err := ids.Verify(ctx, testPhone)
	require.NoError(t, err)

	const password = "correct1horse"
	w, err := wallet.NewService(ids, ledger.NewInMemory(), wallet.Options{}, nil, nil).Provision(ctx, testPhone, password)
	require.NoError(t, err)

	// The records and bindings survive; the process-local signing keys do not.
	fresh := ledger.NewInMemory()
	ledger.SeedBalance(fresh, w.Address, 10_000)
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(ids, fresh, store, notifier, nil, Options{Depth: 1, MaxWait: time.Hour}, nil, nil)

	record, err := tracker.Submit(ctx, testPhone, recipient, 100)
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)
	assert.Equal(t, StateSubmitted, record.State)
	assert.Empty(t, notifier.kinds, "a missing key is not a ledger rejection")

	_, err = wallet.NewService(ids, fresh, wallet.Options{}, nil, nil).Provision(ctx, testPhone, password)
	require.NoError(t, err)

	record, err = tracker.Submit(ctx, testPhone, recipient, 100)
	require.NoError(t, err)
	assert.Equal(t, StatePending, record.State)
	require.NotEmpty(t, record.Hash)

	ledger.Mine(fresh, record.Hash, 1, false)
	record, err = tracker.Poll(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, record.State)
}
