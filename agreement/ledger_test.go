package agreement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/database"
)

func setupLedgerDB(t *testing.T) *database.PoolManager {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestGormLedger_RecordsNegotiation(t *testing.T) {
	ledger, err := NewGormLedger(setupLedgerDB(t))
	require.NoError(t, err)

	dm := &fakeManagement{}
	ctrl := newTestController(t, dm, WithLedger(ledger))
	dm.onTransferPoll = func(id string) {
		ctrl.OnEndpointReady(CallbackPayload{ID: id, Endpoint: "https://peer/data", AuthKey: "Authorization", AuthCode: tokenExpiringIn(t, time.Hour)})
	}

	_, err = ctrl.Negotiate(context.Background(), "http://peer", "urn:example:Graph1")
	require.NoError(t, err)
	require.True(t, ctrl.Deactivate("urn:example:Graph1"))

	history, err := ledger.History(context.Background(), "urn:example:Graph1", 0)
	require.NoError(t, err)
	kinds := make([]LedgerKind, len(history))
	for i, e := range history {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []LedgerKind{LedgerAgreement, LedgerTransfer, LedgerEndpoint, LedgerDeactivation}, kinds)
	assert.Equal(t, "agreement-1", history[0].Reference)
	assert.Equal(t, "transfer-1", history[1].Reference)

	limited, err := ledger.History(context.Background(), "urn:example:Graph1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

type failingLedger struct{}

func (failingLedger) Record(context.Context, LedgerEntry) error { return errors.New("disk full") }

func TestController_LedgerFailureDoesNotFailNegotiation(t *testing.T) {
	dm := &fakeManagement{}
	ctrl := newTestController(t, dm, WithLedger(failingLedger{}))
	dm.onTransferPoll = func(id string) {
		ctrl.OnEndpointReady(CallbackPayload{ID: id, Endpoint: "https://peer/data", AuthKey: "Authorization", AuthCode: tokenExpiringIn(t, time.Hour)})
	}

	_, err := ctrl.Negotiate(context.Background(), "http://peer", "urn:example:Graph1")
	assert.NoError(t, err)
}

func TestNewGormLedger_NilDB(t *testing.T) {
	_, err := NewGormLedger(nil)
	assert.Error(t, err)
}
