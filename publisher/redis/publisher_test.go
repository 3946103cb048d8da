package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/plate"
	"github.com/xraph/plate/event"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/plugin"
	platepub "github.com/xraph/plate/publisher/redis"
	"github.com/xraph/plate/store/memory"
)

func setupTestClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return rdb, mr
}

func receive(t *testing.T, sub *platepub.Subscription) *event.ChangeEvent {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed early")
		return e
	case err := <-sub.Errors():
		t.Fatalf("subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "plate:tenant-a:lp_events", platepub.Channel(platepub.DefaultPrefix, "tenant-a"))
	assert.Equal(t, "wms:t1:lp_events", platepub.Channel("wms", "t1"))
}

func TestPublisherForwardsEngineEvents(t *testing.T) {
	rdb, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := platepub.Subscribe(ctx, rdb, "", "tenant-a")
	require.NoError(t, err)
	defer sub.Close()

	e := plate.New(memory.New(), plate.WithPlugin(platepub.New(rdb)))
	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	tctx := plate.WithTenant(ctx, "tenant-a")
	p, err := e.CreateLicensePlate(tctx, lp.CreateInput{
		ProductID: "sku-1", WarehouseID: "wh-1", Quantity: plate.QtyInt(100), UoM: "ea", QAStatus: lp.QAPassed,
	})
	require.NoError(t, err)

	created := receive(t, sub)
	assert.Equal(t, event.KindCreated, created.Kind)
	assert.Equal(t, "tenant-a", created.TenantID)
	assert.Equal(t, p.ID.String(), created.LicensePlateID.String())
	assert.Nil(t, created.Before)
	require.NotNil(t, created.After)
	assert.True(t, created.After.Quantity.Equal(plate.QtyInt(100)))

	_, err = e.Reserve(tctx, plate.ReserveRequest{LicensePlateID: p.ID, DemandRef: "so-1", Quantity: plate.QtyInt(40)})
	require.NoError(t, err)

	reserved := receive(t, sub)
	assert.Equal(t, event.KindReserved, reserved.Kind)
	require.NotNil(t, reserved.Before)
	assert.Equal(t, p.ID.String(), reserved.After.ID.String())
}

func TestSubscriptionIsTenantScoped(t *testing.T) {
	rdb, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := platepub.Subscribe(ctx, rdb, "", "tenant-b")
	require.NoError(t, err)
	defer sub.Close()

	pub := platepub.New(rdb)
	require.NoError(t, pub.Publish(ctx, &event.ChangeEvent{TenantID: "tenant-a", Kind: event.KindCreated}))
	require.NoError(t, pub.Publish(ctx, &event.ChangeEvent{TenantID: "tenant-b", Kind: event.KindConsumed}))

	got := receive(t, sub)
	assert.Equal(t, "tenant-b", got.TenantID)
	assert.Equal(t, event.KindConsumed, got.Kind)
}

func TestSubscriptionReportsUndecodableMessages(t *testing.T) {
	rdb, mr := setupTestClient(t)
	ctx := context.Background()

	sub, err := platepub.Subscribe(ctx, rdb, "wms", "tenant-a")
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(platepub.Channel("wms", "tenant-a"), "{not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "decode event")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decode error")
	}
}

func TestSubscriptionCloseEndsEvents(t *testing.T) {
	rdb, _ := setupTestClient(t)

	sub, err := platepub.Subscribe(context.Background(), rdb, "", "tenant-a")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	rdb, mr := setupTestClient(t)
	ctx := context.Background()

	pub := platepub.New(rdb)
	e := plate.New(memory.New(), plate.WithPlugin(pub))
	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	mr.Close()

	p, err := e.CreateLicensePlate(plate.WithTenant(ctx, "tenant-a"), lp.CreateInput{
		ProductID: "sku-1", WarehouseID: "wh-1", Quantity: plate.QtyInt(5), UoM: "ea",
	})
	require.NoError(t, err)
	assert.False(t, p.ID.IsNil())

	err = pub.Publish(ctx, &event.ChangeEvent{TenantID: "tenant-a"})
	require.Error(t, err)
}

func TestShutdownClosesClientWhenOwned(t *testing.T) {
	rdb, _ := setupTestClient(t)

	var p plugin.OnShutdown = platepub.New(rdb, platepub.WithCloseClient())
	require.NoError(t, p.OnShutdown(context.Background()))

	err := rdb.Ping(context.Background()).Err()
	assert.True(t, errors.Is(err, goredis.ErrClosed))
}
