package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	catalogpg "github.com/premstore/premstore/internal/catalog/infrastructure/postgres"
	orderdomain "github.com/premstore/premstore/internal/order/domain"
	orderpg "github.com/premstore/premstore/internal/order/infrastructure/postgres"
	"github.com/premstore/premstore/internal/payment/application"
	"github.com/premstore/premstore/internal/payment/domain"
	paymentpg "github.com/premstore/premstore/internal/payment/infrastructure/postgres"
	"github.com/premstore/premstore/pkg/idempotency"
	"github.com/premstore/premstore/pkg/logging"
)

func TestPaymentSettlement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, catalogpg.Migrate(ctx, pool))
	require.NoError(t, orderpg.Migrate(ctx, pool))
	require.NoError(t, paymentpg.Migrate(ctx, pool))

	log := logging.New()
	orders := orderpg.NewRepository(log, pool)
	sessions := paymentpg.NewRepository(log, pool)

	order := orderdomain.NewOrder("ord-1",
		orderdomain.Buyer{ID: "buyer-1", Email: "buyer@example.com", Name: "Buyer"},
		[]orderdomain.OrderItem{{
			ProductID: "prod-1",
			VariantID: "var-1",
			Duration:  "1m",
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(10),
			LineTotal: decimal.NewFromInt(10),
		}},
		decimal.Zero, "")
	require.NoError(t, orders.Save(ctx, order))

	now := time.Now().UTC()
	require.NoError(t, sessions.Create(ctx, domain.PaymentSession{
		PaymentID:     "5077125051",
		OrderID:       order.ID,
		PriceAmount:   decimal.NewFromInt(10),
		PriceCurrency: "usd",
		PayAmount:     decimal.RequireFromString("0.00016"),
		PayCurrency:   "btc",
		PayAddress:    "bc1qtest",
		Status:        domain.StatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))

	finish := application.Transition{
		PaymentID:        "5077125051",
		OrderID:          order.ID,
		From:             domain.StatusWaiting,
		To:               domain.StatusFinished,
		OrderStatus:      orderdomain.OrderCompleted,
		PaymentStatus:    orderdomain.PaymentCompleted,
		FulfillmentEvent: []byte(`{"order_id":"ord-1"}`),
	}

	applied, err := sessions.ApplyTransition(ctx, finish)
	require.NoError(t, err)
	require.True(t, applied)

	// The conditional write must reject a second delivery of the same event.
	applied, err = sessions.ApplyTransition(ctx, finish)
	require.NoError(t, err)
	require.False(t, applied)

	sess, err := sessions.GetByPaymentID(ctx, "5077125051")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, sess.Status)

	got, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, orderdomain.OrderCompleted, got.Status)
	require.Equal(t, orderdomain.PaymentCompleted, got.PaymentStatus)

	// Exactly one fulfillment event reached the outbox.
	outboxStore := paymentpg.NewOutboxStore(log, pool)
	events, err := outboxStore.LockBatch(ctx, "test-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "OrderPaid", events[0].Type)
	require.Equal(t, "5077125051", events[0].Headers["payment_id"])
	eventID := events[0].ID

	// Leased rows stay invisible to other relays.
	events, err = outboxStore.LockBatch(ctx, "other-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, events)

	// A failed dispatch requeues the event for another attempt.
	require.NoError(t, outboxStore.MarkFailed(ctx, eventID, "broker unreachable"))
	events, err = outboxStore.LockBatch(ctx, "other-relay", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, eventID, events[0].ID)

	// An expired lease is reclaimed, so a crashed relay cannot strand the event.
	time.Sleep(200 * time.Millisecond)
	events, err = outboxStore.LockBatch(ctx, "test-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, eventID, events[0].ID)

	require.NoError(t, outboxStore.MarkSent(ctx, []int64{eventID}))
	events, err = outboxStore.LockBatch(ctx, "test-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestGetByPaymentID_Unknown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, paymentpg.Migrate(ctx, pool))

	sessions := paymentpg.NewRepository(logging.New(), pool)
	_, err = sessions.GetByPaymentID(ctx, "no-such-payment")
	require.ErrorIs(t, err, application.ErrUnknownPayment)
}

func TestIPNDedup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	opts, err := redis.ParseURL(env.RedisAddr)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	dedup := idempotency.NewStore(rdb, time.Minute)

	key := dedup.Key("5077125051", "finished")
	seen, err := dedup.Seen(ctx, key)
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = dedup.Seen(ctx, key)
	require.NoError(t, err)
	require.True(t, seen)

	// A different status for the same payment is a fresh delivery.
	seen, err = dedup.Seen(ctx, dedup.Key("5077125051", "refunded"))
	require.NoError(t, err)
	require.False(t, seen)

	// Forgetting a claim opens the key for the processor's retry.
	require.NoError(t, dedup.Forget(ctx, key))
	seen, err = dedup.Seen(ctx, key)
	require.NoError(t, err)
	require.False(t, seen)
}
