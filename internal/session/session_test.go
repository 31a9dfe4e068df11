package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeDynamoDB is an in-memory table keyed by session_key that honours the
// version condition used by DynamoDBStore.
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(av map[string]types.AttributeValue) string {
	var k string
	if s, ok := av["session_key"].(*types.AttributeValueMemberS); ok {
		k = s.Value
	}
	return k
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyOf(in.Item)
	if existing, ok := f.items[k]; ok && in.ConditionExpression != nil {
		var stored, expected int64
		if err := attributevalue.Unmarshal(existing["version"], &stored); err != nil {
			return nil, err
		}
		if err := attributevalue.Unmarshal(in.ExpressionAttributeValues[":v"], &expected); err != nil {
			return nil, err
		}
		if stored != expected {
			return nil, &types.ConditionalCheckFailedException{Message: &k}
		}
	}
	f.items[k] = in.Item
	f.puts++
	return &dynamodb.PutItemOutput{}, nil
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore(time.Hour)) })
	t.Run("redis", func(t *testing.T) {
		s, _ := newRedisStore(t)
		fn(t, s)
	})
	t.Run("dynamodb", func(t *testing.T) { fn(t, NewDynamoDBStore(newFakeDynamoDB(), "sessions", time.Hour)) })
}

func addItem(productID string, qty int) func([]Item) ([]Item, error) {
	return func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity += qty
				return items, nil
			}
		}
		return append(items, Item{ProductID: productID, Quantity: qty}), nil
	}
}

// ============================================
// Items
// ============================================

func TestStore_Items(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		items, err := s.Items(ctx, "sess-1")
		require.NoError(t, err)
		assert.Empty(t, items)

		require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-2", 1)))
		require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 2)))
		require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-2", 3)))

		items, err = s.Items(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []Item{{ProductID: "p-2", Quantity: 4}, {ProductID: "p-1", Quantity: 2}}, items)

		other, err := s.Items(ctx, "sess-2")
		require.NoError(t, err)
		assert.Empty(t, other)

		require.NoError(t, s.ClearItems(ctx, "sess-1"))
		items, err = s.Items(ctx, "sess-1")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestStore_UpdateItems_ErrorAbortsWrite(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))

		boom := errors.New("boom")
		err := s.UpdateItems(ctx, "sess-1", func(items []Item) ([]Item, error) {
			items[0].Quantity = 99
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		items, err := s.Items(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []Item{{ProductID: "p-1", Quantity: 1}}, items)
	})
}

func TestStore_UpdateItems_NoLostUpdates(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var applied atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				for {
					err := s.UpdateItems(gctx, "sess-1", addItem("p-1", 1))
					if errors.Is(err, ErrConflict) {
						continue
					}
					if err == nil {
						applied.Add(1)
					}
					return err
				}
			})
		}
		require.NoError(t, g.Wait())

		items, err := s.Items(ctx, "sess-1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int(applied.Load()), items[0].Quantity)
		assert.Equal(t, 20, items[0].Quantity)
	})
}

// ============================================
// Discount
// ============================================

func TestStore_Discount(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		d, err := s.Discount(ctx, "sess-1")
		require.NoError(t, err)
		assert.Nil(t, d)

		require.NoError(t, s.SetDiscount(ctx, "sess-1", Discount{Code: "SAVE10", Percent: decimal.NewFromInt(10)}))
		require.NoError(t, s.SetDiscount(ctx, "sess-1", Discount{Code: "SAVE15", Percent: decimal.RequireFromString("15.5")}))
		require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))

		d, err = s.Discount(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "SAVE15", d.Code)
		assert.True(t, decimal.RequireFromString("15.5").Equal(d.Percent))

		require.NoError(t, s.ClearDiscount(ctx, "sess-1"))
		d, err = s.Discount(ctx, "sess-1")
		require.NoError(t, err)
		assert.Nil(t, d)

		// items survive discount changes
		items, err := s.Items(ctx, "sess-1")
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

// ============================================
// Expiry
// ============================================

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))
	require.NoError(t, s.SetDiscount(ctx, "sess-1", Discount{Code: "X", Percent: decimal.NewFromInt(5)}))
	assert.Equal(t, time.Hour, mr.TTL(itemsKey("sess-1")))
	assert.Equal(t, time.Hour, mr.TTL(discountKey("sess-1")))

	mr.FastForward(2 * time.Hour)

	items, err := s.Items(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	d, err := s.Discount(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))
	now = now.Add(2 * time.Minute)

	items, err := s.Items(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDynamoDBStore_ExpiredRecordIsEmpty(t *testing.T) {
	fake := newFakeDynamoDB()
	s := NewDynamoDBStore(fake, "sessions", time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))
	now = now.Add(2 * time.Minute)

	items, err := s.Items(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	// writing over an expired record still passes the version check
	require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-2", 1)))
	items, err = s.Items(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: "p-2", Quantity: 1}}, items)
}

func TestDynamoDBStore_ConflictRetries(t *testing.T) {
	fake := newFakeDynamoDB()
	s := NewDynamoDBStore(fake, "sessions", time.Hour)
	ctx := context.Background()
	require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-1", 1)))

	interfered := false
	err := s.UpdateItems(ctx, "sess-1", func(items []Item) ([]Item, error) {
		if !interfered {
			interfered = true
			// a concurrent writer bumps the version between read and write
			require.NoError(t, s.UpdateItems(ctx, "sess-1", addItem("p-2", 1)))
		}
		return addItem("p-1", 1)(items)
	})
	require.NoError(t, err)

	items, err := s.Items(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: "p-1", Quantity: 2}, {ProductID: "p-2", Quantity: 1}}, items)
}
