package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCloseTimeout              = 5 * time.Second
	defaultRecipeInvalidationChannel = "recipe:invalidate"
)

// recipeInvalidationMessage is published when recipes change
type recipeInvalidationMessage struct {
	MenuItemIDs []uuid.UUID `json:"menu_item_ids"`
	Timestamp   int64       `json:"timestamp"`
}

// RedisRecipeInvalidator implements RecipeInvalidator using Redis Pub/Sub
type RedisRecipeInvalidator struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisRecipeInvalidatorOption is a functional option for configuring the invalidator
type RedisRecipeInvalidatorOption func(*RedisRecipeInvalidator)

// WithInvalidationChannel sets the Pub/Sub channel name
func WithInvalidationChannel(channel string) RedisRecipeInvalidatorOption {
	return func(i *RedisRecipeInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisRecipeInvalidatorOption {
	return func(i *RedisRecipeInvalidator) {
		i.logger = logger
	}
}

// NewRedisRecipeInvalidator creates an invalidator on an existing client.
// The caller keeps ownership of the client.
func NewRedisRecipeInvalidator(client *redis.Client, opts ...RedisRecipeInvalidatorOption) *RedisRecipeInvalidator {
	i := &RedisRecipeInvalidator{
		client:  client,
		channel: defaultRecipeInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish announces that the recipes of menuItemIDs changed
func (i *RedisRecipeInvalidator) Publish(ctx context.Context, menuItemIDs ...uuid.UUID) error {
	data, err := json.Marshal(recipeInvalidationMessage{
		MenuItemIDs: menuItemIDs,
		Timestamp:   time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish recipe invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe invokes callback for each invalidation until ctx is done.
// It blocks; run it in a goroutine.
func (i *RedisRecipeInvalidator) Subscribe(ctx context.Context, callback func(menuItemIDs []uuid.UUID)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to recipe invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Recipe invalidation channel closed")
				return nil
			}

			var m recipeInvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				i.logger.Error("Failed to unmarshal recipe invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			i.dispatch(callback, m.MenuItemIDs)
		}
	}
}

func (i *RedisRecipeInvalidator) dispatch(callback func([]uuid.UUID), ids []uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in recipe invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(ids)
}

func (i *RedisRecipeInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription
func (i *RedisRecipeInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

var _ RecipeInvalidator = (*RedisRecipeInvalidator)(nil)
