package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
)

func ConvertToDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	// Convert string to decimal
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// ItemLock obtains a short-lived distributed lock scoped to a tracked item.
// Committed consumptions and adjustments against the same item must not
// interleave; the storage transaction alone does not serialize the
// read-then-write FIFO walk across processes.
// The returned release func is safe to call once; pass the same ctx.
func ItemLock(ctx context.Context, itemId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", itemId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("item-lot:%d", itemId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for item", itemId, err)
		return nil, errors.New("could not obtain lock for item")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for item", itemId, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}
