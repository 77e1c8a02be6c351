package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Producer function which computes the value for a cache miss
type Producer func(ctxt context.Context) (interface{}, error)

// RequestCache memoize the results of idempotent upstream requests
type RequestCache interface {
	/*
		Fetch return the cached value for a key, or compute it with the producer

		 @param ctxt context.Context - the operation context
		 @param key string - the cache key
		 @param ttl time.Duration - how long a successful result stays valid
		 @param producer Producer - computes the value on a miss
		 @return the value, or the producer error
	*/
	Fetch(ctxt context.Context, key string, ttl time.Duration, producer Producer) (interface{}, error)
	// Len number of entries, including not yet swept expired ones
	Len() int
	// StartSweep periodically remove expired entries until the context is done
	StartSweep(ctxt context.Context, wg *sync.WaitGroup, interval time.Duration) error
}

// requestCacheImpl implements RequestCache
type requestCacheImpl struct {
	common.Component
	entries  *ttlcache.Cache[string, interface{}]
	inflight singleflight.Group
}

// NewRequestCache define a new request cache
func NewRequestCache(name string) RequestCache {
	logTags := log.Fields{
		"module": "cache", "component": "request-cache", "instance": name,
	}
	return &requestCacheImpl{
		Component: common.Component{LogTags: logTags},
		entries: ttlcache.New[string, interface{}](
			ttlcache.WithDisableTouchOnHit[string, interface{}](),
		),
	}
}

// KeyFor build the cache key of an endpoint call with its parameters. Map keys are
// serialized in sorted order so equal parameter sets yield equal keys.
func KeyFor(endpoint string, params map[string]interface{}) string {
	if params == nil {
		params = map[string]interface{}{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s%v", endpoint, params)
	}
	return endpoint + string(encoded)
}

// Fetch return the cached value for a key, or compute it with the producer
func (c *requestCacheImpl) Fetch(
	ctxt context.Context, key string, ttl time.Duration, producer Producer,
) (interface{}, error) {
	// Lazy sweep
	c.entries.DeleteExpired()
	if item := c.entries.Get(key); item != nil {
		return item.Value(), nil
	}
	result := c.inflight.DoChan(key, func() (interface{}, error) {
		// Another caller may have resolved the key while this call was queued
		if item := c.entries.Get(key); item != nil {
			return item.Value(), nil
		}
		// Shared by every waiter, so one caller giving up must not cancel it
		value, err := producer(context.WithoutCancel(ctxt))
		if err != nil {
			log.WithError(err).WithFields(c.LogTags).Debugf("Producer failed for %s", key)
			return nil, err
		}
		// TTL counts from when the value resolved
		c.entries.Set(key, value, ttl)
		return value, nil
	})
	select {
	case <-ctxt.Done():
		return nil, ctxt.Err()
	case res := <-result:
		return res.Val, res.Err
	}
}

// Len number of entries, including not yet swept expired ones
func (c *requestCacheImpl) Len() int {
	return c.entries.Len()
}

// StartSweep periodically remove expired entries until the context is done
func (c *requestCacheImpl) StartSweep(
	ctxt context.Context, wg *sync.WaitGroup, interval time.Duration,
) error {
	timer, err := common.GetIntervalTimerInstance(ctxt, wg, "request-cache-sweep")
	if err != nil {
		return err
	}
	return timer.Start(interval, func() error {
		c.entries.DeleteExpired()
		return nil
	}, false)
}
