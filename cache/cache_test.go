package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestRequestCacheKey(t *testing.T) {
	assert := assert.New(t)

	// Case 0: parameter order does not matter
	{
		key1 := KeyFor("trends/place", map[string]interface{}{"id": 1, "exclude": "x"})
		key2 := KeyFor("trends/place", map[string]interface{}{"exclude": "x", "id": 1})
		assert.Equal(key1, key2)
	}

	// Case 1: different parameters, different keys
	{
		key1 := KeyFor("trends/place", map[string]interface{}{"id": 1})
		key2 := KeyFor("trends/place", map[string]interface{}{"id": 2})
		assert.NotEqual(key1, key2)
	}

	// Case 2: no parameters
	{
		assert.Equal("account/verify_credentials{}", KeyFor("account/verify_credentials", nil))
	}
}

func TestRequestCacheSharedProducer(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := NewRequestCache("testing")
	ctxt := context.Background()

	var calls int32
	release := make(chan bool)
	producer := func(ctxt context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	// Case 0: concurrent callers share one producer run
	{
		wg := sync.WaitGroup{}
		results := make([]interface{}, 5)
		for itr := 0; itr < 5; itr++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				val, err := uut.Fetch(ctxt, "key-1", time.Second, producer)
				assert.Nil(err)
				results[idx] = val
			}(itr)
		}
		time.Sleep(time.Millisecond * 50)
		close(release)
		wg.Wait()
		assert.Equal(int32(1), atomic.LoadInt32(&calls))
		for _, val := range results {
			assert.Equal("value", val)
		}
	}

	// Case 1: later caller within ttl is served from cache
	{
		val, err := uut.Fetch(ctxt, "key-1", time.Second, producer)
		assert.Nil(err)
		assert.Equal("value", val)
		assert.Equal(int32(1), atomic.LoadInt32(&calls))
	}
}

func TestRequestCacheExpiry(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := NewRequestCache("testing")
	ctxt := context.Background()

	counter := 0
	producer := func(ctxt context.Context) (interface{}, error) {
		counter++
		return counter, nil
	}

	// Case 0: first fetch
	{
		val, err := uut.Fetch(ctxt, "key-1", time.Millisecond*100, producer)
		assert.Nil(err)
		assert.Equal(1, val)
	}

	// Case 1: within ttl
	{
		val, err := uut.Fetch(ctxt, "key-1", time.Millisecond*100, producer)
		assert.Nil(err)
		assert.Equal(1, val)
	}

	// Case 2: after ttl, the entry is swept and recomputed
	{
		time.Sleep(time.Millisecond * 150)
		val, err := uut.Fetch(ctxt, "key-1", time.Millisecond*100, producer)
		assert.Nil(err)
		assert.Equal(2, val)
		assert.Equal(1, uut.Len())
	}

	// Case 3: lazy sweep drops other expired keys
	{
		_, err := uut.Fetch(ctxt, "key-2", time.Millisecond*50, producer)
		assert.Nil(err)
		assert.Equal(2, uut.Len())
		time.Sleep(time.Millisecond * 120)
		_, err = uut.Fetch(ctxt, "key-3", time.Second, producer)
		assert.Nil(err)
		assert.Equal(1, uut.Len())
	}
}

func TestRequestCacheExpiryFromResolution(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := NewRequestCache("testing")
	ctxt := context.Background()

	var calls int32
	slow := func(ctxt context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(time.Millisecond * 100)
		return "value", nil
	}

	// Case 0: slow producer
	start := time.Now()
	{
		val, err := uut.Fetch(ctxt, "key-1", time.Millisecond*100, slow)
		assert.Nil(err)
		assert.Equal("value", val)
	}

	// Case 1: still a hit past ttl from the request, within ttl from the resolution
	{
		time.Sleep(time.Until(start.Add(time.Millisecond * 150)))
		val, err := uut.Fetch(ctxt, "key-1", time.Millisecond*100, slow)
		assert.Nil(err)
		assert.Equal("value", val)
		assert.Equal(int32(1), atomic.LoadInt32(&calls))
	}
}

func TestRequestCacheCallerCancel(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := NewRequestCache("testing")

	var calls int32
	producer := func(ctxt context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-ctxt.Done():
			return nil, ctxt.Err()
		case <-time.After(time.Millisecond * 100):
			return "value", nil
		}
	}

	// Case 0: the first caller gives up, the other waiter still gets the value
	{
		firstCtxt, firstCancel := context.WithCancel(context.Background())
		wg := sync.WaitGroup{}
		var firstErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, firstErr = uut.Fetch(firstCtxt, "key-1", time.Second, producer)
		}()
		time.Sleep(time.Millisecond * 5)
		var secondVal interface{}
		var secondErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			secondVal, secondErr = uut.Fetch(context.Background(), "key-1", time.Second, producer)
		}()
		time.Sleep(time.Millisecond * 10)
		firstCancel()
		wg.Wait()
		assert.ErrorIs(firstErr, context.Canceled)
		assert.Nil(secondErr)
		assert.Equal("value", secondVal)
		assert.Equal(int32(1), atomic.LoadInt32(&calls))
	}

	// Case 1: the shared result was stored
	{
		val, err := uut.Fetch(context.Background(), "key-1", time.Second, producer)
		assert.Nil(err)
		assert.Equal("value", val)
		assert.Equal(int32(1), atomic.LoadInt32(&calls))
	}
}

func TestRequestCacheFailureNotStored(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := NewRequestCache("testing")
	ctxt := context.Background()

	calls := 0
	failing := func(ctxt context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("dummy error")
	}

	// Case 0: failure is returned
	{
		_, err := uut.Fetch(ctxt, "key-1", time.Second, failing)
		assert.NotNil(err)
		assert.Equal(0, uut.Len())
	}

	// Case 1: the next caller retries
	{
		_, err := uut.Fetch(ctxt, "key-1", time.Second, failing)
		assert.NotNil(err)
		assert.Equal(2, calls)
	}

	// Case 2: a later success is stored
	{
		val, err := uut.Fetch(ctxt, "key-1", time.Second, func(ctxt context.Context) (interface{}, error) {
			return "ok", nil
		})
		assert.Nil(err)
		assert.Equal("ok", val)
		assert.Equal(1, uut.Len())
	}
}

func TestRequestCacheSweep(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	ctxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	uut := NewRequestCache("ut-sweep")
	assert.Nil(uut.StartSweep(ctxt, &wg, time.Millisecond*20))

	// Case 0: expired entries are removed without further access
	{
		_, err := uut.Fetch(ctxt, "key-1", time.Millisecond*30, func(context.Context) (interface{}, error) {
			return "value", nil
		})
		assert.Nil(err)
		assert.Equal(1, uut.Len())
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) && uut.Len() > 0 {
			time.Sleep(time.Millisecond * 10)
		}
		assert.Equal(0, uut.Len())
	}

	// Case 1: invalid interval
	{
		assert.NotNil(uut.StartSweep(ctxt, &wg, 0))
	}
}
