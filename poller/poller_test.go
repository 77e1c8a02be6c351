package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alwitt/streammux/cache"
	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/resolver"
	"github.com/alwitt/streammux/storage"
	"github.com/alwitt/streammux/upstream"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	followers float64
	fail      bool
}

func (c fakeClient) Request(
	ctxt context.Context, endpoint string, params map[string]interface{},
) (interface{}, error) {
	if c.fail {
		return nil, &common.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("dummy error")}
	}
	return map[string]interface{}{"id_str": "acct", "followers_count": c.followers}, nil
}

func (c fakeClient) OpenPushConnection(
	ctxt context.Context, topic string,
) (upstream.PushConnection, error) {
	return nil, fmt.Errorf("not supported")
}

// fakeClients maps an access token to a client
type fakeClients map[string]fakeClient

func (f fakeClients) NewClient(creds common.Credentials) (upstream.AccountClient, error) {
	client, ok := f[creds.AccessToken]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", creds.AccessToken)
	}
	return client, nil
}

type recordingSink struct {
	lock      sync.Mutex
	published map[string]string
}

func (s *recordingSink) Publish(
	ctxt context.Context, cfg common.ChannelConfig, value string, confidence float64,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.published[cfg.ChannelLabel] = value
	return nil
}

func (s *recordingSink) snapshot() map[string]string {
	s.lock.Lock()
	defer s.lock.Unlock()
	result := map[string]string{}
	for label, value := range s.published {
		result[label] = value
	}
	return result
}

func TestPoller(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	ctxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewMemoryBackend()
	sink := &recordingSink{published: map[string]string{}}
	workers, err := common.GetNewTaskDemuxProcessorInstance(ctxt, "ut-poller", 8, 3)
	assert.Nil(err)
	uut, err := DefinePoller(ctxt, &wg, workers, PollerParams{
		Settings: store,
		Tokens:   store,
		Clients: fakeClients{
			"token-1": {followers: 11}, "token-2": {followers: 22}, "token-bad": {fail: true},
		},
		Resolver: resolver.NewQueryResolver(
			cache.NewRequestCache("ut"),
			common.CacheConfig{TrendsTTL: 60, TrendsRegionID: 1, SweepInterval: 30},
		),
		Sink:       sink,
		Confidence: 0.1,
	})
	assert.Nil(err)
	assert.Nil(workers.StartEventLoop(&wg))

	// Case 0: nothing to poll
	{
		report, err := uut.PollOnce(ctxt)
		assert.Nil(err)
		assert.Equal(0, report.Channels)
		assert.Empty(report.Failed)
	}

	profile := func(label string) common.ChannelConfig {
		return common.ChannelConfig{ChannelLabel: label, DisplayFrom: common.DisplayMyProfile}
	}
	assert.Nil(store.Save(ctxt, profile("ch-1"), &common.Credentials{AccessToken: "token-1"}))
	assert.Nil(store.Save(ctxt, profile("ch-2"), &common.Credentials{AccessToken: "token-2"}))
	assert.Nil(store.Save(ctxt, profile("ch-3"), &common.Credentials{AccessToken: "token-bad"}))
	assert.Nil(store.Save(ctxt, profile("ch-4"), nil))

	// Case 1: failures are isolated to their own channel
	{
		report, err := uut.PollOnce(ctxt)
		assert.Nil(err)
		assert.Equal(4, report.Channels)
		assert.Equal([]string{"ch-3", "ch-4"}, report.Failed)
		assert.Equal(map[string]string{"ch-1": "F 11", "ch-2": "F 22"}, sink.snapshot())
	}

	// Case 2: periodic polling
	{
		assert.Nil(store.Save(ctxt, profile("ch-5"), &common.Credentials{AccessToken: "token-1"}))
		assert.Nil(uut.Start(time.Millisecond * 30))
		deadline := time.Now().Add(time.Second * 2)
		for time.Now().Before(deadline) {
			if _, ok := sink.snapshot()["ch-5"]; ok {
				break
			}
			time.Sleep(time.Millisecond * 10)
		}
		assert.Equal("F 11", sink.snapshot()["ch-5"])
		assert.Nil(uut.Stop())
	}
}
