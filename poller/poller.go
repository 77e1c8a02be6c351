package poller

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/dataplane"
	"github.com/alwitt/streammux/resolver"
	"github.com/alwitt/streammux/storage"
	"github.com/alwitt/streammux/upstream"
	"github.com/apex/log"
)

// PollReport outcome of one poll round
type PollReport struct {
	// Channels is the number of channels evaluated
	Channels int `json:"channels"`
	// Failed are the labels of the channels which could not be updated
	Failed []string `json:"failed"`
}

// Poller periodically re-evaluates and publishes every stored channel
type Poller interface {
	// Start begin polling at the given interval
	Start(interval time.Duration) error
	// PollOnce run one poll round, returning once every channel was processed
	PollOnce(ctxt context.Context) (PollReport, error)
	// Stop stop polling
	Stop() error
}

// PollerParams collaborators and settings of a Poller
type PollerParams struct {
	// Settings is the source of the channels to poll
	Settings storage.SettingsStore
	// Tokens supplies the credentials of each channel
	Tokens upstream.TokenProvider
	// Clients builds account clients from credentials
	Clients upstream.ClientFactory
	// Resolver computes channel display values
	Resolver resolver.QueryResolver
	// Sink receives the computed values
	Sink dataplane.PublishSink
	// Confidence is attached to every published value
	Confidence float64
}

// pollerImpl implements Poller
type pollerImpl struct {
	common.Component
	PollerParams
	rootCtxt context.Context
	workers  common.TaskProcessor
	timer    common.IntervalTimer
	// roundLock prevents overlapping rounds
	roundLock sync.Mutex
}

// DefinePoller create new poller. The channel evaluations run on the provided
// task processor, which the caller starts.
func DefinePoller(
	rootCtxt context.Context,
	wg *sync.WaitGroup,
	workers common.TaskProcessor,
	params PollerParams,
) (Poller, error) {
	if params.Settings == nil || params.Tokens == nil || params.Clients == nil ||
		params.Resolver == nil || params.Sink == nil {
		return nil, fmt.Errorf("poller is missing collaborators")
	}
	logTags := log.Fields{"module": "poller", "component": "poller"}
	timer, err := common.GetIntervalTimerInstance(rootCtxt, wg, "poller")
	if err != nil {
		return nil, err
	}
	instance := &pollerImpl{
		Component:    common.Component{LogTags: logTags},
		PollerParams: params,
		rootCtxt:     rootCtxt,
		workers:      workers,
		timer:        timer,
	}
	if err := workers.AddToTaskExecutionMap(
		reflect.TypeOf(pollChannelReq{}), instance.processPollChannelRequest,
	); err != nil {
		return nil, err
	}
	return instance, nil
}

// Start begin polling at the given interval
func (p *pollerImpl) Start(interval time.Duration) error {
	log.WithFields(p.LogTags).Infof("Polling every %s", interval)
	return p.timer.Start(interval, func() error {
		report, err := p.PollOnce(p.rootCtxt)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			log.WithFields(p.LogTags).Warnf(
				"Poll round failed for %d of %d channels", len(report.Failed), report.Channels,
			)
		}
		return nil
	}, false)
}

// Stop stop polling
func (p *pollerImpl) Stop() error {
	return p.timer.Stop()
}

type pollChannelReq struct {
	cfg      common.ChannelConfig
	resultCB func(error)
}

// PollOnce run one poll round, returning once every channel was processed
func (p *pollerImpl) PollOnce(ctxt context.Context) (PollReport, error) {
	p.roundLock.Lock()
	defer p.roundLock.Unlock()

	channels, err := p.Settings.EnumerateAll(ctxt)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Unable to enumerate channels")
		return PollReport{}, err
	}
	log.WithFields(p.LogTags).Debugf("Polling %d channels", len(channels))

	type outcome struct {
		label string
		err   error
	}
	results := make(chan outcome, len(channels))
	submitted := 0
	report := PollReport{Channels: len(channels), Failed: []string{}}
	for label, cfg := range channels {
		channelLabel := label
		request := pollChannelReq{
			cfg: cfg,
			resultCB: func(err error) {
				results <- outcome{label: channelLabel, err: err}
			},
		}
		if err := p.workers.Submit(ctxt, request); err != nil {
			log.WithError(err).WithFields(p.LogTags).Errorf("Failed to submit poll of %s", cfg)
			report.Failed = append(report.Failed, channelLabel)
			continue
		}
		submitted++
	}
	for itr := 0; itr < submitted; itr++ {
		select {
		case result := <-results:
			if result.err != nil {
				report.Failed = append(report.Failed, result.label)
			}
		case <-ctxt.Done():
			return report, ctxt.Err()
		}
	}
	sort.Strings(report.Failed)
	return report, nil
}

func (p *pollerImpl) processPollChannelRequest(param interface{}) error {
	request, ok := param.(pollChannelReq)
	if !ok {
		return fmt.Errorf("can not process unknown type %s for poll", reflect.TypeOf(param))
	}
	err := p.pollChannel(request.cfg)
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Errorf("Poll of %s failed", request.cfg)
	}
	request.resultCB(err)
	return nil
}

// pollChannel evaluate and publish one channel with fresh credentials
func (p *pollerImpl) pollChannel(cfg common.ChannelConfig) error {
	creds, err := p.Tokens.GetCredentials(p.rootCtxt, cfg)
	if err != nil {
		return err
	}
	client, err := p.Clients.NewClient(creds)
	if err != nil {
		return err
	}
	value, err := p.Resolver.Resolve(p.rootCtxt, cfg, client)
	if err != nil {
		return err
	}
	return p.Sink.Publish(p.rootCtxt, cfg, value, p.Confidence)
}
