package subscription

import (
	"context"
	"errors"
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
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MultiplexerParams collaborators and settings of a Multiplexer
type MultiplexerParams struct {
	// Clients builds account clients from credentials
	Clients upstream.ClientFactory
	// Tokens supplies credentials when the caller did not
	Tokens upstream.TokenProvider
	// Settings is where channel settings are re-loaded from on data events
	Settings storage.SettingsStore
	// Resolver computes channel display values
	Resolver resolver.QueryResolver
	// Sink receives the computed values
	Sink dataplane.PublishSink
	// PushTopic is the push connection topic opened per account
	PushTopic string
	// ReconnectDelay is the wait between a connection ending and the reconnect attempt
	ReconnectDelay time.Duration
	// Confidence is attached to every published value
	Confidence float64
}

// accountConnection connection entry of one account
type accountConnection struct {
	state ConnectionState
	// instance identifies the current connection attempt. Results of older attempts are discarded.
	instance string
	conn     upstream.PushConnection
	client   upstream.AccountClient
}

// multiplexerImpl implements Multiplexer. All bookkeeping maps are only touched by the
// event loop handlers.
type multiplexerImpl struct {
	common.Component
	MultiplexerParams
	tp                  common.TaskProcessor
	rootCtxt            context.Context
	wg                  *sync.WaitGroup
	connectionByAccount map[string]*accountConnection
	accountByChannel    map[string]string
	channelsByAccount   map[string]map[string]bool
}

// DefineMultiplexer create new subscription multiplexer. The multiplexer's bookkeeping
// runs on the provided task processor, which the caller starts.
func DefineMultiplexer(
	rootCtxt context.Context,
	wg *sync.WaitGroup,
	tp common.TaskProcessor,
	params MultiplexerParams,
) (Multiplexer, error) {
	if params.Clients == nil || params.Tokens == nil || params.Settings == nil ||
		params.Resolver == nil || params.Sink == nil {
		return nil, fmt.Errorf("multiplexer is missing collaborators")
	}
	if params.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("non-positive reconnect delay %s", params.ReconnectDelay)
	}
	logTags := log.Fields{
		"module": "subscription", "component": "multiplexer", "instance": params.PushTopic,
	}
	instance := &multiplexerImpl{
		Component:           common.Component{LogTags: logTags},
		MultiplexerParams:   params,
		tp:                  tp,
		rootCtxt:            rootCtxt,
		wg:                  wg,
		connectionByAccount: make(map[string]*accountConnection),
		accountByChannel:    make(map[string]string),
		channelsByAccount:   make(map[string]map[string]bool),
	}
	// Add handlers
	handlers := map[reflect.Type]common.TaskHandler{
		reflect.TypeOf(muxLookupAccountReq{}):   instance.processLookupAccountRequest,
		reflect.TypeOf(muxAddChannelReq{}):      instance.processAddChannelRequest,
		reflect.TypeOf(muxRemoveChannelReq{}):   instance.processRemoveChannelRequest,
		reflect.TypeOf(muxConnectDoneReq{}):     instance.processConnectDoneRequest,
		reflect.TypeOf(muxConnectionEndedReq{}): instance.processConnectionEndedRequest,
		reflect.TypeOf(muxReconnectCheckReq{}):  instance.processReconnectCheckRequest,
		reflect.TypeOf(muxDispatchTargetsReq{}): instance.processDispatchTargetsRequest,
		reflect.TypeOf(muxStatusReq{}):          instance.processStatusRequest,
	}
	for reqType, handler := range handlers {
		if err := tp.AddToTaskExecutionMap(reqType, handler); err != nil {
			return nil, err
		}
	}
	return instance, nil
}

// submitAndWait submit a request to the event loop and wait for its handler to finish
func (m *multiplexerImpl) submitAndWait(
	ctxt context.Context, request interface{}, complete chan bool,
) error {
	if err := m.tp.Submit(ctxt, request); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf(
			"Failed to submit %s", reflect.TypeOf(request),
		)
		return err
	}
	select {
	case <-complete:
		return nil
	case <-ctxt.Done():
		return ctxt.Err()
	}
}

func wrongRequestType(param interface{}, operation string) error {
	return fmt.Errorf("can not process unknown type %s for %s", reflect.TypeOf(param), operation)
}

// clientFor build the account client of a channel, fetching credentials when none are given
func (m *multiplexerImpl) clientFor(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) (upstream.AccountClient, error) {
	if creds == nil {
		fetched, err := m.Tokens.GetCredentials(ctxt, cfg)
		if err != nil {
			var credErr *common.CredentialError
			if !errors.As(err, &credErr) {
				err = &common.CredentialError{ChannelLabel: cfg.ChannelLabel, Err: err}
			}
			return nil, err
		}
		creds = &fetched
	}
	return m.Clients.NewClient(*creds)
}

// ========================================================================================
// Registration

// Register subscribe a channel and compute its initial display value
func (m *multiplexerImpl) Register(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) (string, error) {
	client, err := m.clientFor(ctxt, cfg, creds)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to register %s", cfg)
		return "", err
	}

	var value string
	tasks := errgroup.Group{}
	tasks.Go(func() error {
		// Subscription failures only affect the push path
		if err := m.subscribe(ctxt, cfg, client); err != nil {
			log.WithError(err).WithFields(m.LogTags).Errorf("Unable to subscribe %s", cfg)
		}
		return nil
	})
	tasks.Go(func() error {
		var err error
		value, err = m.Resolver.Resolve(ctxt, cfg, client)
		return err
	})
	if err := tasks.Wait(); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to compute initial value of %s", cfg)
		return "", err
	}
	log.WithFields(m.LogTags).Infof("Registered %s", cfg)
	return value, nil
}

// resolveAccount find the account of a channel, asking upstream when it is not yet known
func (m *multiplexerImpl) resolveAccount(
	ctxt context.Context, channelLabel string, client func() (upstream.AccountClient, error),
) (string, error) {
	if accountID, ok, err := m.lookupAccount(ctxt, channelLabel); err != nil {
		return "", err
	} else if ok {
		return accountID, nil
	}
	useClient, err := client()
	if err != nil {
		return "", err
	}
	return m.Resolver.ResolveAccountIdentity(ctxt, useClient)
}

// subscribe add the channel to its account, starting a connection when the account has none
func (m *multiplexerImpl) subscribe(
	ctxt context.Context, cfg common.ChannelConfig, client upstream.AccountClient,
) error {
	accountID, err := m.resolveAccount(
		ctxt, cfg.ChannelLabel, func() (upstream.AccountClient, error) { return client, nil },
	)
	if err != nil {
		return err
	}
	plan, err := m.addChannel(accountID, cfg.ChannelLabel, client)
	if err != nil {
		return err
	}
	if plan != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.connect(accountID, plan.instance, plan.client)
		}()
	}
	return nil
}

// ----------------------------------------------------------------------------------------

type muxLookupAccountReq struct {
	channelLabel string
	resultCB     func(string, bool)
}

// lookupAccount find the account a channel is subscribed through
func (m *multiplexerImpl) lookupAccount(
	ctxt context.Context, channelLabel string,
) (string, bool, error) {
	complete := make(chan bool, 1)
	var accountID string
	var found bool
	request := muxLookupAccountReq{
		channelLabel: channelLabel,
		resultCB: func(id string, ok bool) {
			accountID = id
			found = ok
			complete <- true
		},
	}
	if err := m.submitAndWait(ctxt, request, complete); err != nil {
		return "", false, err
	}
	return accountID, found, nil
}

func (m *multiplexerImpl) processLookupAccountRequest(param interface{}) error {
	request, ok := param.(muxLookupAccountReq)
	if !ok {
		return wrongRequestType(param, "account lookup")
	}
	accountID, found := m.accountByChannel[request.channelLabel]
	request.resultCB(accountID, found)
	return nil
}

// ----------------------------------------------------------------------------------------

// connectPlan a connection attempt the caller must perform outside of the event loop
type connectPlan struct {
	instance string
	client   upstream.AccountClient
	// channelLabel is a channel of the account, used for fetching credentials
	channelLabel string
}

type muxAddChannelReq struct {
	accountID    string
	channelLabel string
	client       upstream.AccountClient
	resultCB     func(*connectPlan)
}

// addChannel record a channel against an account. The change is not bound to the
// caller's context, so the returned plan is always acted on.
func (m *multiplexerImpl) addChannel(
	accountID, channelLabel string, client upstream.AccountClient,
) (*connectPlan, error) {
	complete := make(chan bool, 1)
	var plan *connectPlan
	request := muxAddChannelReq{
		accountID:    accountID,
		channelLabel: channelLabel,
		client:       client,
		resultCB: func(p *connectPlan) {
			plan = p
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil {
		return nil, err
	}
	return plan, nil
}

func (m *multiplexerImpl) processAddChannelRequest(param interface{}) error {
	request, ok := param.(muxAddChannelReq)
	if !ok {
		return wrongRequestType(param, "add channel")
	}
	request.resultCB(m.applyAddChannel(request.accountID, request.channelLabel, request.client))
	return nil
}

// applyAddChannel record a channel against an account. Returns a connect plan when
// the account needs a new connection.
func (m *multiplexerImpl) applyAddChannel(
	accountID, channelLabel string, client upstream.AccountClient,
) *connectPlan {
	if previous, ok := m.accountByChannel[channelLabel]; ok && previous != accountID {
		// The channel moved to a different account. Only reachable when two registrations
		// of the same label resolve different accounts before either is recorded, since a
		// known label always reuses its recorded account.
		if stale := m.applyRemoveChannel(previous, channelLabel); stale != nil {
			go func() {
				_ = stale.Close()
			}()
		}
	}
	m.accountByChannel[channelLabel] = accountID
	channels, ok := m.channelsByAccount[accountID]
	if !ok {
		channels = make(map[string]bool)
		m.channelsByAccount[accountID] = channels
	}
	channels[channelLabel] = true

	entry, ok := m.connectionByAccount[accountID]
	if ok && (entry.state == StateConnecting || entry.state == StateOpen) {
		log.WithFields(m.LogTags).Debugf(
			"Account %s already %s, %d channels", accountID, entry.state, len(channels),
		)
		return nil
	}
	if !ok {
		entry = &accountConnection{}
		m.connectionByAccount[accountID] = entry
	}
	entry.state = StateConnecting
	entry.instance = uuid.New().String()
	entry.client = client
	entry.conn = nil
	log.WithFields(m.LogTags).Infof("Account %s CONNECTING (%s)", accountID, entry.instance)
	return &connectPlan{instance: entry.instance, client: client, channelLabel: channelLabel}
}

// ----------------------------------------------------------------------------------------

// Unregister remove a channel
func (m *multiplexerImpl) Unregister(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) error {
	accountID, err := m.resolveAccount(
		ctxt, cfg.ChannelLabel, func() (upstream.AccountClient, error) {
			return m.clientFor(ctxt, cfg, creds)
		},
	)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to unregister %s", cfg)
		return err
	}
	toClose, err := m.removeChannel(accountID, cfg.ChannelLabel)
	if err != nil {
		return err
	}
	if toClose != nil {
		if err := toClose.Close(); err != nil {
			log.WithError(err).WithFields(m.LogTags).Errorf(
				"Failed to close push connection of %s", accountID,
			)
		}
	}
	log.WithFields(m.LogTags).Infof("Unregistered %s", cfg)
	return nil
}

type muxRemoveChannelReq struct {
	accountID    string
	channelLabel string
	resultCB     func(upstream.PushConnection)
}

// removeChannel drop a channel from an account. Returns the connection to close when
// the account has no channels left. Like addChannel, it is not bound to the caller's
// context.
func (m *multiplexerImpl) removeChannel(
	accountID, channelLabel string,
) (upstream.PushConnection, error) {
	complete := make(chan bool, 1)
	var toClose upstream.PushConnection
	request := muxRemoveChannelReq{
		accountID:    accountID,
		channelLabel: channelLabel,
		resultCB: func(conn upstream.PushConnection) {
			toClose = conn
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil {
		return nil, err
	}
	return toClose, nil
}

func (m *multiplexerImpl) processRemoveChannelRequest(param interface{}) error {
	request, ok := param.(muxRemoveChannelReq)
	if !ok {
		return wrongRequestType(param, "remove channel")
	}
	request.resultCB(m.applyRemoveChannel(request.accountID, request.channelLabel))
	return nil
}

// applyRemoveChannel drop a channel from an account
func (m *multiplexerImpl) applyRemoveChannel(
	accountID, channelLabel string,
) upstream.PushConnection {
	entry, ok := m.connectionByAccount[accountID]
	if !ok {
		log.WithFields(m.LogTags).Debugf("Account %s has no connection", accountID)
		return nil
	}
	if m.accountByChannel[channelLabel] == accountID {
		delete(m.accountByChannel, channelLabel)
	}
	channels := m.channelsByAccount[accountID]
	delete(channels, channelLabel)
	if len(channels) > 0 {
		return nil
	}
	// Last channel is gone
	delete(m.channelsByAccount, accountID)
	delete(m.connectionByAccount, accountID)
	log.WithFields(m.LogTags).Infof("Account %s has no channels left, tearing down", accountID)
	return entry.conn
}

// ========================================================================================
// Connection supervision

// connect open the push connection of an account and start reading from it
func (m *multiplexerImpl) connect(accountID, instance string, client upstream.AccountClient) {
	conn, err := client.OpenPushConnection(m.rootCtxt, m.PushTopic)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf(
			"Failed to open push connection for %s", accountID,
		)
	}
	accepted, submitErr := m.connectDone(accountID, instance, client, conn, err)
	if err != nil {
		return
	}
	if submitErr != nil || !accepted {
		log.WithFields(m.LogTags).Infof(
			"Discarding push connection %s of %s, no longer needed", instance, accountID,
		)
		if err := conn.Close(); err != nil {
			log.WithError(err).WithFields(m.LogTags).Error("Failed to close discarded connection")
		}
		return
	}
	m.wg.Add(1)
	go m.readConnection(accountID, instance, conn)
}

type muxConnectDoneReq struct {
	accountID string
	instance  string
	client    upstream.AccountClient
	conn      upstream.PushConnection
	err       error
	resultCB  func(bool)
}

// connectDone report the outcome of a connection attempt. Returns whether the new
// connection was installed.
func (m *multiplexerImpl) connectDone(
	accountID, instance string,
	client upstream.AccountClient,
	conn upstream.PushConnection,
	connErr error,
) (bool, error) {
	complete := make(chan bool, 1)
	accepted := false
	request := muxConnectDoneReq{
		accountID: accountID,
		instance:  instance,
		client:    client,
		conn:      conn,
		err:       connErr,
		resultCB: func(ok bool) {
			accepted = ok
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil {
		return false, err
	}
	return accepted, nil
}

func (m *multiplexerImpl) processConnectDoneRequest(param interface{}) error {
	request, ok := param.(muxConnectDoneReq)
	if !ok {
		return wrongRequestType(param, "connect done")
	}
	entry, ok := m.connectionByAccount[request.accountID]
	if !ok || entry.instance != request.instance || entry.state != StateConnecting {
		request.resultCB(false)
		return nil
	}
	if request.err != nil {
		entry.state = StateClosed
		log.WithFields(m.LogTags).Infof("Account %s CLOSED, connect failed", request.accountID)
		request.resultCB(false)
		return nil
	}
	entry.state = StateOpen
	entry.conn = request.conn
	entry.client = request.client
	log.WithFields(m.LogTags).Infof("Account %s OPEN (%s)", request.accountID, request.instance)
	request.resultCB(true)
	return nil
}

// readConnection process the events of one push connection until it ends
func (m *multiplexerImpl) readConnection(
	accountID, instance string, conn upstream.PushConnection,
) {
	defer m.wg.Done()
	logTags := m.CopyLogTags()
	logTags["account"] = accountID
	logTags["connection"] = instance
	for {
		select {
		case <-m.rootCtxt.Done():
			_ = conn.Close()
			return
		case event, ok := <-conn.Events():
			if !ok {
				m.connectionEnded(accountID, instance)
				return
			}
			switch event.Type {
			case upstream.PushEventData:
				m.dispatch(accountID, instance)
			case upstream.PushEventError:
				log.WithError(event.Err).WithFields(logTags).Error("Push connection reported failure")
			case upstream.PushEventEnd:
				m.connectionEnded(accountID, instance)
				return
			}
		}
	}
}

// ----------------------------------------------------------------------------------------

type muxDispatchTargetsReq struct {
	accountID string
	instance  string
	resultCB  func([]string, upstream.AccountClient)
}

// dispatch re-evaluate and publish every channel of the account after a data event
func (m *multiplexerImpl) dispatch(accountID, instance string) {
	complete := make(chan bool, 1)
	var labels []string
	var client upstream.AccountClient
	request := muxDispatchTargetsReq{
		accountID: accountID,
		instance:  instance,
		resultCB: func(l []string, c upstream.AccountClient) {
			labels = l
			client = c
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil {
		return
	}
	if len(labels) == 0 {
		return
	}
	log.WithFields(m.LogTags).Debugf("Data event for %s, updating %d channels", accountID, len(labels))
	fanOut := errgroup.Group{}
	for _, label := range labels {
		channelLabel := label
		fanOut.Go(func() error {
			m.resolveAndPublish(channelLabel, client)
			return nil
		})
	}
	_ = fanOut.Wait()
}

// resolveAndPublish re-load, resolve and publish one channel. Failures are logged.
func (m *multiplexerImpl) resolveAndPublish(channelLabel string, client upstream.AccountClient) {
	cfg, err := m.Settings.Retrieve(m.rootCtxt, channelLabel)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to load settings of %s", channelLabel)
		return
	}
	value, err := m.Resolver.Resolve(m.rootCtxt, cfg, client)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to resolve %s", cfg)
		return
	}
	if err := m.Sink.Publish(m.rootCtxt, cfg, value, m.Confidence); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to publish %s", cfg)
	}
}

func (m *multiplexerImpl) processDispatchTargetsRequest(param interface{}) error {
	request, ok := param.(muxDispatchTargetsReq)
	if !ok {
		return wrongRequestType(param, "dispatch targets")
	}
	entry, ok := m.connectionByAccount[request.accountID]
	if !ok || entry.instance != request.instance {
		request.resultCB(nil, nil)
		return nil
	}
	request.resultCB(sortedLabels(m.channelsByAccount[request.accountID]), entry.client)
	return nil
}

// ----------------------------------------------------------------------------------------

type muxConnectionEndedReq struct {
	accountID string
	instance  string
	resultCB  func(bool)
}

// connectionEnded handle the end of a push connection, scheduling the reconnect check
func (m *multiplexerImpl) connectionEnded(accountID, instance string) {
	complete := make(chan bool, 1)
	scheduleReconnect := false
	request := muxConnectionEndedReq{
		accountID: accountID,
		instance:  instance,
		resultCB: func(schedule bool) {
			scheduleReconnect = schedule
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil || !scheduleReconnect {
		return
	}
	timer, err := common.GetIntervalTimerInstance(
		m.rootCtxt, m.wg, fmt.Sprintf("reconnect-%s", accountID),
	)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to schedule reconnect of %s", accountID)
		return
	}
	if err := timer.Start(m.ReconnectDelay, func() error {
		m.reconnect(accountID, instance)
		return nil
	}, true); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to schedule reconnect of %s", accountID)
	}
}

func (m *multiplexerImpl) processConnectionEndedRequest(param interface{}) error {
	request, ok := param.(muxConnectionEndedReq)
	if !ok {
		return wrongRequestType(param, "connection ended")
	}
	entry, ok := m.connectionByAccount[request.accountID]
	if !ok || entry.instance != request.instance || entry.state != StateOpen {
		request.resultCB(false)
		return nil
	}
	entry.state = StateClosed
	entry.conn = nil
	log.WithFields(m.LogTags).Infof("Account %s CLOSED, push connection ended", request.accountID)
	request.resultCB(true)
	return nil
}

// ----------------------------------------------------------------------------------------

type muxReconnectCheckReq struct {
	accountID string
	instance  string
	resultCB  func(*connectPlan)
}

// reconnect re-open the push connection of an account if it still has channels
func (m *multiplexerImpl) reconnect(accountID, endedInstance string) {
	complete := make(chan bool, 1)
	var plan *connectPlan
	request := muxReconnectCheckReq{
		accountID: accountID,
		instance:  endedInstance,
		resultCB: func(p *connectPlan) {
			plan = p
			complete <- true
		},
	}
	if err := m.submitAndWait(m.rootCtxt, request, complete); err != nil {
		return
	}
	if plan == nil {
		log.WithFields(m.LogTags).Debugf("No reconnect needed for %s", accountID)
		return
	}

	// Credentials are always fetched anew for a reconnect
	cfg, err := m.Settings.Retrieve(m.rootCtxt, plan.channelLabel)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Debugf(
			"No stored settings for %s, looking up credentials by label", plan.channelLabel,
		)
		cfg = common.ChannelConfig{ChannelLabel: plan.channelLabel}
	}
	client, err := m.clientFor(m.rootCtxt, cfg, nil)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Reconnect of %s failed", accountID)
		_, _ = m.connectDone(accountID, plan.instance, nil, nil, err)
		return
	}
	log.WithFields(m.LogTags).Infof("Reconnecting %s", accountID)
	m.connect(accountID, plan.instance, client)
}

func (m *multiplexerImpl) processReconnectCheckRequest(param interface{}) error {
	request, ok := param.(muxReconnectCheckReq)
	if !ok {
		return wrongRequestType(param, "reconnect check")
	}
	entry, ok := m.connectionByAccount[request.accountID]
	if !ok || entry.instance != request.instance || entry.state != StateClosed {
		request.resultCB(nil)
		return nil
	}
	labels := sortedLabels(m.channelsByAccount[request.accountID])
	if len(labels) == 0 {
		request.resultCB(nil)
		return nil
	}
	entry.state = StateConnecting
	entry.instance = uuid.New().String()
	log.WithFields(m.LogTags).Infof(
		"Account %s CONNECTING (%s), reconnect", request.accountID, entry.instance,
	)
	request.resultCB(&connectPlan{instance: entry.instance, channelLabel: labels[0]})
	return nil
}

// ========================================================================================
// Introspection

type muxStatusReq struct {
	accountID *string
	resultCB  func([]AccountStatus)
}

func (m *multiplexerImpl) status(ctxt context.Context, accountID *string) ([]AccountStatus, error) {
	complete := make(chan bool, 1)
	var result []AccountStatus
	request := muxStatusReq{
		accountID: accountID,
		resultCB: func(s []AccountStatus) {
			result = s
			complete <- true
		},
	}
	if err := m.submitAndWait(ctxt, request, complete); err != nil {
		return nil, err
	}
	return result, nil
}

// AccountStatus report the subscription state of one account
func (m *multiplexerImpl) AccountStatus(
	ctxt context.Context, accountID string,
) (AccountStatus, error) {
	result, err := m.status(ctxt, &accountID)
	if err != nil {
		return AccountStatus{}, err
	}
	if len(result) == 0 {
		return AccountStatus{AccountID: accountID, State: StateAbsent}, ErrAccountNotFound
	}
	return result[0], nil
}

// Accounts report the subscription state of all accounts
func (m *multiplexerImpl) Accounts(ctxt context.Context) ([]AccountStatus, error) {
	return m.status(ctxt, nil)
}

func (m *multiplexerImpl) processStatusRequest(param interface{}) error {
	request, ok := param.(muxStatusReq)
	if !ok {
		return wrongRequestType(param, "status")
	}
	result := []AccountStatus{}
	for accountID, entry := range m.connectionByAccount {
		if request.accountID != nil && *request.accountID != accountID {
			continue
		}
		result = append(result, AccountStatus{
			AccountID: accountID,
			State:     entry.state,
			Channels:  sortedLabels(m.channelsByAccount[accountID]),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	request.resultCB(result)
	return nil
}

func sortedLabels(labels map[string]bool) []string {
	result := make([]string, 0, len(labels))
	for label := range labels {
		result = append(result, label)
	}
	sort.Strings(result)
	return result
}
