package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// restTransport implements Transport against the platform's REST API, with push
// connections carried over websocket
type restTransport struct {
	common.Component
	apiBase    *url.URL
	streamBase *url.URL
	creds      common.Credentials
	client     *http.Client
	dialer     *websocket.Dialer
	limiter    *rate.Limiter
}

// Get perform one REST GET, returning the decoded JSON body
func (t *restTransport) Get(
	ctxt context.Context, endpoint string, params map[string]interface{},
) (interface{}, error) {
	if err := t.limiter.Wait(ctxt); err != nil {
		return nil, err
	}
	target := t.apiBase.JoinPath(endpoint + ".json")
	query := url.Values{}
	for k, v := range params {
		query.Set(k, fmt.Sprintf("%v", v))
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctxt, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unable to parse response: %w", err)
	}
	return result, nil
}

// Stream open a websocket push connection for a topic
func (t *restTransport) Stream(ctxt context.Context, topic string) (PushConnection, error) {
	target := *t.streamBase.JoinPath(topic)
	switch target.Scheme {
	case "http":
		target.Scheme = "ws"
	case "https":
		target.Scheme = "wss"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.creds.AccessToken)
	conn, resp, err := t.dialer.DialContext(ctxt, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	logTags := t.CopyLogTags()
	logTags["push_topic"] = topic
	return newWebsocketPushConnection(conn, logTags), nil
}

// ==============================================================================

// websocketPushConnection implements PushConnection over a websocket
type websocketPushConnection struct {
	common.Component
	conn      *websocket.Conn
	events    chan PushEvent
	closed    chan bool
	closeOnce sync.Once
}

func newWebsocketPushConnection(conn *websocket.Conn, logTags log.Fields) PushConnection {
	instance := &websocketPushConnection{
		Component: common.Component{LogTags: logTags},
		conn:      conn,
		events:    make(chan PushEvent, 16),
		closed:    make(chan bool),
	}
	go instance.readLoop()
	return instance
}

// emit deliver one event unless the connection was closed locally
func (c *websocketPushConnection) emit(event PushEvent) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.events <- event:
		return true
	case <-c.closed:
		return false
	}
}

func (c *websocketPushConnection) readLoop() {
	defer close(c.events)
	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(PushEvent{Type: PushEventError, Err: err})
			}
			log.WithFields(c.LogTags).Info("Push connection ended")
			c.emit(PushEvent{Type: PushEventEnd})
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		// Keep-alive newlines carry no payload
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var payload interface{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			if !c.emit(PushEvent{Type: PushEventError, Err: fmt.Errorf("malformed push payload: %w", err)}) {
				return
			}
			continue
		}
		if !c.emit(PushEvent{Type: PushEventData, Data: payload}) {
			return
		}
	}
}

// Events the stream of connection events
func (c *websocketPushConnection) Events() <-chan PushEvent {
	return c.events
}

// Close terminate the connection
func (c *websocketPushConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
		log.WithFields(c.LogTags).Debug("Push connection closed")
	})
	return err
}

// ==============================================================================

// restClientFactory implements ClientFactory
type restClientFactory struct {
	common.Component
	config     common.UpstreamConfig
	apiBase    *url.URL
	streamBase *url.URL
	client     *http.Client
	dialer     *websocket.Dialer
}

// NewRESTClientFactory define a factory of account clients talking to the platform REST API
func NewRESTClientFactory(config common.UpstreamConfig) (ClientFactory, error) {
	apiBase, err := url.Parse(config.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	streamBase, err := url.Parse(config.StreamBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream base URL: %w", err)
	}
	timeout := time.Second * time.Duration(config.RequestTimeout)
	logTags := log.Fields{
		"module": "upstream", "component": "client-factory", "instance": apiBase.Host,
	}
	return &restClientFactory{
		Component:  common.Component{LogTags: logTags},
		config:     config,
		apiBase:    apiBase,
		streamBase: streamBase,
		client:     &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// NewClient build an account client from credentials
func (f *restClientFactory) NewClient(creds common.Credentials) (AccountClient, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("credentials missing access token")
	}
	instance := uuid.New().String()
	logTags := f.CopyLogTags()
	logTags["client"] = instance
	transport := &restTransport{
		Component:  common.Component{LogTags: logTags},
		apiBase:    f.apiBase,
		streamBase: f.streamBase,
		creds:      creds,
		client:     f.client,
		dialer:     f.dialer,
		limiter:    rate.NewLimiter(rate.Limit(f.config.RequestRate), f.config.RequestBurst),
	}
	return NewAccountClient(transport, instance), nil
}
