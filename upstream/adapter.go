package upstream

import (
	"context"
	"regexp"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
)

var endpointPattern = regexp.MustCompile(`^/?(.*?)(\.json)?$`)

// NormalizeEndpoint strip a leading "/" and a trailing ".json" from an endpoint
func NormalizeEndpoint(endpoint string) string {
	match := endpointPattern.FindStringSubmatch(endpoint)
	if match == nil {
		return endpoint
	}
	return match[1]
}

// accountClientImpl implements AccountClient
type accountClientImpl struct {
	common.Component
	transport Transport
}

// NewAccountClient define a new account client over a transport
func NewAccountClient(transport Transport, instance string) AccountClient {
	logTags := log.Fields{
		"module": "upstream", "component": "account-client", "instance": instance,
	}
	return &accountClientImpl{
		Component: common.Component{LogTags: logTags},
		transport: transport,
	}
}

// Request perform a snapshot request
func (c *accountClientImpl) Request(
	ctxt context.Context, endpoint string, params map[string]interface{},
) (interface{}, error) {
	endpoint = NormalizeEndpoint(endpoint)
	result, err := c.transport.Get(ctxt, endpoint, params)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("GET %s failed", endpoint)
		return nil, &common.UpstreamError{Endpoint: endpoint, Err: err}
	}
	return result, nil
}

// OpenPushConnection open a push connection for the account
func (c *accountClientImpl) OpenPushConnection(
	ctxt context.Context, topic string,
) (PushConnection, error) {
	topic = NormalizeEndpoint(topic)
	conn, err := c.transport.Stream(ctxt, topic)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("Push connection %s failed", topic)
		return nil, &common.UpstreamError{Endpoint: topic, Err: err}
	}
	log.WithFields(c.LogTags).Debugf("Opened push connection %s", topic)
	return conn, nil
}
