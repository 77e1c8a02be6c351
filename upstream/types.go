package upstream

import (
	"context"

	"github.com/alwitt/streammux/common"
)

// PushEventType type of push connection event
type PushEventType string

const (
	// PushEventData the connection delivered a payload
	PushEventData PushEventType = "data"
	// PushEventError the connection reported a failure. The connection may still be alive.
	PushEventError PushEventType = "error"
	// PushEventEnd the connection terminated
	PushEventEnd PushEventType = "end"
)

// PushEvent one event observed on a push connection
type PushEvent struct {
	// Type is the event type
	Type PushEventType
	// Data is the decoded payload of a data event
	Data interface{}
	// Err is the failure of an error event
	Err error
}

// PushConnection a live push connection for one account
type PushConnection interface {
	// Events the stream of connection events. The channel closes after the end event.
	Events() <-chan PushEvent
	// Close terminate the connection. No end event is delivered after Close.
	Close() error
}

// AccountClient the upstream platform operations available for one account
type AccountClient interface {
	/*
		Request perform a snapshot request

		 @param ctxt context.Context - the operation context
		 @param endpoint string - the endpoint. A leading "/" and a trailing ".json" are
		     accepted and stripped.
		 @param params map[string]interface{} - request parameters
		 @return the decoded response
	*/
	Request(ctxt context.Context, endpoint string, params map[string]interface{}) (interface{}, error)

	/*
		OpenPushConnection open a push connection for the account

		 @param ctxt context.Context - the operation context
		 @param topic string - the push topic
		 @return the connection handle
	*/
	OpenPushConnection(ctxt context.Context, topic string) (PushConnection, error)
}

// ClientFactory build account clients from credentials
type ClientFactory interface {
	NewClient(creds common.Credentials) (AccountClient, error)
}

// TokenProvider supply the credentials for a channel's subscriber
type TokenProvider interface {
	GetCredentials(ctxt context.Context, cfg common.ChannelConfig) (common.Credentials, error)
}

// Transport the raw upstream operations an AccountClient is built over
type Transport interface {
	Get(ctxt context.Context, endpoint string, params map[string]interface{}) (interface{}, error)
	Stream(ctxt context.Context, topic string) (PushConnection, error)
}
