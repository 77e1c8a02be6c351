package subscription

import (
	"context"
	"errors"

	"github.com/alwitt/streammux/common"
)

// ConnectionState state of an account's push connection
type ConnectionState string

const (
	// StateAbsent the account has no connection entry
	StateAbsent ConnectionState = "ABSENT"
	// StateConnecting a push connection is being opened
	StateConnecting ConnectionState = "CONNECTING"
	// StateOpen the push connection is live
	StateOpen ConnectionState = "OPEN"
	// StateClosed the push connection ended or failed to open. A reconnect may be pending.
	StateClosed ConnectionState = "CLOSED"
)

// ErrAccountNotFound the account has no subscribed channels
var ErrAccountNotFound = errors.New("account not found")

// AccountStatus snapshot of one account's subscription state
type AccountStatus struct {
	// AccountID is the upstream account identity
	AccountID string `json:"account_id"`
	// State is the push connection state
	State ConnectionState `json:"state"`
	// Channels are the labels of the channels subscribed through this account
	Channels []string `json:"channels"`
}

// Multiplexer share one push connection per upstream account between all the channels
// registered against that account
type Multiplexer interface {
	/*
		Register subscribe a channel and compute its initial display value. The push
		connection of the channel's account is opened in the background when needed.

		 @param ctxt context.Context - the operation context
		 @param cfg common.ChannelConfig - the channel settings
		 @param creds *common.Credentials - the subscriber credentials. When nil, the
		     credentials are fetched from the token provider.
		 @return the initial display value
	*/
	Register(ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials) (string, error)

	/*
		Unregister remove a channel. The account's push connection is closed once the
		account has no channels left.

		 @param ctxt context.Context - the operation context
		 @param cfg common.ChannelConfig - the channel settings
		 @param creds *common.Credentials - the subscriber credentials. When nil, the
		     credentials are fetched from the token provider if the account must be looked up.
	*/
	Unregister(ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials) error

	// AccountStatus report the subscription state of one account
	AccountStatus(ctxt context.Context, accountID string) (AccountStatus, error)

	// Accounts report the subscription state of all accounts
	Accounts(ctxt context.Context) ([]AccountStatus, error)
}
