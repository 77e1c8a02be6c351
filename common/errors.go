package common

import "fmt"

// UpstreamError a failure reported by the upstream platform transport or API
type UpstreamError struct {
	// Endpoint is the normalized endpoint, or push topic, being called
	Endpoint string
	// Err is the transport failure
	Err error
}

// Error implements error
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream call %s failed: %s", e.Endpoint, e.Err)
}

// Unwrap support errors.Is / errors.As
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// CredentialError a failure to obtain credentials for a channel
type CredentialError struct {
	// ChannelLabel is the channel whose credentials were requested
	ChannelLabel string
	// Err is the token provider failure
	Err error
}

// Error implements error
func (e *CredentialError) Error() string {
	return fmt.Sprintf("unable to get credentials for %s: %s", e.ChannelLabel, e.Err)
}

// Unwrap support errors.Is / errors.As
func (e *CredentialError) Unwrap() error {
	return e.Err
}
