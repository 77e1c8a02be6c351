// Copyright 2021-2022 The streammux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/alwitt/goutils"
	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/dataplane"
	"github.com/alwitt/streammux/poller"
	"github.com/alwitt/streammux/resolver"
	"github.com/alwitt/streammux/storage"
	"github.com/alwitt/streammux/subscription"
	"github.com/alwitt/streammux/upstream"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
)

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctxt context.Context) error

// ChannelAPIParams collaborators of the channel REST API
type ChannelAPIParams struct {
	// Store holds channel settings and credentials
	Store storage.Backend
	// Multiplexer manages the push subscriptions
	Multiplexer subscription.Multiplexer
	// Clients builds account clients for on-demand snapshots
	Clients upstream.ClientFactory
	// Resolver computes channel display values
	Resolver resolver.QueryResolver
	// Values reads back published values
	Values dataplane.ValueReader
	// Poller runs on-demand poll rounds
	Poller poller.Poller
	// ReadyChecks are the dependencies checked by the readiness probe
	ReadyChecks map[string]ReadinessCheck
}

// APIRestChannelHandler REST handler for channel registration
type APIRestChannelHandler struct {
	goutils.RestAPIHandler
	ChannelAPIParams
	validate *validator.Validate
}

// GetAPIRestChannelHandler define APIRestChannelHandler
func GetAPIRestChannelHandler(
	params ChannelAPIParams, httpConfig *common.HTTPConfig,
) (APIRestChannelHandler, error) {
	if params.Store == nil || params.Multiplexer == nil || params.Clients == nil ||
		params.Resolver == nil || params.Values == nil || params.Poller == nil {
		return APIRestChannelHandler{}, fmt.Errorf("channel API is missing collaborators")
	}
	logTags := log.Fields{
		"module":    "apis",
		"component": "channel",
	}
	return APIRestChannelHandler{
		RestAPIHandler:   defineRestAPIHandler(logTags, httpConfig),
		ChannelAPIParams: params,
		validate:         validator.New(),
	}, nil
}

// errorResponseCode pick the response code for a failed channel operation
func errorResponseCode(err error) int {
	var credErr *common.CredentialError
	var upErr *common.UpstreamError
	switch {
	case errors.Is(err, storage.ErrChannelNotFound), errors.Is(err, nats.ErrMsgNotFound):
		return http.StatusNotFound
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readChannelLabel fetch the channel label path variable
func readChannelLabel(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	channelLabel, ok := vars["channelLabel"]
	if !ok || len(channelLabel) == 0 {
		return "", fmt.Errorf("no channel label provided")
	}
	return channelLabel, nil
}

// =======================================================================
// Channel registration

// -----------------------------------------------------------------------

// APIRestReqChannelRegistration channel registration parameters
type APIRestReqChannelRegistration struct {
	// DisplayFrom selects the metric to display
	DisplayFrom common.DisplayFrom `json:"display_from"`
	// DisplayOption is a secondary display selector
	DisplayOption string `json:"display_option,omitempty"`
	// State is the opaque subscriber state
	State map[string]string `json:"state,omitempty"`
	// Credentials are the subscriber's account credentials. The stored credentials
	// are used if not provided.
	Credentials *common.Credentials `json:"credentials,omitempty" validate:"omitempty"`
}

// APIRestRespChannelValue response carrying a channel display value
type APIRestRespChannelValue struct {
	goutils.RestAPIBaseResponse
	// ChannelLabel is the channel
	ChannelLabel string `json:"channel_label"`
	// Value is the display value
	Value string `json:"value"`
}

// RegisterChannel godoc
// @Summary Register a channel
// @Description Store the channel settings, subscribe it to its account's push connection,
// and return its current display value
// @tags Channel
// @Accept json
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Param channelLabel path string true "Channel label"
// @Param setting body APIRestReqChannelRegistration true "Channel settings"
// @Success 200 {object} APIRestRespChannelValue "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 502 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/channel/{channelLabel} [post]
func (h APIRestChannelHandler) RegisterChannel(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	channelLabel, err := readChannelLabel(r)
	if err != nil {
		msg := "Invalid request"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	var params APIRestReqChannelRegistration
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if params.Credentials != nil {
		if err := h.validate.Struct(params.Credentials); err != nil {
			msg := "Invalid credentials"
			log.WithError(err).WithFields(localLogTags).Error(msg)
			respCode = http.StatusBadRequest
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
			return
		}
	}

	cfg := common.ChannelConfig{
		ChannelLabel:  channelLabel,
		DisplayFrom:   params.DisplayFrom,
		DisplayOption: params.DisplayOption,
		State:         params.State,
	}
	if err := h.Store.Save(r.Context(), cfg, params.Credentials); err != nil {
		msg := fmt.Sprintf("Unable to store %s", cfg)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	value, err := h.Multiplexer.Register(r.Context(), cfg, params.Credentials)
	if err != nil {
		msg := fmt.Sprintf("Unable to register %s", cfg)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = errorResponseCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespChannelValue{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		ChannelLabel: channelLabel,
		Value:        value,
	}
}

// RegisterChannelHandler Wrapper around RegisterChannel
func (h APIRestChannelHandler) RegisterChannelHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.RegisterChannel)
}

// -----------------------------------------------------------------------

// UnregisterChannel godoc
// @Summary Unregister a channel
// @Description Remove the channel from its account's push connection, and delete its
// stored settings
// @tags Channel
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Param channelLabel path string true "Channel label"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/channel/{channelLabel} [delete]
func (h APIRestChannelHandler) UnregisterChannel(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	channelLabel, err := readChannelLabel(r)
	if err != nil {
		msg := "Invalid request"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	cfg, err := h.Store.Retrieve(r.Context(), channelLabel)
	if err != nil {
		if !errors.Is(err, storage.ErrChannelNotFound) {
			msg := fmt.Sprintf("Unable to read settings of %s", channelLabel)
			log.WithError(err).WithFields(localLogTags).Error(msg)
			respCode = http.StatusInternalServerError
			respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
			return
		}
		cfg = common.ChannelConfig{ChannelLabel: channelLabel}
	}

	if err := h.Multiplexer.Unregister(r.Context(), cfg, nil); err != nil {
		msg := fmt.Sprintf("Unable to unregister %s", cfg)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = errorResponseCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	if err := h.Store.Delete(r.Context(), channelLabel); err != nil {
		msg := fmt.Sprintf("Unable to delete settings of %s", cfg)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// UnregisterChannelHandler Wrapper around UnregisterChannel
func (h APIRestChannelHandler) UnregisterChannelHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.UnregisterChannel)
}

// -----------------------------------------------------------------------

// APIRestRespAllChannels response listing all stored channels
type APIRestRespAllChannels struct {
	goutils.RestAPIBaseResponse
	// Channels are the stored channel settings, ordered by label
	Channels []common.ChannelConfig `json:"channels"`
}

// GetAllChannels godoc
// @Summary List channels
// @Description List the settings of all stored channels
// @tags Channel
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespAllChannels "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/channel [get]
func (h APIRestChannelHandler) GetAllChannels(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	all, err := h.Store.EnumerateAll(r.Context())
	if err != nil {
		msg := "Unable to list channels"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}
	channels := make([]common.ChannelConfig, 0, len(all))
	for _, cfg := range all {
		channels = append(channels, cfg)
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].ChannelLabel < channels[j].ChannelLabel
	})

	respCode = http.StatusOK
	respBody = APIRestRespAllChannels{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Channels: channels,
	}
}

// GetAllChannelsHandler Wrapper around GetAllChannels
func (h APIRestChannelHandler) GetAllChannelsHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetAllChannels)
}

// -----------------------------------------------------------------------

// GetChannelSnapshot godoc
// @Summary Compute a channel's display value
// @Description Compute the current display value of a stored channel without publishing it
// @tags Channel
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Param channelLabel path string true "Channel label"
// @Success 200 {object} APIRestRespChannelValue "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 502 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/channel/{channelLabel} [get]
func (h APIRestChannelHandler) GetChannelSnapshot(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	channelLabel, err := readChannelLabel(r)
	if err != nil {
		msg := "Invalid request"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	value, err := h.snapshot(r.Context(), channelLabel)
	if err != nil {
		msg := fmt.Sprintf("Unable to compute value of %s", channelLabel)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = errorResponseCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespChannelValue{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		ChannelLabel: channelLabel,
		Value:        value,
	}
}

// snapshot compute the display value of a stored channel
func (h APIRestChannelHandler) snapshot(ctxt context.Context, channelLabel string) (string, error) {
	cfg, err := h.Store.Retrieve(ctxt, channelLabel)
	if err != nil {
		return "", err
	}
	creds, err := h.Store.GetCredentials(ctxt, cfg)
	if err != nil {
		return "", err
	}
	client, err := h.Clients.NewClient(creds)
	if err != nil {
		return "", err
	}
	return h.Resolver.Resolve(ctxt, cfg, client)
}

// GetChannelSnapshotHandler Wrapper around GetChannelSnapshot
func (h APIRestChannelHandler) GetChannelSnapshotHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetChannelSnapshot)
}

// -----------------------------------------------------------------------

// APIRestRespPublishedValue response carrying the last published value of a channel
type APIRestRespPublishedValue struct {
	goutils.RestAPIBaseResponse
	// Published is the last published value
	Published common.ChannelValue `json:"published"`
}

// GetPublishedValue godoc
// @Summary Read a channel's last published value
// @Description Read back the most recent value published for a channel
// @tags Channel
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Param channelLabel path string true "Channel label"
// @Success 200 {object} APIRestRespPublishedValue "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/channel/{channelLabel}/published [get]
func (h APIRestChannelHandler) GetPublishedValue(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	channelLabel, err := readChannelLabel(r)
	if err != nil {
		msg := "Invalid request"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	published, err := h.Values.LastValue(r.Context(), channelLabel)
	if err != nil {
		msg := fmt.Sprintf("Unable to read last value of %s", channelLabel)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = errorResponseCode(err)
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespPublishedValue{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Published: published,
	}
}

// GetPublishedValueHandler Wrapper around GetPublishedValue
func (h APIRestChannelHandler) GetPublishedValueHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetPublishedValue)
}

// =======================================================================
// Accounts and polling

// -----------------------------------------------------------------------

// APIRestRespAllAccounts response listing the subscribed accounts
type APIRestRespAllAccounts struct {
	goutils.RestAPIBaseResponse
	// Accounts are the accounts with their connection state, ordered by account ID
	Accounts []subscription.AccountStatus `json:"accounts"`
}

// GetAllAccounts godoc
// @Summary List subscribed accounts
// @Description List the accounts with a push connection entry, and their channels
// @tags Account
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespAllAccounts "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/account [get]
func (h APIRestChannelHandler) GetAllAccounts(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	accounts, err := h.Multiplexer.Accounts(r.Context())
	if err != nil {
		msg := "Unable to list accounts"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespAllAccounts{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Accounts: accounts,
	}
}

// GetAllAccountsHandler Wrapper around GetAllAccounts
func (h APIRestChannelHandler) GetAllAccountsHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetAllAccounts)
}

// -----------------------------------------------------------------------

// APIRestRespPollReport response describing a poll round
type APIRestRespPollReport struct {
	goutils.RestAPIBaseResponse
	// Report is the poll round outcome
	Report poller.PollReport `json:"report"`
}

// TriggerPoll godoc
// @Summary Poll all channels
// @Description Re-evaluate and publish every stored channel now
// @tags Poll
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespPollReport "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/poll [post]
func (h APIRestChannelHandler) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	report, err := h.Poller.PollOnce(r.Context())
	if err != nil {
		msg := "Poll round failed"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), respCode, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespPollReport{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Report: report,
	}
}

// TriggerPollHandler Wrapper around TriggerPoll
func (h APIRestChannelHandler) TriggerPollHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.TriggerPoll)
}

// =======================================================================
// Settings schema

// -----------------------------------------------------------------------

// DisplayFromOption one selectable display mode
type DisplayFromOption struct {
	// Value is the display mode
	Value common.DisplayFrom `json:"value"`
	// Label is the human readable name
	Label string `json:"label"`
}

// ChannelSettingsSchema the channel settings a registration UI renders
type ChannelSettingsSchema struct {
	// DisplayFrom are the selectable display modes
	DisplayFrom []DisplayFromOption `json:"display_from"`
	// DefaultDisplayFrom is the preselected display mode
	DefaultDisplayFrom common.DisplayFrom `json:"default_display_from"`
}

// channelSettingsSchema the supported channel settings
var channelSettingsSchema = ChannelSettingsSchema{
	DisplayFrom: []DisplayFromOption{
		{Value: common.DisplayLastTweet, Label: "My Last Tweet"},
		{Value: common.DisplayMyProfile, Label: "My Profile"},
		{Value: common.DisplayTrends, Label: "Top 3 Trends"},
	},
	DefaultDisplayFrom: common.DisplayLastTweet,
}

// APIRestRespSettingsSchema response carrying the channel settings schema
type APIRestRespSettingsSchema struct {
	goutils.RestAPIBaseResponse
	// Schema is the channel settings schema
	Schema ChannelSettingsSchema `json:"schema"`
}

// GetSettingsSchema godoc
// @Summary Channel settings schema
// @Description Describe the channel settings accepted during registration
// @tags Channel
// @Produce json
// @Param Streammux-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespSettingsSchema "success"
// @Header 200,400,500 {string} Streammux-Request-ID "Request ID to match against logs"
// @Router /v1/config [get]
func (h APIRestChannelHandler) GetSettingsSchema(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	resp := APIRestRespSettingsSchema{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Schema: channelSettingsSchema,
	}
	if err := h.WriteRESTResponse(w, http.StatusOK, resp, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// GetSettingsSchemaHandler Wrapper around GetSettingsSchema
func (h APIRestChannelHandler) GetSettingsSchemaHandler() http.HandlerFunc {
	return h.LoggingMiddleware(h.GetSettingsSchema)
}

// =======================================================================
// Health Checks

// -----------------------------------------------------------------------

// Alive godoc
// @Summary For REST API liveness check
// @Description Will return success to indicate REST API module is live
// @tags Health
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/alive [get]
func (h APIRestChannelHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestChannelHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For REST API readiness check
// @Description Will return success if NATS and the settings store are usable
// @tags Health
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/ready [get]
func (h APIRestChannelHandler) Ready(w http.ResponseWriter, r *http.Request) {
	msg := "not ready"
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	for name, check := range h.ReadyChecks {
		if err := check(r.Context()); err != nil {
			log.WithError(err).WithFields(localLogTags).Errorf("%s is not ready", name)
			respCode = http.StatusInternalServerError
			respBody = h.GetStdRESTErrorMsg(
				r.Context(), http.StatusInternalServerError, msg, fmt.Sprintf("%s: %s", name, err),
			)
			return
		}
	}
	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// ReadyHandler Wrapper around Ready
func (h APIRestChannelHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}

// =======================================================================

// RegisterRoutes install the channel API routes on a router
func (h APIRestChannelHandler) RegisterRoutes(mainRouter *mux.Router) {
	channelRouter := RegisterPathPrefix(mainRouter, "/v1/channel", MethodHandlers{
		"get": h.GetAllChannelsHandler(),
	})
	perChannelRouter := RegisterPathPrefix(channelRouter, "/{channelLabel}", MethodHandlers{
		"post":   h.RegisterChannelHandler(),
		"delete": h.UnregisterChannelHandler(),
		"get":    h.GetChannelSnapshotHandler(),
	})
	_ = RegisterPathPrefix(perChannelRouter, "/published", MethodHandlers{
		"get": h.GetPublishedValueHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/v1/account", MethodHandlers{
		"get": h.GetAllAccountsHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/v1/poll", MethodHandlers{
		"post": h.TriggerPollHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/v1/config", MethodHandlers{
		"get": h.GetSettingsSchemaHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/v1/alive", MethodHandlers{
		"get": h.AliveHandler(),
	})
	_ = RegisterPathPrefix(mainRouter, "/v1/ready", MethodHandlers{
		"get": h.ReadyHandler(),
	})
}
