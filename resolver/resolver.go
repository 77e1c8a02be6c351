package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alwitt/streammux/cache"
	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/upstream"
	"github.com/apex/log"
)

const (
	endpointUserTimeline      = "statuses/user_timeline"
	endpointVerifyCredentials = "account/verify_credentials"
	endpointTrendsPlace       = "trends/place"
	maxTrendsShown            = 3
	trendsSeparator           = "\n"
)

// QueryResolver compute display values for channels
type QueryResolver interface {
	/*
		Resolve compute the display value of a channel

		 @param ctxt context.Context - the operation context
		 @param cfg common.ChannelConfig - the channel settings
		 @param client upstream.AccountClient - client for the channel's account
		 @return the display value. Unrecognized display modes yield common.NoDataValue.
	*/
	Resolve(ctxt context.Context, cfg common.ChannelConfig, client upstream.AccountClient) (string, error)

	/*
		ResolveAccountIdentity fetch the identity of the account behind a client

		 @param ctxt context.Context - the operation context
		 @param client upstream.AccountClient - the account client
		 @return the account identity
	*/
	ResolveAccountIdentity(ctxt context.Context, client upstream.AccountClient) (string, error)
}

// queryResolverImpl implements QueryResolver
type queryResolverImpl struct {
	common.Component
	cache          cache.RequestCache
	trendsTTL      time.Duration
	trendsRegionID int
}

// NewQueryResolver define a new query resolver
func NewQueryResolver(requestCache cache.RequestCache, config common.CacheConfig) QueryResolver {
	logTags := log.Fields{
		"module": "resolver", "component": "query-resolver",
	}
	return &queryResolverImpl{
		Component:      common.Component{LogTags: logTags},
		cache:          requestCache,
		trendsTTL:      time.Second * time.Duration(config.TrendsTTL),
		trendsRegionID: config.TrendsRegionID,
	}
}

// Resolve compute the display value of a channel
func (r *queryResolverImpl) Resolve(
	ctxt context.Context, cfg common.ChannelConfig, client upstream.AccountClient,
) (string, error) {
	switch cfg.DisplayFrom {
	case common.DisplayLastTweet:
		return r.lastPostCounters(ctxt, client)
	case common.DisplayMyProfile:
		return r.followerCount(ctxt, client)
	case common.DisplayTrends:
		return r.topTrends(ctxt, client)
	default:
		log.WithFields(r.LogTags).Debugf("%s has no recognized display mode", cfg)
		return common.NoDataValue, nil
	}
}

func (r *queryResolverImpl) lastPostCounters(
	ctxt context.Context, client upstream.AccountClient,
) (string, error) {
	result, err := client.Request(ctxt, endpointUserTimeline, map[string]interface{}{
		"count":           1,
		"include_rts":     false,
		"trim_user":       true,
		"exclude_replies": true,
	})
	if err != nil {
		return "", err
	}
	reposts, likes := 0.0, 0.0
	if posts, ok := result.([]interface{}); ok && len(posts) > 0 {
		if post, ok := posts[0].(map[string]interface{}); ok {
			reposts = toNumber(post["retweet_count"])
			likes = toNumber(post["favorite_count"])
		}
	}
	return fmt.Sprintf("R %s, F %s", formatNumber(reposts), formatNumber(likes)), nil
}

func (r *queryResolverImpl) followerCount(
	ctxt context.Context, client upstream.AccountClient,
) (string, error) {
	result, err := client.Request(ctxt, endpointVerifyCredentials, verifyCredentialsParams())
	if err != nil {
		return "", err
	}
	followers := 0.0
	if profile, ok := result.(map[string]interface{}); ok {
		followers = toNumber(profile["followers_count"])
	}
	return fmt.Sprintf("F %s", formatNumber(followers)), nil
}

func (r *queryResolverImpl) topTrends(
	ctxt context.Context, client upstream.AccountClient,
) (string, error) {
	params := map[string]interface{}{"id": r.trendsRegionID}
	result, err := r.cache.Fetch(
		ctxt,
		cache.KeyFor(endpointTrendsPlace, params),
		r.trendsTTL,
		func(ctxt context.Context) (interface{}, error) {
			return client.Request(ctxt, endpointTrendsPlace, params)
		},
	)
	if err != nil {
		return "", err
	}
	names := trendNames(result)
	if len(names) > maxTrendsShown {
		names = names[:maxTrendsShown]
	}
	if len(names) == 0 {
		return common.NoDataValue, nil
	}
	return strings.Join(names, trendsSeparator), nil
}

// ResolveAccountIdentity fetch the identity of the account behind a client
func (r *queryResolverImpl) ResolveAccountIdentity(
	ctxt context.Context, client upstream.AccountClient,
) (string, error) {
	result, err := client.Request(ctxt, endpointVerifyCredentials, verifyCredentialsParams())
	if err != nil {
		return "", err
	}
	if profile, ok := result.(map[string]interface{}); ok {
		if id, ok := profile["id_str"].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", &common.UpstreamError{
		Endpoint: endpointVerifyCredentials, Err: fmt.Errorf("response carries no account identity"),
	}
}

func verifyCredentialsParams() map[string]interface{} {
	return map[string]interface{}{
		"include_entities": false,
		"skip_status":      true,
		"include_email":    false,
	}
}

// trendNames extract the trend names from a trends/place response, in order
func trendNames(result interface{}) []string {
	places, ok := result.([]interface{})
	if !ok || len(places) == 0 {
		return nil
	}
	place, ok := places[0].(map[string]interface{})
	if !ok {
		return nil
	}
	trends, ok := place["trends"].([]interface{})
	if !ok {
		return nil
	}
	names := []string{}
	for _, oneTrend := range trends {
		if asMap, ok := oneTrend.(map[string]interface{}); ok {
			if name, ok := asMap["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// toNumber read a counter value. Missing or non-numeric values read as 0.
func toNumber(raw interface{}) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if parsed, err := v.Float64(); err == nil {
			return finiteOrZero(parsed)
		}
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return finiteOrZero(parsed)
		}
	}
	return 0
}

// finiteOrZero NaN and infinities are not counters
func finiteOrZero(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
