package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DisplayFrom selects which upstream metric a channel displays
type DisplayFrom string

const (
	// DisplayLastTweet show repost / like counters of the account's most recent post
	DisplayLastTweet DisplayFrom = "LAST_TWEET"
	// DisplayMyProfile show the account's follower count
	DisplayMyProfile DisplayFrom = "MY_PROFILE"
	// DisplayTrends show the current top trending topics
	DisplayTrends DisplayFrom = "TRENDS"
)

// NoDataValue is the display value used when there is nothing to show
const NoDataValue = "N/A"

// ChannelConfig a subscriber's declarative channel settings
type ChannelConfig struct {
	// ChannelLabel is the unique identity of the channel
	ChannelLabel string `json:"channel_label" validate:"required"`
	// DisplayFrom selects the metric to display. Unrecognized values are tolerated.
	DisplayFrom DisplayFrom `json:"display_from,omitempty"`
	// DisplayOption is a secondary display selector, carried through untouched
	DisplayOption string `json:"display_option,omitempty"`
	// State is the opaque subscriber state used to look up credentials
	State map[string]string `json:"state,omitempty"`
}

// String toString function
func (c ChannelConfig) String() string {
	return fmt.Sprintf("CHANNEL[%s:%s]", c.ChannelLabel, c.DisplayFrom)
}

// Scan implements the sql.Scanner interface
func (c *ChannelConfig) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("src is not []byte or string")
	}
}

// Value implements the sql/driver.Valuer interface
func (c ChannelConfig) Value() (driver.Value, error) {
	return json.Marshal(&c)
}

// Credentials access credentials for one upstream account
type Credentials struct {
	AccessToken       string `json:"oauth_access_token" validate:"required"`
	AccessTokenSecret string `json:"oauth_access_token_secret,omitempty"`
}

// Scan implements the sql.Scanner interface
func (c *Credentials) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("src is not []byte or string")
	}
}

// Value implements the sql/driver.Valuer interface
func (c Credentials) Value() (driver.Value, error) {
	return json.Marshal(&c)
}
