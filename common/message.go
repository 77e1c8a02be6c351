package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChannelValue one computed display value published for a channel
type ChannelValue struct {
	// ChannelLabel is the channel the value is computed for
	ChannelLabel string `json:"channel_label" validate:"required"`
	// Value is the display string
	Value string `json:"value"`
	// Confidence is the confidence attached by the producer
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	// PublishedAt is when the value was computed
	PublishedAt time.Time `json:"published_at"`
}

// String toString function
func (v ChannelValue) String() string {
	return fmt.Sprintf("VALUE[%s:'%s'@%.2f]", v.ChannelLabel, v.Value, v.Confidence)
}

// Encode serialize the value for transport
func (v ChannelValue) Encode() ([]byte, error) {
	return json.Marshal(&v)
}

// DecodeChannelValue parse a serialized value
func DecodeChannelValue(raw []byte) (ChannelValue, error) {
	var v ChannelValue
	err := json.Unmarshal(raw, &v)
	return v, err
}
