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

package dataplane

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/core"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// JetStreamPublisher publishes new messages into JetStream
type JetStreamPublisher interface {
	// Publish publishes a new message into JetStream on a subject
	Publish(ctxt context.Context, subject string, msg []byte) error
}

// jetStreamPublisherImpl implements JetStreamPublisher
type jetStreamPublisherImpl struct {
	common.Component
	nats *core.NatsClient
}

// GetJetStreamPublisher get new JetStreamPublisher
func GetJetStreamPublisher(
	natsClient *core.NatsClient, instance string,
) (JetStreamPublisher, error) {
	logTags := log.Fields{
		"module": "dataplane", "component": "js-publisher", "instance": instance,
	}
	return &jetStreamPublisherImpl{
		Component: common.Component{LogTags: logTags}, nats: natsClient,
	}, nil
}

// Publish publishes a new message into JetStream on a subject
func (s *jetStreamPublisherImpl) Publish(ctxt context.Context, subject string, msg []byte) error {
	msgID := ulid.Make().String()
	localLogTags := s.CopyLogTags()
	localLogTags["msg_id"] = msgID
	ack, err := s.nats.JetStream().PublishAsync(subject, msg, nats.MsgId(msgID))
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to send message")
		return err
	}
	// Wait for success, failure, or timeout
	select {
	case goodSig, ok := <-ack.Ok():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture OK channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Message send failure")
			return err
		}
		log.WithFields(localLogTags).Debugf(
			"Sent [%d] to %s/%s", goodSig.Sequence, goodSig.Stream, subject,
		)
		return nil
	case txErr, ok := <-ack.Err():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture error channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Message send failure")
			return err
		}
		return txErr
	case <-ctxt.Done():
		err := ctxt.Err()
		log.WithError(err).WithFields(localLogTags).Errorf("Message send timed out")
		return err
	}
}

// ==============================================================================

// PublishSink accepts computed channel values
type PublishSink interface {
	/*
		Publish deliver one computed value of a channel

		 @param ctxt context.Context - the operation context
		 @param cfg common.ChannelConfig - the channel
		 @param value string - the display value
		 @param confidence float64 - the confidence attached to the value
	*/
	Publish(ctxt context.Context, cfg common.ChannelConfig, value string, confidence float64) error
}

// channelValueSink implements PublishSink over a JetStreamPublisher
type channelValueSink struct {
	common.Component
	publisher     JetStreamPublisher
	subjectPrefix string
	timeout       time.Duration
}

// NewChannelValueSink define a PublishSink writing each value as JSON onto the channel's subject
func NewChannelValueSink(
	publisher JetStreamPublisher, config common.PublishConfig,
) (PublishSink, error) {
	if _, err := SubjectForChannel(config.SubjectPrefix, "validate"); err != nil {
		return nil, err
	}
	logTags := log.Fields{
		"module": "dataplane", "component": "value-sink", "instance": config.SubjectPrefix,
	}
	return &channelValueSink{
		Component:     common.Component{LogTags: logTags},
		publisher:     publisher,
		subjectPrefix: config.SubjectPrefix,
		timeout:       time.Second * time.Duration(config.PublishTimeout),
	}, nil
}

// Publish deliver one computed value of a channel
func (s *channelValueSink) Publish(
	ctxt context.Context, cfg common.ChannelConfig, value string, confidence float64,
) error {
	subject, err := SubjectForChannel(s.subjectPrefix, cfg.ChannelLabel)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to publish for %s", cfg)
		return err
	}
	payload, err := common.ChannelValue{
		ChannelLabel: cfg.ChannelLabel,
		Value:        value,
		Confidence:   confidence,
		PublishedAt:  time.Now().UTC(),
	}.Encode()
	if err != nil {
		return err
	}
	useCtxt := ctxt
	if s.timeout > 0 {
		var cancel context.CancelFunc
		useCtxt, cancel = context.WithTimeout(ctxt, s.timeout)
		defer cancel()
	}
	if err := s.publisher.Publish(useCtxt, subject, payload); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Failed to publish for %s", cfg)
		return err
	}
	return nil
}

// ==============================================================================

// ValueReader reads back published channel values
type ValueReader interface {
	// LastValue fetch the most recently published value of a channel
	LastValue(ctxt context.Context, channelLabel string) (common.ChannelValue, error)
}

// lastMessageSource reads the last stored message of a subject in a stream
type lastMessageSource interface {
	GetLastMsg(name, subject string, opts ...nats.JSOpt) (*nats.RawStreamMsg, error)
}

// jetStreamValueReader implements ValueReader
type jetStreamValueReader struct {
	common.Component
	source        lastMessageSource
	stream        string
	subjectPrefix string
}

// GetJetStreamValueReader define a ValueReader over the value stream
func GetJetStreamValueReader(
	natsClient *core.NatsClient, config common.PublishConfig,
) (ValueReader, error) {
	source, ok := natsClient.JetStream().(lastMessageSource)
	if !ok {
		return nil, fmt.Errorf("JetStream client does not support last message lookup")
	}
	return newValueReader(source, config), nil
}

func newValueReader(source lastMessageSource, config common.PublishConfig) ValueReader {
	logTags := log.Fields{
		"module": "dataplane", "component": "js-value-reader", "instance": config.StreamName,
	}
	return &jetStreamValueReader{
		Component:     common.Component{LogTags: logTags},
		source:        source,
		stream:        config.StreamName,
		subjectPrefix: config.SubjectPrefix,
	}
}

// LastValue fetch the most recently published value of a channel
func (r *jetStreamValueReader) LastValue(
	ctxt context.Context, channelLabel string,
) (common.ChannelValue, error) {
	subject, err := SubjectForChannel(r.subjectPrefix, channelLabel)
	if err != nil {
		return common.ChannelValue{}, err
	}
	msg, err := r.source.GetLastMsg(r.stream, subject, nats.Context(ctxt))
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Debugf("No last message on %s", subject)
		return common.ChannelValue{}, err
	}
	return common.DecodeChannelValue(msg.Data)
}
