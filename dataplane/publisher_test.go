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
	"testing"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/core"
	"github.com/alwitt/streammux/management"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

type capturedMsg struct {
	subject string
	body    []byte
	hasDL   bool
}

type capturePublisher struct {
	msgs []capturedMsg
	err  error
}

func (p *capturePublisher) Publish(ctxt context.Context, subject string, msg []byte) error {
	_, hasDL := ctxt.Deadline()
	p.msgs = append(p.msgs, capturedMsg{subject: subject, body: msg, hasDL: hasDL})
	return p.err
}

func TestSubjectForChannel(t *testing.T) {
	assert := assert.New(t)

	// Case 0: plain label
	{
		subject, err := SubjectForChannel("streammux.channel", "abc-123_x")
		assert.Nil(err)
		assert.Equal("streammux.channel.abc-123_x", subject)
	}

	// Case 1: label with subject separators and wildcards
	{
		subject, err := SubjectForChannel("streammux.channel", "a.b*c >d")
		assert.Nil(err)
		assert.Equal("streammux.channel.a_b_c__d", subject)
	}

	// Case 2: bad input
	{
		_, err := SubjectForChannel("", "abc")
		assert.NotNil(err)
		_, err = SubjectForChannel("streammux.>", "abc")
		assert.NotNil(err)
		_, err = SubjectForChannel("streammux", "")
		assert.NotNil(err)
	}
}

func TestChannelValueSink(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	publisher := &capturePublisher{}
	uut, err := NewChannelValueSink(publisher, common.PublishConfig{
		StreamName: "streammux", SubjectPrefix: "ut.values", PublishTimeout: 5, Confidence: 0.1,
	})
	assert.Nil(err)
	ctxt := context.Background()

	// Case 0: publish
	{
		cfg := common.ChannelConfig{ChannelLabel: "ch-1", DisplayFrom: common.DisplayTrends}
		assert.Nil(uut.Publish(ctxt, cfg, "A\nB", 0.1))
		assert.Len(publisher.msgs, 1)
		assert.Equal("ut.values.ch-1", publisher.msgs[0].subject)
		assert.True(publisher.msgs[0].hasDL)
		parsed, err := common.DecodeChannelValue(publisher.msgs[0].body)
		assert.Nil(err)
		assert.Equal("ch-1", parsed.ChannelLabel)
		assert.Equal("A\nB", parsed.Value)
		assert.InDelta(0.1, parsed.Confidence, 1e-9)
		assert.False(parsed.PublishedAt.IsZero())
	}

	// Case 1: transport failure
	{
		publisher.err = fmt.Errorf("dummy error")
		assert.NotNil(uut.Publish(ctxt, common.ChannelConfig{ChannelLabel: "ch-2"}, "x", 0.1))
	}

	// Case 2: bad prefix
	{
		_, err := NewChannelValueSink(publisher, common.PublishConfig{SubjectPrefix: ""})
		assert.NotNil(err)
	}
}

type fakeLastMessages struct {
	stream  string
	subject string
	msg     *nats.RawStreamMsg
}

func (f *fakeLastMessages) GetLastMsg(
	name, subject string, opts ...nats.JSOpt,
) (*nats.RawStreamMsg, error) {
	f.stream = name
	f.subject = subject
	if f.msg == nil {
		return nil, nats.ErrMsgNotFound
	}
	return f.msg, nil
}

func TestValueReader(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	publishCfg := common.PublishConfig{StreamName: "streammux", SubjectPrefix: "ut.values"}
	source := &fakeLastMessages{}
	uut := newValueReader(source, publishCfg)
	ctxt := context.Background()

	// Case 0: nothing published yet
	{
		_, err := uut.LastValue(ctxt, "ch-1")
		assert.ErrorIs(err, nats.ErrMsgNotFound)
		assert.Equal("streammux", source.stream)
		assert.Equal("ut.values.ch-1", source.subject)
	}

	// Case 1: read back the stored value
	{
		stored := common.ChannelValue{ChannelLabel: "ch-1", Value: "R 2, F 3", Confidence: 0.1}
		payload, err := stored.Encode()
		assert.Nil(err)
		source.msg = &nats.RawStreamMsg{Subject: "ut.values.ch-1", Data: payload}
		value, err := uut.LastValue(ctxt, "ch-1")
		assert.Nil(err)
		assert.Equal("R 2, F 3", value.Value)
	}

	// Case 2: a client without a JetStream context is rejected
	{
		_, err := GetJetStreamValueReader(&core.NatsClient{}, publishCfg)
		assert.NotNil(err)
	}
}

func TestJetStreamPublishAndReadBack(t *testing.T) {
	natsURI := common.GetUnitTestNatsURI()
	if natsURI == "" {
		t.Skip("NATS_URI not set")
	}
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	logTags := log.Fields{
		"module": "dataplane_test", "component": "JetStreamPublisher", "instance": "basic",
	}
	js, err := core.GetJetStream(core.NATSConnectParamsFromConfig(
		common.NATSConfig{
			ServerURI:      natsURI,
			ConnectTimeout: 1,
			Reconnect:      common.NATSReconnectConfig{MaxAttempts: 0, WaitInterval: 1},
		}, logTags,
	))
	assert.Nil(err)
	defer js.Close(utCtxt)

	streamName := fmt.Sprintf("ut%d", uuid.New().ID())
	publishCfg := common.PublishConfig{
		StreamName:     streamName,
		SubjectPrefix:  fmt.Sprintf("ut.%s", streamName),
		MaxAge:         60,
		PublishTimeout: 5,
		Confidence:     0.1,
	}
	ctrl, err := management.GetStreamController(js, "ut")
	assert.Nil(err)
	_, err = ctrl.EnsureValueStream(management.ValueStreamParamFromConfig(publishCfg))
	assert.Nil(err)
	defer func() {
		assert.Nil(ctrl.DeleteValueStream(streamName))
	}()

	publisher, err := GetJetStreamPublisher(&js, "ut")
	assert.Nil(err)
	sink, err := NewChannelValueSink(publisher, publishCfg)
	assert.Nil(err)
	reader, err := GetJetStreamValueReader(&js, publishCfg)
	assert.Nil(err)

	cfg := common.ChannelConfig{ChannelLabel: "ch-1"}

	// Case 0: nothing published yet
	{
		ctxt, cancel := context.WithTimeout(utCtxt, time.Second)
		_, err := reader.LastValue(ctxt, cfg.ChannelLabel)
		cancel()
		assert.NotNil(err)
	}

	// Case 1: publish twice, read back the newest
	{
		ctxt, cancel := context.WithTimeout(utCtxt, time.Second*5)
		assert.Nil(sink.Publish(ctxt, cfg, "F 1", 0.1))
		assert.Nil(sink.Publish(ctxt, cfg, "F 2", 0.1))
		value, err := reader.LastValue(ctxt, cfg.ChannelLabel)
		cancel()
		assert.Nil(err)
		assert.Equal("F 2", value.Value)
	}
}
