package core

import (
	"context"
	"testing"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestNATSConnectParams(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	logTags := log.Fields{"module": "core_test", "component": "NatsClient"}

	config := common.NATSConfig{
		ServerURI:         "nats://127.0.0.1:4222",
		ConnectTimeout:    2,
		Reconnect:         common.NATSReconnectConfig{MaxAttempts: -1, WaitInterval: 3},
		ClientName:        "ut-streammux",
		MaxPendingPublish: 64,
	}

	// Case 0: conversion from config
	{
		param := NATSConnectParamsFromConfig(config, logTags)
		assert.Equal(config.ServerURI, param.ServerURI)
		assert.Equal(time.Second*2, param.ConnectTimeout)
		assert.Equal(-1, param.MaxReconnectAttempt)
		assert.Equal(time.Second*3, param.ReconnectWait)
		assert.Equal("ut-streammux", param.ClientName)
		assert.Equal(64, param.MaxPendingPublish)
		assert.NotNil(param.OnCloseCallback)
	}

	// Case 1: invalid parameters are rejected before connecting
	{
		param := NATSConnectParamsFromConfig(config, logTags)
		param.ServerURI = ""
		_, err := GetJetStream(param)
		assert.NotNil(err)

		param = NATSConnectParamsFromConfig(config, logTags)
		param.MaxPendingPublish = -1
		_, err = GetJetStream(param)
		assert.NotNil(err)
	}
}

func TestNATSConnect(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	natsURI := common.GetUnitTestNatsURI()
	if natsURI == "" {
		t.Skip("NATS_URI not set")
	}
	logTags := log.Fields{"module": "core_test", "component": "NatsClient"}

	uut, err := GetJetStream(NATSConnectParamsFromConfig(common.NATSConfig{
		ServerURI:      natsURI,
		ConnectTimeout: 1,
		Reconnect:      common.NATSReconnectConfig{MaxAttempts: 0, WaitInterval: 1},
		ClientName:     "ut-streammux",
	}, logTags))
	assert.Nil(err)
	assert.Nil(uut.Ready())
	assert.NotNil(uut.JetStream())
	uut.Close(context.Background())
	assert.NotNil(uut.Ready())
}
