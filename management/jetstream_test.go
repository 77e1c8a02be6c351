package management

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/core"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStreamControllerValueStream(t *testing.T) {
	natsURI := common.GetUnitTestNatsURI()
	if natsURI == "" {
		t.Skip("NATS_URI not set")
	}
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-js-value-stream"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	logTags := log.Fields{
		"module":    "management_test",
		"component": "StreamController",
		"instance":  "value-stream",
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

	uut, err := GetStreamController(js, testName)
	assert.Nil(err)

	streamName := fmt.Sprintf("ut%d", uuid.New().ID())
	param := ValueStreamParam{
		Name:              streamName,
		SubjectPrefix:     fmt.Sprintf("ut.%s", streamName),
		MaxAge:            time.Minute,
		MaxMsgsPerSubject: 1,
	}

	// Case 0: invalid parameters
	{
		_, err := uut.EnsureValueStream(ValueStreamParam{Name: "bad name"})
		assert.NotNil(err)
	}

	// Case 1: create
	{
		info, err := uut.EnsureValueStream(param)
		assert.Nil(err)
		assert.Equal(streamName, info.Config.Name)
		assert.Equal([]string{fmt.Sprintf("%s.>", param.SubjectPrefix)}, info.Config.Subjects)
	}

	// Case 2: ensure again updates in place
	{
		param.MaxAge = time.Minute * 2
		info, err := uut.EnsureValueStream(param)
		assert.Nil(err)
		assert.Equal(time.Minute*2, info.Config.MaxAge)
	}

	// Case 3: delete
	{
		assert.Nil(uut.DeleteValueStream(streamName))
		_, err := uut.GetValueStream(streamName)
		assert.NotNil(err)
	}
}
