package management

import (
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/core"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// ValueStreamParam parameters of the stream capturing published channel values
type ValueStreamParam struct {
	// Name is the stream name
	Name string `json:"name" validate:"required,alphanum"`
	// SubjectPrefix is the channel subject prefix. The stream captures <prefix>.>
	SubjectPrefix string `json:"subject_prefix" validate:"required"`
	// MaxAge is how long a published value is retained
	MaxAge time.Duration `json:"max_age" validate:"gt=0"`
	// MaxMsgsPerSubject is how many values are retained per channel
	MaxMsgsPerSubject int64 `json:"max_msgs_per_subject" validate:"gte=1"`
}

// ValueStreamParamFromConfig build stream parameters from system config
func ValueStreamParamFromConfig(config common.PublishConfig) ValueStreamParam {
	return ValueStreamParam{
		Name:              config.StreamName,
		SubjectPrefix:     config.SubjectPrefix,
		MaxAge:            time.Second * time.Duration(config.MaxAge),
		MaxMsgsPerSubject: 1,
	}
}

// StreamController manage the JetStream stream channel values are published into
type StreamController interface {
	// EnsureValueStream create the value stream, or align an existing one with the parameters
	EnsureValueStream(param ValueStreamParam) (*nats.StreamInfo, error)
	// GetValueStream query for info on the value stream
	GetValueStream(name string) (*nats.StreamInfo, error)
	// DeleteValueStream delete the value stream
	DeleteValueStream(name string) error
}

// streamControllerImpl implements StreamController
type streamControllerImpl struct {
	common.Component
	core     core.NatsClient
	validate *validator.Validate
}

// GetStreamController define StreamController
func GetStreamController(natsCore core.NatsClient, instance string) (StreamController, error) {
	logTags := log.Fields{
		"module":    "management",
		"component": "jetstream",
		"instance":  instance,
	}
	return streamControllerImpl{
		Component: common.Component{LogTags: logTags},
		core:      natsCore,
		validate:  validator.New(),
	}, nil
}

func streamConfig(param ValueStreamParam) nats.StreamConfig {
	return nats.StreamConfig{
		Name:              param.Name,
		Subjects:          []string{fmt.Sprintf("%s.>", param.SubjectPrefix)},
		MaxAge:            param.MaxAge,
		MaxMsgsPerSubject: param.MaxMsgsPerSubject,
		Duplicates:        time.Minute,
	}
}

// EnsureValueStream create the value stream, or align an existing one with the parameters
func (js streamControllerImpl) EnsureValueStream(param ValueStreamParam) (*nats.StreamInfo, error) {
	if err := js.validate.Struct(&param); err != nil {
		log.WithError(err).WithFields(js.LogTags).Error("Invalid value stream parameters")
		return nil, err
	}
	jsParams := streamConfig(param)
	info, err := js.core.JetStream().StreamInfo(param.Name)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			log.WithError(err).WithFields(js.LogTags).Errorf("Unable to read stream %s", param.Name)
			return nil, err
		}
		info, err = js.core.JetStream().AddStream(&jsParams)
		if err != nil {
			log.WithError(err).WithFields(js.LogTags).Errorf(
				"Unable to define value stream %s", param.Name,
			)
			return nil, err
		}
		log.WithFields(js.LogTags).Infof("Defined value stream %s", param.Name)
		return info, nil
	}
	info, err = js.core.JetStream().UpdateStream(&jsParams)
	if err != nil {
		log.WithError(err).WithFields(js.LogTags).Errorf(
			"Unable to update value stream %s", param.Name,
		)
		return nil, err
	}
	log.WithFields(js.LogTags).Infof("Updated value stream %s", param.Name)
	return info, nil
}

// GetValueStream query for info on the value stream
func (js streamControllerImpl) GetValueStream(name string) (*nats.StreamInfo, error) {
	return js.core.JetStream().StreamInfo(name)
}

// DeleteValueStream delete the value stream
func (js streamControllerImpl) DeleteValueStream(name string) error {
	if err := js.core.JetStream().DeleteStream(name); err != nil {
		log.WithError(err).WithFields(js.LogTags).Errorf("Unable to delete value stream %s", name)
		return err
	}
	log.WithFields(js.LogTags).Infof("Deleted value stream %s", name)
	return nil
}
