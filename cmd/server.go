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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alwitt/streammux/apis"
	"github.com/alwitt/streammux/cache"
	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/core"
	"github.com/alwitt/streammux/dataplane"
	"github.com/alwitt/streammux/management"
	"github.com/alwitt/streammux/poller"
	"github.com/alwitt/streammux/resolver"
	"github.com/alwitt/streammux/storage"
	"github.com/alwitt/streammux/subscription"
	"github.com/alwitt/streammux/upstream"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunServer run the streammux server
func RunServer(
	runtimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "server",
		"instance":  instance,
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid config")
		return err
	}

	// -------------------------------------------------------------------
	// Publish path

	controller, err := management.GetStreamController(natsClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define JetStream controller")
		return err
	}
	if _, err := controller.EnsureValueStream(
		management.ValueStreamParamFromConfig(config.Publish),
	); err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to prepare value stream %s", config.Publish.StreamName,
		)
		return err
	}

	publisher, err := dataplane.GetJetStreamPublisher(&natsClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define JetStream publisher")
		return err
	}
	sink, err := dataplane.NewChannelValueSink(publisher, config.Publish)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define publish sink")
		return err
	}
	values, err := dataplane.GetJetStreamValueReader(&natsClient, config.Publish)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define value reader")
		return err
	}

	// -------------------------------------------------------------------
	// Settings, upstream, and value resolution

	store, err := storage.NewBackend(runtimeContext, config.Storage)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to define %s settings store", config.Storage.Type,
		)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failed to close settings store")
		}
	}()

	clients, err := upstream.NewRESTClientFactory(config.Upstream)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define upstream client factory")
		return err
	}

	requestCache := cache.NewRequestCache(instance)
	if err := requestCache.StartSweep(
		runtimeContext, wg, time.Second*time.Duration(config.Cache.SweepInterval),
	); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start request cache sweep")
		return err
	}
	queryResolver := resolver.NewQueryResolver(requestCache, config.Cache)

	// -------------------------------------------------------------------
	// Multiplexer

	muxLoop, err := common.GetNewTaskProcessorInstance(
		runtimeContext, "multiplexer", config.Multiplexer.TaskBuffer,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define multiplexer event loop")
		return err
	}
	multiplexer, err := subscription.DefineMultiplexer(
		runtimeContext, wg, muxLoop, subscription.MultiplexerParams{
			Clients:        clients,
			Tokens:         store,
			Settings:       store,
			Resolver:       queryResolver,
			Sink:           sink,
			PushTopic:      config.Upstream.PushTopic,
			ReconnectDelay: config.Multiplexer.ReconnectDelayDuration(),
			Confidence:     config.Publish.Confidence,
		},
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define multiplexer")
		return err
	}
	if err := muxLoop.StartEventLoop(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start multiplexer event loop")
		return err
	}

	// -------------------------------------------------------------------
	// Poll scheduler

	pollWorkers, err := common.GetNewTaskDemuxProcessorInstance(
		runtimeContext, "poller", config.Poller.TaskBuffer, config.Poller.Workers,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define poller workers")
		return err
	}
	scheduler, err := poller.DefinePoller(runtimeContext, wg, pollWorkers, poller.PollerParams{
		Settings:   store,
		Tokens:     store,
		Clients:    clients,
		Resolver:   queryResolver,
		Sink:       sink,
		Confidence: config.Publish.Confidence,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define poller")
		return err
	}
	if err := pollWorkers.StartEventLoop(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start poller workers")
		return err
	}
	if err := scheduler.Start(config.Poller.IntervalDuration()); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start poller")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	httpHandler, err := apis.GetAPIRestChannelHandler(apis.ChannelAPIParams{
		Store:       store,
		Multiplexer: multiplexer,
		Clients:     clients,
		Resolver:    queryResolver,
		Values:      values,
		Poller:      scheduler,
		ReadyChecks: map[string]apis.ReadinessCheck{
			"nats": func(context.Context) error {
				return natsClient.Ready()
			},
			"storage": store.Ready,
		},
	}, &config.API)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define HTTP handler")
		return err
	}

	router := mux.NewRouter()
	httpHandler.RegisterRoutes(apis.RegisterPathPrefix(router, config.API.PathPrefix, nil))

	serverListen := fmt.Sprintf(
		"%s:%d", config.API.Server.ListenOn, config.API.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:         serverListen,
		WriteTimeout: time.Second * time.Duration(config.API.Server.WriteTimeout),
		ReadTimeout:  time.Second * time.Duration(config.API.Server.ReadTimeout),
		IdleTimeout:  time.Second * time.Duration(config.API.Server.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runtimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	if err := scheduler.Stop(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Failure stopping poller")
	}
	_ = pollWorkers.StopEventLoop()
	_ = muxLoop.StopEventLoop()

	return nil
}
