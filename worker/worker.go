// Package worker is the queue-consumer embedding of the plugin runtime.
// It loads plugins on their worker section and feeds them events consumed
// from an AMQP queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"github.com/openjudge-dev/openjudge/config"
	"github.com/openjudge-dev/openjudge/hook"
	"github.com/openjudge-dev/openjudge/hostfuncs"
	"github.com/openjudge-dev/openjudge/plugin"
	"github.com/openjudge-dev/openjudge/storage"
)

// Worker consumes events from a queue and dispatches them to plugins that
// declared a worker section.
type Worker struct {
	cfg        *config.Config
	log        *slog.Logger
	store      *storage.Store
	host       *plugin.Host
	dispatcher *hook.Dispatcher
}

// New builds the worker embedding. Worker plugins get the same logger and
// key-value capabilities as server plugins but no outbound HTTP.
func New(cfg *config.Config, log *slog.Logger) (*Worker, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening plugin storage: %w", err)
	}

	hostFns := plugin.NewHostFunctionRegistry(log)
	hostFns.Register(hostfuncs.PermissionLogger, hostfuncs.Logger(log))
	hostFns.Register(hostfuncs.PermissionKV, hostfuncs.StoreSet(store, log))
	hostFns.Register(hostfuncs.PermissionKV, hostfuncs.StoreGet(store, log))

	pluginCfg := plugin.Config{
		PluginsDir: cfg.Plugin.Dir,
		EnableWasi: cfg.Plugin.EnableWasi,
	}
	host := plugin.NewHost(pluginCfg, hostFns, plugin.WorkerResolver{}, log)

	return &Worker{
		cfg:        cfg,
		log:        log,
		store:      store,
		host:       host,
		dispatcher: hook.NewDispatcher(log),
	}, nil
}

// Host returns the plugin manager for this embedding.
func (w *Worker) Host() *plugin.Host { return w.host }

// Dispatcher returns the event dispatcher fed by the queue consumer.
func (w *Worker) Dispatcher() *hook.Dispatcher { return w.dispatcher }

// Run loads worker plugins, then consumes the configured queue until ctx is
// cancelled. The AMQP connection is retried with exponential backoff; a
// broken connection causes Run to return so a supervisor can restart it.
func (w *Worker) Run(ctx context.Context) error {
	defer w.store.Close()

	if err := w.loadPlugins(ctx); err != nil {
		return err
	}

	conn, err := w.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(w.cfg.Worker.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %q: %w", w.cfg.Worker.Queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}

	deliveries, err := ch.Consume(w.cfg.Worker.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming queue %q: %w", w.cfg.Worker.Queue, err)
	}

	w.log.Info("worker consuming", "queue", w.cfg.Worker.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *Worker) dial(ctx context.Context) (*amqp.Connection, error) {
	var conn *amqp.Connection
	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		conn, err = amqp.Dial(w.cfg.Worker.AMQPURL)
		if err != nil {
			w.log.Warn("broker dial failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	return conn, err
}

func (w *Worker) loadPlugins(ctx context.Context) error {
	infos, err := w.host.DiscoverPlugins()
	if err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}

	for _, info := range infos {
		if info.Status == plugin.StatusFailed {
			continue
		}
		section, err := w.host.ResolvedSection(info.ID)
		if err != nil {
			continue
		}

		if err := w.host.LoadPlugin(ctx, info.ID); err != nil {
			w.log.Error("failed to load plugin", "plugin", info.ID, "error", err)
			continue
		}

		if len(section.Events) > 0 {
			w.dispatcher.AddHook(hook.NewPluginHook(w.host, info.ID, "on_event", section.Events))
			w.log.Info("registered plugin hook", "plugin", info.ID, "topics", section.Events)
		}
	}
	return nil
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	event, err := decodeDelivery(d)
	if err != nil {
		w.log.Warn("discarding malformed delivery", "error", err)
		_ = d.Nack(false, false)
		return
	}
	w.dispatcher.Trigger(ctx, event)
	_ = d.Ack(false)
}

// decodeDelivery turns a queue message into an event. The body must be a
// JSON object with a topic and payload; a missing id is filled in so the
// event is traceable through hook logs.
func decodeDelivery(d amqp.Delivery) (hook.Event, error) {
	var event hook.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return hook.Event{}, fmt.Errorf("decoding event body: %w", err)
	}
	if event.Topic == "" {
		return hook.Event{}, fmt.Errorf("event has no topic")
	}
	if event.ID == "" {
		if d.MessageId != "" {
			event.ID = d.MessageId
		} else {
			event.ID = uuid.NewString()
		}
	}
	return event, nil
}
