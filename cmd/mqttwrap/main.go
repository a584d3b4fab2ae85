// mqttwrap - command-line MQTT client for either protocol generation
//
// mqttwrap connects to one broker through the clientwrap facade, subscribes
// to the configured topic filters, optionally publishes a paced burst of
// messages, and prints every arrival until interrupted:
//
//	mqttwrap --broker mqtt://broker.local --version 4 --sub 'sensors/#'
//	mqttwrap --config configs/mqttwrap.yaml --pub cmd/light --message on --count 10 --rate 2
//
// When only --pub is given the process exits once the burst is sent.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-clientwrap/internal/client"
	"github.com/nerrad567/gray-logic-clientwrap/internal/clientwrap"
	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-clientwrap/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-clientwrap/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/registry"
	"github.com/nerrad567/gray-logic-clientwrap/internal/service"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownTimeout bounds service.Stop, which disconnects every client.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath string
	broker     string
	protocol   int
	subs       []string
	pubTopic   string
	message    string
	count      int
	rate       float64
	qos        int
	retain     bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("mqttwrap", pflag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", os.Getenv("MQTTWRAP_CONFIG"), "Path to YAML config file")
	fs.StringVar(&opts.broker, "broker", "", "Broker URI (mqtt://, mqtts://, tcp://, ssl://)")
	fs.IntVar(&opts.protocol, "version", int(settings.DefaultVersion), "MQTT protocol version (4 or 5)")
	fs.StringArrayVar(&opts.subs, "sub", nil, "Topic filter to subscribe to (repeatable)")
	fs.StringVar(&opts.pubTopic, "pub", "", "Topic to publish to")
	fs.StringVar(&opts.message, "message", "", "Payload to publish")
	fs.IntVar(&opts.count, "count", 1, "Number of messages to publish")
	fs.Float64Var(&opts.rate, "rate", 0, "Messages per second (0 = unlimited)")
	fs.IntVar(&opts.qos, "qos", 0, "QoS for --sub and --pub (0, 1 or 2)")
	fs.BoolVar(&opts.retain, "retain", false, "Publish with the retained flag")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if opts.qos < 0 || opts.qos > 2 {
		return nil, nil, fmt.Errorf("--qos must be 0, 1 or 2, got %d", opts.qos)
	}
	if opts.count < 0 {
		return nil, nil, fmt.Errorf("--count must not be negative, got %d", opts.count)
	}
	return opts, fs, nil
}

// deps are the parts run replaces in tests.
type deps struct {
	engines engine.Factory // nil selects the real drivers
	out     io.Writer
}

func run(ctx context.Context, args []string) error {
	return runWith(ctx, args, deps{out: os.Stdout})
}

func runWith(ctx context.Context, args []string, d deps) error {
	log := logging.Default()

	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if fs.Changed("broker") {
		cfg.Broker.URI = opts.broker
	}
	if fs.Changed("version") {
		cfg.Connection.Version = opts.protocol
	}
	for _, sub := range opts.subs {
		cfg.Subscriptions = append(cfg.Subscriptions, config.SubscriptionConfig{Topic: sub, QoS: opts.qos})
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting mqttwrap",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	addr, err := cfg.BrokerAddress()
	if err != nil {
		return err
	}

	svc := service.New(service.Config{
		Name:                "mqttwrap",
		HealthCheckInterval: cfg.GetHealthCheckInterval(),
	})
	svc.SetLogger(log.With("component", "service"))

	engines := d.engines
	if engines == nil {
		engines = engine.NewFactory(engine.Options{Logger: log.With("component", "engine")})
	}
	reg := registry.New(registry.Options{
		Host:    svc,
		Engines: engines,
		Logger:  log.With("component", "registry"),
		Client: client.Options{
			Logger: log.With("component", "client"),
			Dispatch: dispatch.Options{
				QueueSize:      cfg.Dispatch.QueueSize,
				EnqueueTimeout: cfg.GetEnqueueTimeout(),
			},
		},
	})

	handlers := statusHandlers(log, d.out)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		handlers = influxdb.NewRecorder(influxClient, addr.String()).Wrap(handlers)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	svc.SetHealthCheck(func(ctx context.Context) map[string]bool {
		health := reg.Health(ctx)
		if influxClient != nil {
			health["influxdb"] = influxClient.HealthCheck(ctx) == nil
		}
		return health
	})
	svc.SetOnStop(func(ctx context.Context) error {
		err := reg.Teardown(ctx)
		if influxClient != nil {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
		}
		return err
	})

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := svc.Stop(stopCtx); stopErr != nil {
			log.Error("error during shutdown", "error", stopErr)
		}
		log.Info("mqttwrap stopped")
	}()

	w, err := clientwrap.NewWithAddress(ctx, reg, addr, cfg.ToConnectionConfig(), handlers)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	if err := w.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", w.Address(), err)
	}
	log.Info("connected",
		"broker", w.Address(),
		"protocol", w.Version().String(),
	)

	for _, sub := range cfg.Subscriptions {
		if err := w.Subscribe(ctx, sub.Topic, settings.QoSFromLevel(sub.QoS)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", sub.Topic, err)
		}
		log.Info("subscribed", "topic", sub.Topic, "qos", sub.QoS)
	}

	if opts.pubTopic != "" {
		if err := publish(ctx, w, opts); err != nil {
			return err
		}
		log.Info("publish complete", "topic", opts.pubTopic, "count", opts.count)
		if len(cfg.Subscriptions) == 0 {
			return nil
		}
	}

	log.Info("waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// publish sends opts.count messages, paced at opts.rate per second.
func publish(ctx context.Context, w *clientwrap.Wrapper, opts *options) error {
	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i := 0; i < opts.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("publishing to %s: %w", opts.pubTopic, mqtterr.Translate(err, "publish pacing interrupted"))
		}
		if err := w.Publish(ctx, opts.pubTopic, []byte(opts.message), settings.QoSFromLevel(opts.qos), opts.retain, 0); err != nil {
			return fmt.Errorf("publishing to %s: %w", opts.pubTopic, err)
		}
	}
	return nil
}

// statusHandlers prints arrivals to out and logs the other events.
func statusHandlers(log *logging.Logger, out io.Writer) dispatch.Handlers {
	return dispatch.Handlers{
		OnConnectComplete: func(reconnect bool, serverURI string) {
			log.Info("connect complete", "reconnect", reconnect, "server", serverURI)
		},
		OnMessageArrived: func(topic string, p dispatch.PacketPayload) {
			log.Debug("message arrived", "topic", topic, "bytes", p.Len(), "qos", p.QoS().Level())
			fmt.Fprintf(out, "%s %s\n", topic, p.String())
		},
		OnConnectionLost: func(props dispatch.ProtocolProperties) {
			args := []any{"reason", props.ReasonString}
			if props.HasReturnCode() {
				args = append(args, "code", props.ReturnCode.String())
			}
			log.Warn("connection lost", args...)
		},
		OnPublishAcknowledged: func(messageID int) {
			log.Debug("publish acknowledged", "message_id", messageID)
		},
		OnProtocolError: func(err *mqtterr.Error) {
			if err == nil {
				log.Warn("protocol error")
				return
			}
			log.Warn("protocol error", "error", err)
		},
		OnAuthExchange: func(props dispatch.ProtocolProperties) {
			log.Info("auth exchange", "method", props.AuthMethod)
		},
	}
}
