package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/malistore/api/internal/platform/config"
	"github.com/malistore/api/internal/platform/events"
	pfirestore "github.com/malistore/api/internal/platform/firestore"
	"github.com/malistore/api/internal/platform/observability"
	"github.com/malistore/api/internal/repositories"
	firestoreRepo "github.com/malistore/api/internal/repositories/firestore"
	"github.com/malistore/api/internal/repositories/memory"
	"github.com/malistore/api/internal/repositories/postgres"
	"github.com/malistore/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders         services.OrderService
	Payments       services.PaymentService
	Reconciliation services.ReconciliationService
	Inventory      services.InventoryService
	StockMonitor   *services.StockAlertMonitor
}

// Metrics is the collector set consumed by reconciliation and the stock monitor.
type Metrics interface {
	services.ReconciliationMetrics
	services.StockAlertMetrics
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Events       services.EventPublisher
	Services     Services

	closers []func(context.Context) error
}

// ContainerOption customises service construction.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	gateway services.PaymentGateway
	events  services.EventPublisher
	metrics Metrics
	logger  *zap.Logger
	clock   func() time.Time
}

// WithPaymentGateway sets the checkout session provider. Without it payment sessions are not served.
func WithPaymentGateway(gateway services.PaymentGateway) ContainerOption {
	return func(o *containerOptions) {
		o.gateway = gateway
	}
}

// WithEventPublisher overrides the publisher built from the events configuration.
func WithEventPublisher(publisher services.EventPublisher) ContainerOption {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithMetrics attaches the Prometheus collectors.
func WithMetrics(m Metrics) ContainerOption {
	return func(o *containerOptions) {
		o.metrics = m
	}
}

// WithLogger sets the base logger for service events.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) ContainerOption {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies over the given registry. Production wiring
// obtains the registry from OpenRegistry; tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg, Repositories: reg}
	c.closers = append(c.closers, reg.Close)

	publisher := options.events
	if publisher == nil {
		built, closeFn, err := OpenPublisher(ctx, cfg.Events, options.logger)
		if err != nil {
			return nil, err
		}
		publisher = built
		if closeFn != nil {
			c.closers = append(c.closers, func(context.Context) error { return closeFn() })
		}
	}
	c.Events = publisher

	svc, err := buildServices(reg, cfg, publisher, options)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources such as repository clients and event bus connections.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// OpenRegistry connects the storage driver selected by configuration.
func OpenRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case config.StorageDriverPostgres:
		reg, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres registry: %w", err)
		}
		if cfg.Postgres.ApplySchema {
			if err := reg.ApplySchema(ctx); err != nil {
				_ = reg.Close(ctx)
				return nil, fmt.Errorf("apply postgres schema: %w", err)
			}
		}
		return reg, nil
	case config.StorageDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("open firestore client: %w", err)
		}
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, err
		}
		return reg, nil
	case config.StorageDriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// OpenPublisher builds the event publisher for the configured bus. The returned close function
// may be nil.
func OpenPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (services.EventPublisher, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", config.EventsDriverLog:
		return events.NewLogPublisher(observability.EventLogger(logger.Named("events"))), nil, nil
	case config.EventsDriverKafka:
		writer, err := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.Topic)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := events.NewKafkaPublisher(writer)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID, option.WithUserAgent("malistore-api"))
		if err != nil {
			return nil, nil, fmt.Errorf("open pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Topic)
		topic.EnableMessageOrdering = true
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func() error {
			_ = publisher.Close()
			return client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

func buildServices(reg repositories.Registry, cfg config.Config, publisher services.EventPublisher, opts containerOptions) (Services, error) {
	var svc Services
	logger := opts.logger

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      opts.clock,
		Events:     publisher,
		Logger:     observability.EventLogger(logger.Named("inventory")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Carts:      reg.Carts(),
		Addresses:  reg.Addresses(),
		UnitOfWork: reg,
		Clock:      opts.clock,
		Currency:   cfg.Payments.Currency,
		Events:     publisher,
		Logger:     observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	reconciliationDeps := services.ReconciliationServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Inventory:  inventorySvc,
		UnitOfWork: reg,
		Clock:      opts.clock,
		Events:     publisher,
		Logger:     observability.EventLogger(logger.Named("reconciliation")),
	}
	if opts.metrics != nil {
		reconciliationDeps.Metrics = opts.metrics
	}
	reconciliationSvc, err := services.NewReconciliationService(reconciliationDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconciliation = reconciliationSvc

	if opts.gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:            reg.Orders(),
			Payments:          reg.Payments(),
			UnitOfWork:        reg,
			Gateway:           opts.gateway,
			PreferredProvider: cfg.PSP.Mode,
			PublishableKey:    cfg.PSP.StripePublishableKey,
			DefaultSuccessURL: cfg.Payments.SuccessURL,
			DefaultCancelURL:  cfg.Payments.CancelURL,
			ProviderTimeout:   cfg.Payments.ProviderTimeout,
			Clock:             opts.clock,
			Events:            publisher,
			Logger:            observability.EventLogger(logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	monitorDeps := services.StockAlertMonitorDeps{
		Inventory: inventorySvc,
		Interval:  cfg.Inventory.AlertInterval,
		Threshold: cfg.Inventory.AlertThreshold,
		Recipient: cfg.Inventory.AlertRecipient,
		Clock:     opts.clock,
		Events:    publisher,
		Logger:    observability.EventLogger(logger.Named("stock_alerts")),
	}
	if opts.metrics != nil {
		monitorDeps.Metrics = opts.metrics
	}
	monitor, err := services.NewStockAlertMonitor(monitorDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build stock alert monitor: %w", err)
	}
	svc.StockMonitor = monitor

	return svc, nil
}
