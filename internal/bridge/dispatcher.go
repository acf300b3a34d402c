// Package bridge turns inbound WhatsApp messages into exactly one reply,
// combining catalog matches with generated text.
package bridge

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-commerce-bridge/internal/catalog"
	"github.com/wolfman30/wa-commerce-bridge/internal/channels/whatsapp"
	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
	"github.com/wolfman30/wa-commerce-bridge/internal/upstream"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

var tracer = otel.Tracer("wabridge.internal.bridge")

// ReplyGenerator produces the conversational text for a sender.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, sender, prompt string) string
}

// Deliverer sends a text reply back to a sender.
type Deliverer interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
}

// Deduper reports whether a message id is seen for the first time.
type Deduper interface {
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// Dispatcher wires catalog lookup, reply generation and delivery together.
type Dispatcher struct {
	catalog   catalog.Finder
	replies   ReplyGenerator
	deliverer Deliverer
	dedup     Deduper
	logger    *logging.Logger
	metrics   *metrics.BridgeMetrics
}

// DispatcherConfig holds the collaborators of a Dispatcher. Dedup and
// Metrics are optional.
type DispatcherConfig struct {
	Catalog   catalog.Finder
	Replies   ReplyGenerator
	Deliverer Deliverer
	Dedup     Deduper
	Logger    *logging.Logger
	Metrics   *metrics.BridgeMetrics
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Catalog == nil {
		panic("bridge: catalog finder cannot be nil")
	}
	if cfg.Replies == nil {
		panic("bridge: reply generator cannot be nil")
	}
	if cfg.Deliverer == nil {
		panic("bridge: deliverer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Dispatcher{
		catalog:   cfg.Catalog,
		replies:   cfg.Replies,
		deliverer: cfg.Deliverer,
		dedup:     cfg.Dedup,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// HandleMessage answers one inbound message. Catalog failures degrade to a
// plain conversational reply; delivery failures are logged and dropped.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg whatsapp.InboundMessage) {
	ctx, span := tracer.Start(ctx, "bridge.handle_message",
		trace.WithAttributes(attribute.String("whatsapp.message_id", msg.ID)),
	)
	defer span.End()

	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.From == "" {
		return
	}

	if d.dedup != nil {
		first, err := d.dedup.MarkProcessed(ctx, msg.ID)
		if err != nil {
			d.logger.Warn("bridge: dedup check failed; processing anyway", "message_id", msg.ID, "error", err)
		}
		if !first {
			d.logger.Info("bridge: skipping duplicate message", "message_id", msg.ID, "from", msg.From)
			d.metrics.ObserveInbound("duplicate")
			return
		}
	}

	products := d.lookup(ctx, text)
	reply := d.compose(ctx, msg.From, text, catalog.Names(products))

	resp, err := d.deliverer.SendText(ctx, msg.From, reply)
	if err != nil {
		span.RecordError(err)
		d.logger.Error("bridge: failed to deliver reply",
			"to", msg.From,
			"error_kind", string(upstream.KindOf(err)),
			"error", err,
		)
		d.metrics.ObserveOutbound("failed")
		return
	}
	d.logger.Info("bridge: reply delivered",
		"to", msg.From,
		"message_id", resp.MessageID(),
		"product_matches", len(products),
	)
	d.metrics.ObserveOutbound("sent")
}

func (d *Dispatcher) lookup(ctx context.Context, text string) []catalog.Product {
	products, err := d.catalog.FindProducts(ctx, text)
	if err != nil {
		d.logger.Warn("bridge: catalog lookup failed; continuing without products",
			"error_kind", string(upstream.KindOf(err)),
			"error", err,
		)
		d.metrics.ObserveCatalogLookup("error")
		return nil
	}
	if len(products) == 0 {
		d.metrics.ObserveCatalogLookup("miss")
	} else {
		d.metrics.ObserveCatalogLookup("hit")
	}
	return products
}

func (d *Dispatcher) compose(ctx context.Context, sender, text string, names []string) string {
	if len(names) == 0 {
		return d.replies.GenerateReply(ctx, sender, text)
	}
	prompt := ProductPrompt(names)
	framing := d.replies.GenerateReply(ctx, sender, prompt)
	return ProductReply(text, names, framing)
}

// ProductPrompt asks the completion service to introduce the matched products.
func ProductPrompt(names []string) string {
	return fmt.Sprintf("Introduce these products in a friendly tone: %s.", strings.Join(names, ", "))
}

// ProductReply lists the matched products ahead of the generated framing.
func ProductReply(text string, names []string, framing string) string {
	return fmt.Sprintf("Here are some products matching '%s':\n%s\n\n%s", text, strings.Join(names, "\n"), framing)
}
