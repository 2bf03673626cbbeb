package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	inventoryapp "github.com/dmehra2102/catalog-checkout/internal/inventory/application"
	"github.com/dmehra2102/catalog-checkout/internal/order/application"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/idempotency"
	"github.com/dmehra2102/catalog-checkout/pkg/metrics"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
)

type Handler struct {
	log      *slog.Logger
	orders   *application.Coordinator
	products *inventoryapp.Service
	tracer   trace.Tracer

	idem     idempotency.Store
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ping     func(ctx context.Context) error
}

type Option func(*Handler)

// WithIdempotency enables Idempotency-Key handling on order creation.
func WithIdempotency(store idempotency.Store) Option {
	return func(h *Handler) { h.idem = store }
}

// WithMetrics records request metrics and serves /metrics from g.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithHealthCheck makes /health report unhealthy when ping fails.
func WithHealthCheck(ping func(ctx context.Context) error) Option {
	return func(h *Handler) { h.ping = ping }
}

func NewHandler(log *slog.Logger, orders *application.Coordinator, products *inventoryapp.Service, opts ...Option) *Handler {
	h := &Handler{
		log:      log,
		orders:   orders,
		products: products,
		tracer:   otel.Tracer("catalog-checkout-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/health", h.health)
	if h.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(h.gatherer))
	}

	r.Route("/orders", func(r chi.Router) {
		create := http.Handler(http.HandlerFunc(h.createOrder))
		if h.idem != nil {
			create = idempotency.Middleware(h.idem, h.log)(create)
		}
		r.Method(http.MethodPost, "/", create)
		r.Get("/", h.listOrders)
		r.Get("/customer/{email}", h.customerOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/confirm", h.transition("ConfirmOrder", h.orders.ConfirmOrder))
		r.Patch("/{id}/process", h.transition("ProcessOrder", h.orders.ProcessOrder))
		r.Patch("/{id}/ship", h.transition("ShipOrder", h.orders.ShipOrder))
		r.Patch("/{id}/deliver", h.transition("DeliverOrder", h.orders.DeliverOrder))
		r.Patch("/{id}/cancel", h.transition("CancelOrder", h.orders.CancelOrder))
		r.Post("/{id}/items", h.addItem)
		r.Put("/{id}/items", h.updateItem)
		r.Delete("/{id}/items/{productId}", h.removeItem)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Post("/batch", h.productsByIDs)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Patch("/{id}/stock", h.updateStock)
	})

	// The server span picks up an incoming traceparent; the per-handler
	// spans below become its children.
	return otelhttp.NewHandler(r, "catalog-checkout-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.orders.CreateOrder(ctx, req)
	if res.Success {
		span.SetAttributes(attribute.String("order.id", res.Data.ID.String()), attribute.String("order.number", res.Data.OrderNumber))
	}
	write(w, span, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	write(w, span, h.orders.GetOrder(ctx, id))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	write(w, span, h.orders.ListOrders(ctx, pageOf(r)))
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListCustomerOrders")
	defer span.End()

	write(w, span, h.orders.ListCustomerOrders(ctx, chi.URLParam(r, "email"), pageOf(r)))
}

func (h *Handler) transition(name string, fn func(context.Context, uuid.UUID) result.Result[application.OrderView]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), name)
		defer span.End()

		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("order.id", id.String()))
		write(w, span, fn(ctx, id))
	}
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddOrderItem")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req application.ItemRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.orders.AddItem(ctx, id, req))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderItem")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req application.ItemRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.orders.UpdateItem(ctx, id, req))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveOrderItem")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	write(w, span, h.orders.RemoveItem(ctx, id, productID))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.log.Warn("health check failed", "err", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// instrument records per-route request counts and latency.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

func pageOf(r *http.Request) storage.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return storage.PageRequest{Page: page, PageSize: size}.Normalize()
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, result.Fail[any]("Invalid "+name, http.StatusBadRequest))
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, result.Fail[any]("Invalid request body", http.StatusBadRequest))
		return false
	}
	return true
}

func write[T any](w http.ResponseWriter, span trace.Span, res result.Result[T]) {
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	if res.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, res.Message)
	}
	writeJSON(w, res.StatusCode, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

