// internal/stream/hub.go
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"sokopay-service/internal/domain/payment"
	"sokopay-service/internal/metrics"
)

// Hub fans payment status transitions out to WebSocket subscribers. Clients
// subscribe to a single checkout request ID; the reconciler feeds the hub
// through NotifyStatus after every committed transition.
type Hub struct {
	// Subscribers by checkout request ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *statusUpdate

	metrics *metrics.Metrics
	logger  *zap.Logger
}

type statusUpdate struct {
	checkoutRequestID string
	payload           []byte
}

type statusMessage struct {
	Type              string         `json:"type"`
	CheckoutRequestID string         `json:"checkout_request_id"`
	Status            payment.Status `json:"status"`
	ResultDesc        string         `json:"result_desc,omitempty"`
	ReceiptNumber     string         `json:"receipt_number,omitempty"`
	Amount            int64          `json:"amount,omitempty"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
}

func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *statusUpdate, 256),
		metrics:    m,
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case update := <-h.broadcast:
			h.deliver(update)
		}
	}
}

// Attach hands a freshly upgraded client to the hub loop.
func (h *Hub) Attach(client *Client) {
	h.register <- client
}

// NotifyStatus implements the reconciler's notifier. It never blocks: when
// the broadcast queue is full the update is dropped and the subscriber
// catches up on the next transition or via the status endpoint.
func (h *Hub) NotifyStatus(checkoutRequestID string, rec *payment.Record) {
	payload, err := statusPayload(checkoutRequestID, rec)
	if err != nil {
		h.logger.Warn("failed to encode status update", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &statusUpdate{checkoutRequestID: checkoutRequestID, payload: payload}:
	default:
		h.logger.Warn("status broadcast queue full, dropping update",
			zap.String("checkout_request_id", checkoutRequestID))
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.checkoutRequestID] == nil {
		h.clients[client.checkoutRequestID] = make(map[*Client]bool)
	}
	h.clients[client.checkoutRequestID][client] = true
	h.metrics.StreamClients.Inc()

	h.logger.Debug("stream client connected",
		zap.String("checkout_request_id", client.checkoutRequestID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.checkoutRequestID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.close()
	if len(clients) == 0 {
		delete(h.clients, client.checkoutRequestID)
	}
	h.metrics.StreamClients.Dec()

	h.logger.Debug("stream client disconnected",
		zap.String("checkout_request_id", client.checkoutRequestID))
}

func (h *Hub) deliver(update *statusUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[update.checkoutRequestID] {
		client.Send(update.payload)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}

func statusPayload(checkoutRequestID string, rec *payment.Record) ([]byte, error) {
	msg := statusMessage{
		Type:              "status",
		CheckoutRequestID: checkoutRequestID,
		Status:            rec.Status,
	}
	if rec.ResultDesc.Valid {
		msg.ResultDesc = rec.ResultDesc.String
	}
	if rec.ReceiptNumber.Valid {
		msg.ReceiptNumber = rec.ReceiptNumber.String
	}
	if rec.Amount.Valid {
		msg.Amount = rec.Amount.Int64
	}
	if rec.PaidAt.Valid {
		paidAt := rec.PaidAt.Time
		msg.PaidAt = &paidAt
	}
	return json.Marshal(msg)
}
