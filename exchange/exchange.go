// Package exchange runs the coordinator: it accepts TCP clients, drains
// the shared inbox on a single engine goroutine, drives the matching
// engine, and publishes private confirmations and public market data.
package exchange

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"helix/domain/book"
	"helix/infra/conn"
	"helix/infra/eventlog"
	"helix/infra/metrics"
	"helix/infra/outbox"
	"helix/infra/ring"
	"helix/wire"
)

type Options struct {
	Port           int
	MaxConnections int
	MaxOrders      int
	InboxCap       uint64
	OutboxCap      uint64
	IdleBackoff    time.Duration

	EventLog     *eventlog.Logger // optional
	OutboxWriter *outbox.Writer   // optional
}

type Exchange struct {
	opts Options
	log  *zap.Logger

	listener net.Listener
	inbox    *ring.MPSC[wire.InboundMessage]
	conns    []atomic.Pointer[conn.Conn]

	// Engine-goroutine state. Counters are plain ints on purpose: every
	// increment happens on the engine goroutine.
	book        *book.OrderBook
	subscribers []uint32
	tradeID     uint32
	seq         uint32

	running    atomic.Bool
	engineDone chan struct{}

	nextConnID uint32 // accept goroutine only

	scratch [wire.MaxPayloadSize]byte
}

func New(opts Options, log *zap.Logger) (*Exchange, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	e := &Exchange{
		opts:       opts,
		log:        log.Named("exchange"),
		listener:   listener,
		inbox:      ring.NewMPSC[wire.InboundMessage](opts.InboxCap),
		conns:      make([]atomic.Pointer[conn.Conn], opts.MaxConnections),
		engineDone: make(chan struct{}),
	}
	e.book = book.NewOrderBook(opts.MaxOrders, e, eventlog.Now)
	return e, nil
}

// Addr returns the bound listen address (useful with port 0).
func (e *Exchange) Addr() net.Addr { return e.listener.Addr() }

func (e *Exchange) Start() {
	e.running.Store(true)
	go e.acceptLoop()
	go e.engineLoop()
	e.log.Info("exchange started", zap.String("addr", e.listener.Addr().String()))
}

// Stop closes the acceptor and every socket, then joins the engine
// goroutine. Pending inbound frames are dropped; pending outbound frames
// may be dropped.
func (e *Exchange) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	_ = e.listener.Close()
	for i := range e.conns {
		if c := e.conns[i].Load(); c != nil {
			c.Close()
		}
	}
	<-e.engineDone
	e.log.Info("exchange stopped")
}

// ---------------- accept path ---------------- //

func (e *Exchange) acceptLoop() {
	for {
		sock, err := e.listener.Accept()
		if err != nil {
			if !e.running.Load() {
				return
			}
			e.log.Error("accept error", zap.Error(err))
			continue
		}

		id := e.nextConnID
		if int(id) >= e.opts.MaxConnections {
			e.log.Warn("connection table full, rejecting peer",
				zap.String("remote", sock.RemoteAddr().String()))
			_ = sock.Close()
			continue
		}
		e.nextConnID++

		c := conn.New(id, sock, e.inbox, e.opts.OutboxCap, e.log)
		c.OnDisconnect(func(c *conn.Conn) {
			// Teardown is serialised with engine state through a
			// synthetic DISCONNECT record. Best-effort: if the inbox is
			// full the engine is overloaded anyway.
			var msg wire.InboundMessage
			msg.ConnectionID = c.ID()
			msg.Type = wire.MsgDisconnect
			_ = e.inbox.Push(msg)
		})

		// Publish the slot before frames can reference it.
		e.conns[id].Store(c)
		c.Start()
		metrics.Connections.Inc()
		e.log.Info("client connected",
			zap.Uint32("conn", id), zap.String("remote", sock.RemoteAddr().String()))
	}
}

// ---------------- engine ---------------- //

func (e *Exchange) engineLoop() {
	defer close(e.engineDone)
	var msg wire.InboundMessage

	for e.running.Load() {
		didWork := false
		for e.inbox.Pop(&msg) {
			didWork = true
			e.dispatch(&msg)
		}
		if !didWork {
			metrics.InboxDepth.Set(float64(e.inbox.Len()))
			time.Sleep(e.opts.IdleBackoff)
		}
	}
}

func (e *Exchange) dispatch(msg *wire.InboundMessage) {
	payload := msg.Payload[:msg.PayloadSize]
	switch msg.Type {
	case wire.MsgInsertOrder:
		p := wire.DecodeInsertOrder(payload)
		e.book.SubmitOrder(p.Price, p.Quantity, p.Side, p.Lifespan, msg.ConnectionID, p.ClientRequestID)
	case wire.MsgCancelOrder:
		p := wire.DecodeCancelOrder(payload)
		e.book.CancelOrder(msg.ConnectionID, p.ClientRequestID, p.ExchangeOrderID)
	case wire.MsgAmendOrder:
		p := wire.DecodeAmendOrder(payload)
		e.book.AmendOrder(msg.ConnectionID, p.ClientRequestID, p.ExchangeOrderID, p.NewTotalQuantity)
	case wire.MsgOrderStatusRequest:
		p := wire.DecodeOrderStatusRequest(payload)
		e.handleOrderStatus(msg.ConnectionID, p)
	case wire.MsgSubscribe:
		e.subscribe(msg.ConnectionID)
	case wire.MsgUnsubscribe:
		e.unsubscribe(msg.ConnectionID)
	case wire.MsgDisconnect:
		e.removeConnection(msg.ConnectionID)
	}
}

func (e *Exchange) handleOrderStatus(connID uint32, p wire.OrderStatusRequest) {
	o, ok := e.book.OrderStatusLookup(connID, p.ClientRequestID, p.ExchangeOrderID)
	if !ok {
		return
	}
	status := wire.OrderStatus{
		ClientRequestID: p.ClientRequestID,
		ExchangeOrderID: o.OrderID,
		Side:            o.Side,
		LimitPrice:      o.Price,
		TotalQuantity:   o.Quantity,
		FilledQuantity:  o.QuantityCumulative,
		LeavesQuantity:  o.QuantityRemaining,
		Timestamp:       eventlog.Now(),
	}
	if o.QuantityCumulative > 0 {
		// A resting order's fills as maker execute at its own price.
		status.LastPrice = o.Price
	}
	status.Encode(e.scratch[:wire.SizeOrderStatus])
	e.sendTo(connID, wire.MsgOrderStatus, e.scratch[:wire.SizeOrderStatus])
}

func (e *Exchange) subscribe(connID uint32) {
	for _, id := range e.subscribers {
		if id == connID {
			return
		}
	}
	e.subscribers = append(e.subscribers, connID)
	metrics.Subscribers.Set(float64(len(e.subscribers)))

	// Bootstrap snapshot carries the current sequence number without
	// consuming one; deltas continue from it.
	var snap wire.OrderBookSnapshot
	e.book.BuildSnapshot(&snap)
	snap.SequenceNumber = e.seq
	snap.Encode(e.scratch[:wire.SizeOrderBookSnapshot])
	if c := e.connByID(connID); c != nil {
		c.SendUnbuffered(wire.MsgOrderBookSnapshot, e.scratch[:wire.SizeOrderBookSnapshot])
	}
}

func (e *Exchange) unsubscribe(connID uint32) {
	for i, id := range e.subscribers {
		if id == connID {
			last := len(e.subscribers) - 1
			e.subscribers[i] = e.subscribers[last]
			e.subscribers = e.subscribers[:last]
			metrics.Subscribers.Set(float64(len(e.subscribers)))
			return
		}
	}
}

func (e *Exchange) removeConnection(connID uint32) {
	e.unsubscribe(connID)
	if int(connID) < len(e.conns) {
		if c := e.conns[connID].Swap(nil); c != nil {
			c.Close()
			metrics.Connections.Dec()
			e.log.Info("client disconnected", zap.Uint32("conn", connID))
		}
	}
}

func (e *Exchange) connByID(connID uint32) *conn.Conn {
	if int(connID) >= len(e.conns) {
		return nil
	}
	return e.conns[connID].Load()
}

func (e *Exchange) sendTo(connID uint32, t wire.MessageType, payload []byte) {
	if c := e.connByID(connID); c != nil {
		c.Send(t, payload)
	}
}
