package sim

import "container/heap"

// The hazard ledger implements the non-homogeneous Poisson cancellation
// process: each acknowledged order carries a hazard threshold; a global
// cumulative hazard advances with lambda_cancel, and orders whose
// threshold it passes are cancelled. Stale heap entries (orders already
// filled or cancelled) pop harmlessly.

type hazardEntry struct {
	threshold       float64
	exchangeOrderID uint32
}

type hazardHeap []hazardEntry

func (h hazardHeap) Len() int            { return len(h) }
func (h hazardHeap) Less(i, j int) bool  { return h[i].threshold < h[j].threshold }
func (h hazardHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hazardHeap) Push(x any)         { *h = append(*h, x.(hazardEntry)) }
func (h *hazardHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// OrderManager tracks the simulator's outstanding orders. All methods run
// on the simulator goroutine.
type OrderManager struct {
	pendingInserts map[uint32]float64 // client request id -> hazard threshold
	activeOrders   map[uint32]struct{}
	expiryQueue    hazardHeap
	cancel         func(exchangeOrderID uint32)
}

func NewOrderManager(cancel func(exchangeOrderID uint32)) *OrderManager {
	return &OrderManager{
		pendingInserts: make(map[uint32]float64),
		activeOrders:   make(map[uint32]struct{}),
		cancel:         cancel,
	}
}

// RegisterPendingInsert remembers the hazard threshold chosen for an
// insert until the exchange acknowledges it with an order id.
func (m *OrderManager) RegisterPendingInsert(clientRequestID uint32, hazardThreshold float64) {
	m.pendingInserts[clientRequestID] = hazardThreshold
}

func (m *OrderManager) OnInsertAcknowledged(clientRequestID, exchangeOrderID uint32) {
	threshold, ok := m.pendingInserts[clientRequestID]
	if !ok {
		return
	}
	delete(m.pendingInserts, clientRequestID)
	m.activeOrders[exchangeOrderID] = struct{}{}
	heap.Push(&m.expiryQueue, hazardEntry{threshold: threshold, exchangeOrderID: exchangeOrderID})
}

// OnPartialFill drops an order from the active set once fully filled; its
// heap entry becomes stale and is skipped at expiry time.
func (m *OrderManager) OnPartialFill(exchangeOrderID uint32, leavesQuantity uint32) {
	if leavesQuantity > 0 {
		return
	}
	delete(m.activeOrders, exchangeOrderID)
}

// OnHazardAdvanced fires cancels for every order whose threshold the
// cumulative hazard has passed.
func (m *OrderManager) OnHazardAdvanced(cumulativeHazard float64) {
	for m.expiryQueue.Len() > 0 && m.expiryQueue[0].threshold <= cumulativeHazard {
		entry := heap.Pop(&m.expiryQueue).(hazardEntry)
		if _, alive := m.activeOrders[entry.exchangeOrderID]; !alive {
			continue
		}
		delete(m.activeOrders, entry.exchangeOrderID)
		m.cancel(entry.exchangeOrderID)
	}
}

func (m *OrderManager) OpenOrderCount() int { return len(m.activeOrders) }
