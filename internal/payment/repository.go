package payment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrPaymentNotFound is returned when no payment exists for an invoice id.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrDuplicateInvoice is returned when creating a payment whose invoice id
// is already recorded. Uniqueness is enforced by the store, not by a
// check-then-insert, so concurrent duplicate creations cannot race.
var ErrDuplicateInvoice = errors.New("invoice already recorded")

// PaymentRepository defines methods for payment record persistence.
//
// UpdateStatus is an unconditional write: callers decide whether the
// transition is legal via Rules.Decide. The store does not enforce the
// terminal-state invariant.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) (int64, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*Payment, error)
	UpdateStatus(ctx context.Context, invoiceID, status string, paidAt *time.Time) error

	// List returns payments ordered newest created first. An empty status
	// means no filter. The store applies no upper bound on limit; callers
	// are expected to clamp it.
	List(ctx context.Context, limit, offset int, status string) ([]*Payment, error)
}

// InMemoryPaymentRepository implements PaymentRepository with in-memory
// storage. Used in tests and when running without a database.
type InMemoryPaymentRepository struct {
	mu       sync.RWMutex
	nextID   int64
	payments map[string]*Payment // invoice id -> payment
}

// NewInMemoryPaymentRepository creates a new in-memory payment repository.
func NewInMemoryPaymentRepository() *InMemoryPaymentRepository {
	return &InMemoryPaymentRepository{
		payments: make(map[string]*Payment),
	}
}

// Create adds a new payment record with pending status.
func (r *InMemoryPaymentRepository) Create(_ context.Context, p *Payment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.InvoiceID]; exists {
		return 0, ErrDuplicateInvoice
	}

	r.nextID++
	now := time.Now()

	copied := *p
	copied.ID = r.nextID
	copied.Status = StatusPending
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.payments[p.InvoiceID] = &copied

	return copied.ID, nil
}

// GetByInvoiceID retrieves a payment record by invoice id.
func (r *InMemoryPaymentRepository) GetByInvoiceID(_ context.Context, invoiceID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[invoiceID]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	// Copy to prevent external mutation
	copied := *p
	return &copied, nil
}

// UpdateStatus writes the given status and paid-at timestamp.
func (r *InMemoryPaymentRepository) UpdateStatus(_ context.Context, invoiceID, status string, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[invoiceID]
	if !ok {
		return ErrPaymentNotFound
	}

	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	p.UpdatedAt = time.Now()
	return nil
}

// List returns payments newest created first, optionally filtered by status.
func (r *InMemoryPaymentRepository) List(_ context.Context, limit, offset int, status string) ([]*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Payment, 0, len(r.payments))
	for _, p := range r.payments {
		if status != "" && p.Status != status {
			continue
		}
		copied := *p
		all = append(all, &copied)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*Payment{}, nil
	}
	all = all[offset:]
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
