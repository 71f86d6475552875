// Package memory is an in-process implementation of the porting repositories.
// It is selected at startup when PostgreSQL is unreachable and backs the unit tests.
package memory

import (
	"sync"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// DB is the shared state behind every memory repository.
type DB struct {
	mu sync.RWMutex

	seq           int64
	requests      map[string]*domain.PortingRequest
	notifications map[string]*storedNotification
	rules         map[string]*domain.PortingRules
	relay         map[string]*storedRelay
	failures      map[string]*storedFailure
}

type storedNotification struct {
	seq int64
	n   domain.Notification
}

type storedRelay struct {
	seq int64
	e   domain.RelayEntry
}

type storedFailure struct {
	seq int64
	l   domain.SMSFailureLog
}

func NewDB() *DB {
	return &DB{
		requests:      make(map[string]*domain.PortingRequest),
		notifications: make(map[string]*storedNotification),
		rules:         make(map[string]*domain.PortingRules),
		relay:         make(map[string]*storedRelay),
		failures:      make(map[string]*storedFailure),
	}
}

func (db *DB) next() int64 {
	db.seq++
	return db.seq
}

func cloneVars(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNotification(n domain.Notification) domain.Notification {
	n.Variables = cloneVars(n.Variables)
	return n
}
