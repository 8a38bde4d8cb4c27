// Package registry keeps the bounded, insertion ordered history of sessions.
package registry

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

const (
	DefaultHistorySize = 10
	// MaxHistorySize is exclusive.
	MaxHistorySize = 1000
)

var ErrInvalidHistorySize = errors.New("invalid session history size")

// Registry maps session ids to sessions and remembers the order they were
// added in. When full, the oldest session is evicted. Evicted sessions keep
// running; they are only no longer reachable by id.
type Registry struct {
	mx    sync.Mutex
	size  int
	order *list.List
	byID  map[int64]*list.Element
}

func New(size int) (*Registry, error) {
	if err := validate(size); err != nil {
		return nil, err
	}
	return &Registry{
		size:  size,
		order: list.New(),
		byID:  make(map[int64]*list.Element),
	}, nil
}

func validate(size int) error {
	if size <= 0 || size >= MaxHistorySize {
		return fmt.Errorf("%w: %d, must be in range 1..%d", ErrInvalidHistorySize, size, MaxHistorySize-1)
	}
	return nil
}

// Add registers s. Adding an id already present is a no-op and returns false.
func (r *Registry) Add(s *session.Session) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.byID[s.ID()]; ok {
		return false
	}
	r.byID[s.ID()] = r.order.PushBack(s)
	r.evictLocked()
	return true
}

func (r *Registry) evictLocked() {
	for r.order.Len() > r.size {
		e := r.order.Front()
		s := r.order.Remove(e).(*session.Session)
		delete(r.byID, s.ID())
	}
}

func (r *Registry) Get(id int64) (*session.Session, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*session.Session), true
}

// Last returns the most recently added session.
func (r *Registry) Last() (*session.Session, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e := r.order.Back()
	if e == nil {
		return nil, false
	}
	return e.Value.(*session.Session), true
}

// LastCompleted returns the most recently added session in the Completed state.
func (r *Registry) LastCompleted() (*session.Session, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for e := r.order.Back(); e != nil; e = e.Prev() {
		s := e.Value.(*session.Session)
		if s.State() == session.StateCompleted {
			return s, true
		}
	}
	return nil, false
}

// All returns a snapshot in insertion order.
func (r *Registry) All() []*session.Session {
	return r.filter(func(*session.Session) bool { return true })
}

func (r *Registry) ByState(st session.State) []*session.Session {
	return r.filter(func(s *session.Session) bool { return s.State() == st })
}

func (r *Registry) ByKind(k session.Kind) []*session.Session {
	return r.filter(func(s *session.Session) bool { return s.Kind() == k })
}

func (r *Registry) filter(keep func(*session.Session) bool) []*session.Session {
	r.mx.Lock()
	defer r.mx.Unlock()
	ret := make([]*session.Session, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		s := e.Value.(*session.Session)
		if keep(s) {
			ret = append(ret, s)
		}
	}
	return ret
}

func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.order.Len()
}

func (r *Registry) HistorySize() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.size
}

// SetHistorySize changes the bound and evicts the oldest entries right away
// if the registry is over the new bound.
func (r *Registry) SetHistorySize(size int) error {
	if err := validate(size); err != nil {
		return err
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	r.size = size
	r.evictLocked()
	return nil
}

// Clear forgets every session. Running sessions are not affected.
func (r *Registry) Clear() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.order.Init()
	clear(r.byID)
}
