package collage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/youruser/collageapp/internal/errors"
	"github.com/youruser/collageapp/internal/layout"
)

// State is a session's position in the composition lifecycle.
type State int

const (
	Idle State = iota
	TemplateChosen
	Loading
	Composed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TemplateChosen:
		return "template_chosen"
	case Loading:
		return "loading"
	case Composed:
		return "composed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	Count      int       `json:"count"`
	Locators   []string  `json:"locators"`
	Error      string    `json:"error,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Session drives one collage through its lifecycle. Each entry into Loading
// starts a new generation and cancels the previous one; results from an
// older generation are discarded when they arrive.
type Session struct {
	ID string

	composer *Composer
	base     context.Context

	mu         sync.Mutex
	state      State
	template   layout.Template
	locators   []string
	size       [2]int
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	result     *Result
	err        error
	updated    time.Time

	// onCommit observes every finished generation; tests use it.
	onCommit func(gen uint64, applied bool)
}

// NewSession returns an idle session. Loads run under base, so cancelling
// base stops every in-flight generation.
func NewSession(base context.Context, id string, composer *Composer) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		ID:       id,
		composer: composer,
		base:     base,
		done:     done,
		updated:  time.Now(),
	}
}

// ChooseTemplate selects the template for locators and moves the session to
// TemplateChosen, dropping any previous result. An in-flight load is
// cancelled. Invalid input leaves the session unchanged.
func (s *Session) ChooseTemplate(locators []string, width, height int) error {
	tmpl, err := layout.Lookup(len(locators))
	if err != nil {
		return err
	}
	if err := s.composer.Validate(Request{Locators: locators, Width: width, Height: height}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	s.template = tmpl
	s.locators = slices.Clone(locators)
	s.size = [2]int{width, height}
	s.result = nil
	s.err = nil
	s.setStateLocked(TemplateChosen)
	return nil
}

// Start enters Loading for the current template and locators and composes
// in the background. It returns the new generation. Starting while Loading
// restarts every slot from scratch.
func (s *Session) Start() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return 0, errors.New(errors.ErrCodeInvalidState, "cannot start loading from %s", s.state)
	}
	s.supersedeLocked()

	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.result = nil
	s.err = nil
	s.setStateLocked(Loading)

	gen := s.generation
	req := Request{Locators: slices.Clone(s.locators), Width: s.size[0], Height: s.size[1]}
	tmpl := s.template
	done := s.done
	go func() {
		res, err := s.composer.ComposeTemplate(ctx, tmpl, req)
		s.commit(gen, done, res, err)
	}()
	return gen, nil
}

// Retry re-enters Loading. Non-empty locators replace the current set and
// re-choose the template first.
func (s *Session) Retry(locators []string) (uint64, error) {
	if len(locators) > 0 {
		s.mu.Lock()
		w, h := s.size[0], s.size[1]
		s.mu.Unlock()
		if err := s.ChooseTemplate(locators, w, h); err != nil {
			return 0, err
		}
	}
	return s.Start()
}

// supersedeLocked invalidates the running generation, if any.
func (s *Session) supersedeLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) commit(gen uint64, done chan struct{}, res *Result, err error) {
	applied := s.apply(gen, done, res, err)
	if s.onCommit != nil {
		s.onCommit(gen, applied)
	}
}

// apply records a generation's outcome unless a newer generation exists.
func (s *Session) apply(gen uint64, done chan struct{}, res *Result, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != Loading {
		s.composer.Logger.Debug("discarding stale result", "session", s.ID, "generation", gen, "current", s.generation)
		return false
	}
	if err != nil {
		s.err = err
		s.setStateLocked(Failed)
	} else {
		s.result = res
		s.setStateLocked(Composed)
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	close(done)
	return true
}

func (s *Session) setStateLocked(to State) {
	s.state = to
	s.updated = time.Now()
}

// Wait blocks until the session is no longer Loading or ctx ends.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		done, state := s.done, s.state
		s.mu.Unlock()

		if state != Loading {
			return s.Snapshot(), nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

// Snapshot copies the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.ID,
		State:      s.state,
		Generation: s.generation,
		Count:      s.template.Count,
		Locators:   slices.Clone(s.locators),
		UpdatedAt:  s.updated,
	}
	if s.err != nil {
		snap.Error = errors.UserMessage(s.err)
		snap.ErrorCode = string(errors.GetCode(s.err))
	}
	return snap
}

// Result returns the composed collage. Only a Composed session has one;
// Save and Share are built on it.
func (s *Session) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Composed {
		return nil, errors.New(errors.ErrCodeInvalidState, "session is %s, not composed", s.state)
	}
	return s.result, nil
}

// Err returns the failure of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels any in-flight generation. A session closed while Loading
// ends up Failed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	if s.state == Loading {
		s.err = errors.Wrap(errors.ErrCodeInvalidState, context.Canceled, "session closed")
		s.setStateLocked(Failed)
	}
}
