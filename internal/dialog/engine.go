// Package dialog runs step-by-step wizards, one per user in a conversation.
package dialog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNoSession     = errors.New("no active dialog")
	ErrUnknownWizard = errors.New("unknown wizard")
)

const (
	stateReview    = "review"
	stateDone      = "done"
	stateCancelled = "cancelled"

	eventNext    = "next"
	eventConfirm = "confirm"
	eventCancel  = "cancel"
)

const (
	cancelledText = "Cancelled. Nothing was saved."
	reviewHint    = "Use the buttons below to confirm or cancel."
	failureHint   = "Submission failed, please press confirm again in a moment."
)

// Participant identifies who a session belongs to.
type Participant struct {
	ConversationID int64
	UserID         int64
	Username       string
}

// Key addresses a session: one user in one conversation. Members of a group
// chat each get their own.
type Key struct {
	ConversationID int64
	UserID         int64
}

// Key returns the session key of the participant.
func (p Participant) Key() Key {
	return Key{ConversationID: p.ConversationID, UserID: p.UserID}
}

// Session is the transient state of one running wizard.
type Session struct {
	Participant
	Wizard    string
	StepIndex int
	Fields    map[string]string

	machine   *fsm.FSM
	updatedAt time.Time
}

// Field returns a collected answer.
func (s *Session) Field(key string) string {
	return s.Fields[key]
}

// Engine owns the session table. At most one session exists per user and
// conversation; entering a wizard replaces whatever that user was running
// there.
//
// Events of one conversation must be delivered sequentially; the engine only
// guards the table itself.
type Engine struct {
	mu       sync.Mutex
	wizards  map[string]*Wizard
	sessions map[Key]*Session
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(log *zap.Logger, wizards ...*Wizard) (*Engine, error) {
	e := &Engine{
		wizards:  make(map[string]*Wizard, len(wizards)),
		sessions: make(map[Key]*Session),
		log:      log,
		now:      time.Now,
	}
	for _, w := range wizards {
		if err := w.validate(); err != nil {
			return nil, err
		}
		if _, dup := e.wizards[w.Name]; dup {
			return nil, errors.Errorf("wizard %q registered twice", w.Name)
		}
		e.wizards[w.Name] = w
	}
	return e, nil
}

// Enter starts wizard name for the participant and returns the first prompt.
func (e *Engine) Enter(_ context.Context, name string, p Participant) (Prompt, error) {
	w, ok := e.wizards[name]
	if !ok {
		return Prompt{}, errors.Wrap(ErrUnknownWizard, name)
	}

	s := &Session{
		Participant: p,
		Wizard:      name,
		Fields:      make(map[string]string, len(w.Steps)),
		updatedAt:   e.now(),
	}
	s.machine = e.newMachine(w, p.Key())

	e.mu.Lock()
	if prev, ok := e.sessions[p.Key()]; ok {
		e.log.Debug("replacing dialog",
			zap.Int64("chat_id", p.ConversationID),
			zap.Int64("user_id", p.UserID),
			zap.String("previous", prev.Wizard),
			zap.String("wizard", name))
	}
	e.sessions[p.Key()] = s
	e.mu.Unlock()

	return w.stepPrompt(0, ""), nil
}

// Active returns the name of the wizard k is running.
func (e *Engine) Active(k Key) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[k]
	if !ok {
		return "", false
	}
	return s.Wizard, true
}

// Advance feeds one input to the session of k. Input from another member of
// the same conversation never reaches it.
//
// Invalid input re-prompts without advancing. When the completion of a
// confirmed review fails, the session stays on the review step, the prompt
// tells the user so, and the cause is returned alongside it.
func (e *Engine) Advance(ctx context.Context, k Key, in Input) (Prompt, error) {
	s, ok := e.session(k)
	if !ok {
		return Prompt{}, ErrNoSession
	}
	if in.Signal == SignalCancel {
		return e.Cancel(k), nil
	}
	w := e.wizards[s.Wizard]
	e.touch(s)

	if s.StepIndex < len(w.Steps) {
		if in.Signal != SignalText {
			return w.stepPrompt(s.StepIndex, ""), nil
		}
		step := w.Steps[s.StepIndex]
		text := strings.TrimSpace(in.Text)
		if err := step.validate(text); err != nil {
			return w.stepPrompt(s.StepIndex, err.Error()), nil
		}
		if err := s.machine.Event(ctx, eventNext); err != nil {
			return Prompt{}, errors.Wrapf(err, "advance %s", s.Wizard)
		}
		s.Fields[step.Key] = text
		s.StepIndex++
		if s.StepIndex < len(w.Steps) {
			return w.stepPrompt(s.StepIndex, ""), nil
		}
		return w.reviewPrompt(s, ""), nil
	}

	if in.Signal != SignalConfirm {
		return w.reviewPrompt(s, reviewHint), nil
	}

	done, err := w.Complete(ctx, s)
	if err != nil {
		return w.reviewPrompt(s, failureHint), errors.Wrapf(err, "complete %s", s.Wizard)
	}
	if err := s.machine.Event(ctx, eventConfirm); err != nil {
		return Prompt{}, errors.Wrapf(err, "confirm %s", s.Wizard)
	}
	e.drop(s)
	done.Done = true
	return done, nil
}

// Cancel ends the session of k, if any, discarding its answers.
func (e *Engine) Cancel(k Key) Prompt {
	if s, ok := e.session(k); ok {
		if err := s.machine.Event(context.Background(), eventCancel); err != nil {
			e.log.Debug("cancel transition", zap.Error(err))
		}
		e.drop(s)
	}
	return Prompt{Text: cancelledText, Done: true}
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (e *Engine) Sweep(ttl time.Duration) int {
	cutoff := e.now().Add(-ttl)

	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for k, s := range e.sessions {
		if s.updatedAt.Before(cutoff) {
			delete(e.sessions, k)
			n++
		}
	}
	return n
}

func (e *Engine) session(k Key) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[k]
	return s, ok
}

func (e *Engine) touch(s *Session) {
	e.mu.Lock()
	s.updatedAt = e.now()
	e.mu.Unlock()
}

// drop removes s unless it has already been replaced.
func (e *Engine) drop(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.sessions[s.Key()]; ok && cur == s {
		delete(e.sessions, s.Key())
	}
}

func (e *Engine) newMachine(w *Wizard, k Key) *fsm.FSM {
	keys := make([]string, 0, len(w.Steps)+1)
	events := make(fsm.Events, 0, len(w.Steps)+2)
	for i, st := range w.Steps {
		dst := stateReview
		if i+1 < len(w.Steps) {
			dst = w.Steps[i+1].Key
		}
		events = append(events, fsm.EventDesc{Name: eventNext, Src: []string{st.Key}, Dst: dst})
		keys = append(keys, st.Key)
	}
	keys = append(keys, stateReview)
	events = append(events,
		fsm.EventDesc{Name: eventConfirm, Src: []string{stateReview}, Dst: stateDone},
		fsm.EventDesc{Name: eventCancel, Src: keys, Dst: stateCancelled},
	)

	return fsm.NewFSM(w.Steps[0].Key, events, fsm.Callbacks{
		"enter_state": func(_ context.Context, ev *fsm.Event) {
			e.log.Debug("dialog transition",
				zap.Int64("chat_id", k.ConversationID),
				zap.Int64("user_id", k.UserID),
				zap.String("wizard", w.Name),
				zap.String("from", ev.Src),
				zap.String("to", ev.Dst))
		},
	})
}
