package dialog

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Callback data of the affordances every wizard shares.
const (
	ActionCancel  = "cancel_scene"
	ActionConfirm = "confirm_scene"
)

// MaxInputLen bounds a single answer, in characters.
const MaxInputLen = 1000

var (
	ErrEmptyInput   = errors.New("please answer with a text message")
	ErrInputTooLong = errors.Errorf("the answer is too long, keep it under %d characters", MaxInputLen)
)

// Button is an inline affordance attached to a prompt.
type Button struct {
	Label string
	Data  string
}

// Prompt is what the bot shows the user after an event. Text is HTML.
type Prompt struct {
	Text    string
	Buttons []Button
	// Done is set when the session ended, either completed or cancelled.
	Done bool
}

var (
	cancelButton  = Button{Label: "✖️ Cancel", Data: ActionCancel}
	confirmButton = Button{Label: "✅ Confirm", Data: ActionConfirm}
)

// Signal tells a text answer apart from the confirm and cancel buttons.
type Signal int

const (
	SignalText Signal = iota
	SignalConfirm
	SignalCancel
)

// Input is one inbound event for an active session.
type Input struct {
	Signal Signal
	Text   string
}

func Text(s string) Input { return Input{Signal: SignalText, Text: s} }

func Confirm() Input { return Input{Signal: SignalConfirm} }

func Cancel() Input { return Input{Signal: SignalCancel} }

// Step collects one field.
type Step struct {
	Key    string
	Prompt string
	// Validate checks a trimmed answer. DefaultValidate is used when nil.
	Validate func(string) error
}

// DefaultValidate accepts any non-empty answer up to MaxInputLen characters.
func DefaultValidate(s string) error {
	if s == "" {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(s) > MaxInputLen {
		return ErrInputTooLong
	}
	return nil
}

func (s Step) validate(text string) error {
	if s.Validate != nil {
		return s.Validate(text)
	}
	return DefaultValidate(text)
}

// CompleteFunc runs when the user confirms the review. A returned error
// keeps the session on the review step.
type CompleteFunc func(ctx context.Context, s *Session) (Prompt, error)

// Wizard is a fixed sequence of steps followed by a review.
type Wizard struct {
	Name     string
	Steps    []Step
	Review   func(s *Session) string
	Complete CompleteFunc
}

func (w *Wizard) validate() error {
	if w.Name == "" {
		return errors.New("wizard without a name")
	}
	if len(w.Steps) == 0 {
		return errors.Errorf("wizard %q has no steps", w.Name)
	}
	if w.Complete == nil {
		return errors.Errorf("wizard %q has no completion", w.Name)
	}
	seen := make(map[string]bool, len(w.Steps))
	for _, st := range w.Steps {
		switch {
		case st.Key == "":
			return errors.Errorf("wizard %q has a step without a key", w.Name)
		case st.Key == stateReview || st.Key == stateDone || st.Key == stateCancelled:
			return errors.Errorf("wizard %q uses reserved step key %q", w.Name, st.Key)
		case seen[st.Key]:
			return errors.Errorf("wizard %q repeats step key %q", w.Name, st.Key)
		}
		seen[st.Key] = true
	}
	return nil
}

func (w *Wizard) stepPrompt(i int, hint string) Prompt {
	text := w.Steps[i].Prompt
	if hint != "" {
		text = "⚠️ " + hint + "\n\n" + text
	}
	return Prompt{Text: text, Buttons: []Button{cancelButton}}
}

func (w *Wizard) reviewPrompt(s *Session, hint string) Prompt {
	var text string
	if w.Review != nil {
		text = w.Review(s)
	} else {
		var b strings.Builder
		for _, st := range w.Steps {
			b.WriteString(st.Key + ": " + html.EscapeString(s.Fields[st.Key]) + "\n")
		}
		text = b.String()
	}
	if hint != "" {
		text = "⚠️ " + hint + "\n\n" + text
	}
	return Prompt{Text: text, Buttons: []Button{confirmButton, cancelButton}}
}
