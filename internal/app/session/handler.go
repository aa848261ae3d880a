package session

import (
	"context"
	"fmt"

	"github.com/jose-valero/slashkit/internal/domain"
)

// Handler is the callback contract of a command or component. Interaction
// callbacks return handled=false to keep listening on the same observer.
//
// Implementations embed Base, which provides no-op defaults and the link to
// the owning Session.
type Handler interface {
	Execute(ctx context.Context, inv *domain.Invocation) error
	OnButton(ctx context.Context, ev *domain.ButtonEvent) (bool, error)
	OnButtonTimeout(ctx context.Context) error
	OnSelect(ctx context.Context, ev *domain.SelectEvent) (bool, error)
	OnSelectTimeout(ctx context.Context) error
	OnModal(ctx context.Context, ev *domain.ModalEvent) (bool, error)
	OnModalTimeout(ctx context.Context) error
	OnAutoComplete(ctx context.Context, option string, ev *domain.AutoCompleteEvent) error
	OnDestroy(ctx context.Context) error

	bind(s *Session)
}

// Factory builds a fresh handler instance.
type Factory func() Handler

// Base must be embedded by every Handler.
type Base struct {
	s *Session
}

func (b *Base) bind(s *Session) { b.s = s }

// Session returns the session the handler belongs to.
func (b *Base) Session() *Session { return b.s }

func (*Base) Execute(context.Context, *domain.Invocation) error { return nil }

func (*Base) OnButton(context.Context, *domain.ButtonEvent) (bool, error) { return false, nil }

func (*Base) OnButtonTimeout(context.Context) error { return nil }

func (*Base) OnSelect(context.Context, *domain.SelectEvent) (bool, error) { return false, nil }

func (*Base) OnSelectTimeout(context.Context) error { return nil }

func (*Base) OnModal(context.Context, *domain.ModalEvent) (bool, error) { return false, nil }

func (*Base) OnModalTimeout(context.Context) error { return nil }

func (*Base) OnAutoComplete(context.Context, string, *domain.AutoCompleteEvent) error { return nil }

func (*Base) OnDestroy(context.Context) error { return nil }

// PanicError wraps a panic recovered from a handler callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }
