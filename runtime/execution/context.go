package execution

import (
	"context"
	"reflect"

	"github.com/viant/sched/model/priority"
)

// Info describes the submission an executor is running for.
type Info struct {
	TaskID     string
	InstanceID string
	Priority   priority.Level
	Group      string
}

var TokenKey = KeyOf[*Token]()
var InfoKey = KeyOf[*Info]()

// Context is handed to executors; it carries the token and submission info
// and is cancelled (with the token cause) once the token is cancelled.
type Context struct {
	token *Token
	info  *Info
	context.Context
}

func (c *Context) Value(key any) any {
	switch key {
	case TokenKey:
		return c.token
	case InfoKey:
		return c.info
	}
	return c.Context.Value(key)
}

// NewContext derives an executor context bound to token. The returned
// release function must be called once the executor returns.
func NewContext(ctx context.Context, token *Token, info *Info) (*Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	derived, cancel := context.WithCancelCause(ctx)
	token.OnCancel(func(cause error) { cancel(cause) })
	return &Context{Context: derived, token: token, info: info}, func() { cancel(context.Canceled) }
}

// TokenFromContext returns the cancellation token or nil
func TokenFromContext(ctx context.Context) *Token {
	return ContextValue[*Token](ctx)
}

// InfoFromContext returns submission info or nil
func InfoFromContext(ctx context.Context) *Info {
	return ContextValue[*Info](ctx)
}

// ContextValue returns the value of the provided type from the context
func ContextValue[T any](ctx context.Context) T {
	key := KeyOf[T]()
	if value := ctx.Value(key); value != nil {
		return value.(T)
	}
	var t T
	return t
}

// KeyOf returns the reflect.Type of the provided type
func KeyOf[T any]() reflect.Type {
	var a T
	return reflect.TypeOf(a)
}
