// Package auth decides whether the console may show protected panels, and
// where its bearer token comes from.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

type State int

const (
	StateLoading State = iota
	StateAuthorized
	StateUnauthorized
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthorized:
		return "authorized"
	case StateUnauthorized:
		return "unauthorized"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is shown instead of protected content in every state but
// StateAuthorized.
const Message = "You are not logged in to the Edge Stack admin API. Supply a token with --token, EDGE_CONSOLE_TOKEN or EDGE_CONSOLE_TOKEN_FILE, then press ctrl+r."

type Prober interface {
	Probe(ctx context.Context) (int, error)
}

type Result struct {
	State  State
	Detail string
}

// Gate evaluates access once. Later calls to Check return the first
// outcome; a fresh Gate is needed to evaluate again.
type Gate struct {
	prober Prober

	once   sync.Once
	mu     sync.Mutex
	result Result
}

func NewGate(prober Prober) *Gate {
	return &Gate{prober: prober, result: Result{State: StateLoading}}
}

func (g *Gate) Check(ctx context.Context) Result {
	g.once.Do(func() {
		result := evaluate(ctx, g.prober)
		g.mu.Lock()
		g.result = result
		g.mu.Unlock()
	})
	return g.Result()
}

func (g *Gate) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

func evaluate(ctx context.Context, prober Prober) Result {
	status, err := prober.Probe(ctx)
	if err != nil {
		return Result{State: StateError, Detail: err.Error()}
	}
	switch status {
	case http.StatusOK:
		return Result{State: StateAuthorized}
	case http.StatusForbidden:
		return Result{State: StateUnauthorized, Detail: "the admin API rejected the token"}
	default:
		return Result{State: StateError, Detail: fmt.Sprintf("unexpected probe status %d %s", status, http.StatusText(status))}
	}
}
