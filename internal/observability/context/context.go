package context

import "context"

type actorKey struct{}
type accountKey struct{}
type runKey struct{}

type actor struct {
	Type string
	ID   string
}

type run struct {
	Job string
	ID  string
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{Type: actorType, ID: actorID})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.Type, a.ID
	}
	return "", ""
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

func AccountIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(accountKey{}).(string)
	return id
}

// WithRun tags the context with the scheduler job run it belongs to.
func WithRun(ctx context.Context, job, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, run{Job: job, ID: runID})
}

func RunFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if r, ok := ctx.Value(runKey{}).(run); ok {
		return r.Job, r.ID
	}
	return "", ""
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
