package llm

import "context"

// Middleware decorates a client with one cross-cutting behaviour (metrics,
// breaker, retry, timeout).
type Middleware func(next LLMClient) LLMClient

// CompleteFunc is the shape of LLMClient.Complete.
type CompleteFunc func(context.Context, CompletionRequest) (CompletionResponse, error)

type wrapped struct {
	complete CompleteFunc
	model    func() string
}

func (w wrapped) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return w.complete(ctx, req)
}

func (w wrapped) GetModelName() string { return w.model() }

// WrapClient turns a complete function and a model-name getter into a client.
func WrapClient(complete CompleteFunc, modelName func() string) LLMClient {
	return wrapped{complete: complete, model: modelName}
}

// Chain wraps base so that the first middleware is outermost:
//
//	Chain(c, a, b) == a(b(c))
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	for i := len(middlewares) - 1; i >= 0; i-- {
		base = middlewares[i](base)
	}
	return base
}
