package reqengine

import "log/slog"

// HookContext is the shared context passed to every hook invocation for
// a single attempt (spec §6).
type HookContext struct {
	Method    Method
	URL       string
	Attempt   int
	RequestID string
}

// Hooks is the observer table a caller merges via Client.Use (spec §6).
// Hooks never influence state, retry, or response — every invocation is
// isolated by HookRunner so a misbehaving callback cannot change the
// request's outcome (spec §4.9, testable property #8).
type Hooks struct {
	OnBeforeRequest func(ctx HookContext)
	OnAfterResponse func(ctx HookContext, status int, latencyMs int64)
	OnRetry         func(ctx HookContext, err error)
	OnCircuitOpen   func(ctx HookContext)
	OnError         func(ctx HookContext, err error)
	OnCancel        func(ctx HookContext)
}

// merge overlays non-nil fields of other onto h, used by Client.Use
// (later use() calls override earlier keys).
func (h Hooks) merge(other Hooks) Hooks {
	if other.OnBeforeRequest != nil {
		h.OnBeforeRequest = other.OnBeforeRequest
	}
	if other.OnAfterResponse != nil {
		h.OnAfterResponse = other.OnAfterResponse
	}
	if other.OnRetry != nil {
		h.OnRetry = other.OnRetry
	}
	if other.OnCircuitOpen != nil {
		h.OnCircuitOpen = other.OnCircuitOpen
	}
	if other.OnError != nil {
		h.OnError = other.OnError
	}
	if other.OnCancel != nil {
		h.OnCancel = other.OnCancel
	}
	return h
}

// HookRunner fires hooks wrapped in a failure-swallowing shell (spec
// §4.9): synchronous panics and the hooks themselves are treated as
// untrusted user code.
type HookRunner struct {
	logger *slog.Logger
	hooks  Hooks
}

func newHookRunner(logger *slog.Logger) *HookRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookRunner{logger: logger}
}

func (r *HookRunner) use(h Hooks) {
	r.hooks = r.hooks.merge(h)
}

func (r *HookRunner) isolate(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("hook panicked, suppressed", "hook", name, "recovered", rec)
		}
	}()
	fn()
}

func (r *HookRunner) beforeRequest(ctx HookContext) {
	if r.hooks.OnBeforeRequest == nil {
		return
	}
	r.isolate("onBeforeRequest", func() { r.hooks.OnBeforeRequest(ctx) })
}

func (r *HookRunner) afterResponse(ctx HookContext, status int, latencyMs int64) {
	if r.hooks.OnAfterResponse == nil {
		return
	}
	r.isolate("onAfterResponse", func() { r.hooks.OnAfterResponse(ctx, status, latencyMs) })
}

func (r *HookRunner) retry(ctx HookContext, err error) {
	if r.hooks.OnRetry == nil {
		return
	}
	r.isolate("onRetry", func() { r.hooks.OnRetry(ctx, err) })
}

func (r *HookRunner) circuitOpen(ctx HookContext) {
	if r.hooks.OnCircuitOpen == nil {
		return
	}
	r.isolate("onCircuitOpen", func() { r.hooks.OnCircuitOpen(ctx) })
}

func (r *HookRunner) onError(ctx HookContext, err error) {
	if r.hooks.OnError == nil {
		return
	}
	r.isolate("onError", func() { r.hooks.OnError(ctx, err) })
}

func (r *HookRunner) cancel(ctx HookContext) {
	if r.hooks.OnCancel == nil {
		return
	}
	r.isolate("onCancel", func() { r.hooks.OnCancel(ctx) })
}
