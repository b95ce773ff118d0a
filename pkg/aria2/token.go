package aria2

import "strings"

// qualifyMethod maps the short names the rest of the process uses to the
// fully-qualified wire form. system.* methods pass through untouched.
func qualifyMethod(method string) string {
	if strings.HasPrefix(method, "system.") {
		return method
	}
	return "aria2." + method
}

// injectToken inserts "token:<secret>" into the params of an outgoing call.
// Pure value transform so it can be unit-tested without any I/O; the input
// slices are not mutated.
//
// Rules:
//   - system.multicall: params[0] is the batch; each sub-call whose
//     methodName is not system.* gets the token prepended to its inner
//     params. system.* sub-calls are left untouched.
//   - other non-system methods: the token becomes params[0].
//   - top-level system.* methods: no token.
func injectToken(secret, method string, params []any) []any {
	if secret == "" {
		return params
	}
	token := "token:" + secret

	if method == "system.multicall" {
		if len(params) == 0 {
			return params
		}
		calls, ok := params[0].([]MulticallCall)
		if !ok {
			return params
		}
		rewritten := make([]MulticallCall, len(calls))
		for i, call := range calls {
			rewritten[i] = call
			if strings.HasPrefix(call.MethodName, "system.") {
				continue
			}
			inner := make([]any, 0, len(call.Params)+1)
			inner = append(inner, token)
			inner = append(inner, call.Params...)
			rewritten[i].Params = inner
		}
		out := make([]any, len(params))
		copy(out, params)
		out[0] = rewritten
		return out
	}

	if strings.HasPrefix(method, "system.") {
		return params
	}

	out := make([]any, 0, len(params)+1)
	out = append(out, token)
	out = append(out, params...)
	return out
}
