package errors

type codeInfo struct {
	retryable bool
	summary   string
	hint      string
}

var codes = map[ErrorCode]codeInfo{
	ErrTimeout: {true, "collaborator call exceeded its time limit",
		"raise classification.timeout or semantic.timeout in config.yaml"},
	ErrContextCancelled: {false, "cancelled by caller",
		"the meeting probably ended while classification was in flight"},
	ErrRateLimit: {true, "semantic classifier rate limit exceeded",
		"classify less often or check the provider quota"},
	ErrModelUnavailable: {true, "semantic classifier unavailable",
		"check semantic.address and that the classifier service is running"},
	ErrParseError: {false, "classifier reply was malformed",
		"run with --debug to see the reply; malformed opinions are ignored"},
	ErrEmptyContent: {false, "nothing to classify yet",
		"none; classification runs again once enough transcript exists"},
	ErrSinkUnavailable: {true, "report sink rejected a snapshot or report",
		"check the redis and postgres settings, then meetiq replay --debug"},
	ErrProcessingError: {false, "unclassified collaborator error",
		"run with --debug and check the logs"},
}

// Known reports whether c is one of the codes above.
func (c ErrorCode) Known() bool {
	_, ok := codes[c]
	return ok
}

// Retryable reports whether c is usually transient. Unknown codes are not.
func (c ErrorCode) Retryable() bool {
	return codes[c].retryable
}

// Summary is a one-line description of c.
func (c ErrorCode) Summary() string {
	if info, ok := codes[c]; ok {
		return info.summary
	}
	return "unknown error"
}

// Hint tells the operator what to look at.
func (c ErrorCode) Hint() string {
	if info, ok := codes[c]; ok {
		return info.hint
	}
	return codes[ErrProcessingError].hint
}

// IsRetryable is c.Retryable.
func IsRetryable(c ErrorCode) bool {
	return c.Retryable()
}
