package broker

import "fmt"

// Error classifies brokerage and quote failures so callers can tell
// transient transport problems from bad inputs.
type Error struct {
	Kind    string // "network", "rate_limit", "provider", "bad_symbol", "missing_quote"
	Symbol  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Kind, e.Symbol, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewNetworkError(symbol, message string, cause error) *Error {
	return &Error{Kind: "network", Symbol: symbol, Message: message, Cause: cause}
}

func NewRateLimitError(symbol, message string) *Error {
	return &Error{Kind: "rate_limit", Symbol: symbol, Message: message}
}

func NewProviderError(symbol, message string, cause error) *Error {
	return &Error{Kind: "provider", Symbol: symbol, Message: message, Cause: cause}
}

func NewBadSymbolError(symbol, message string) *Error {
	return &Error{Kind: "bad_symbol", Symbol: symbol, Message: message}
}

func NewMissingQuoteError(symbol string) *Error {
	return &Error{Kind: "missing_quote", Symbol: symbol, Message: "symbol not in fetched quotes"}
}
