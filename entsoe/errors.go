package entsoe

// The price source classifies every failure into one of four categories.
// ConfigError is surfaced to the caller; the other three are converted into
// fallback prices and never escape FetchDayAheadPrices.

// ConfigError indicates a misconfiguration the operator must fix:
// an unknown bidding zone or a missing API token.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// AuthError indicates the API rejected the security token (HTTP 401).
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// UnavailableError indicates a transient upstream problem: timeout,
// connection error, HTTP 400 or a 5xx response.
type UnavailableError struct {
	Msg string
}

func (e *UnavailableError) Error() string { return e.Msg }

// ParseError indicates the XML response could not be interpreted.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }
