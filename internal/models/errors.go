package models

// ErrorKind classifies failures that are shown to the user next to the form
// that caused them.
type ErrorKind string

const (
	InvalidShares      ErrorKind = "InvalidShares"
	UnknownTicker      ErrorKind = "UnknownTicker"
	InsufficientFunds  ErrorKind = "InsufficientFunds"
	InsufficientShares ErrorKind = "InsufficientShares"
	MissingCredentials ErrorKind = "MissingCredentials"
	InvalidCredentials ErrorKind = "InvalidCredentials"
	UsernameTaken      ErrorKind = "UsernameTaken"
	WeakPassword       ErrorKind = "WeakPassword"
	InvalidUsername    ErrorKind = "InvalidUsername"
)

// UserError is a validation or business-rule failure with a displayable message.
// Two UserErrors match under errors.Is when their kinds are equal, so the
// sentinels below can be compared against errors carrying a different message.
type UserError struct {
	Kind    ErrorKind
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Kind == e.Kind
}

// NewUserError returns a UserError of the given kind with a custom message.
func NewUserError(kind ErrorKind, message string) *UserError {
	return &UserError{Kind: kind, Message: message}
}

var (
	ErrInvalidShares      = NewUserError(InvalidShares, "number of shares must be an integer")
	ErrUnknownTicker      = NewUserError(UnknownTicker, "stock not found")
	ErrInsufficientFunds  = NewUserError(InsufficientFunds, "you don't have enough cash")
	ErrInsufficientShares = NewUserError(InsufficientShares, "you can't sell that stock")
	ErrMissingCredentials = NewUserError(MissingCredentials, "must provide username and password")
	ErrInvalidCredentials = NewUserError(InvalidCredentials, "invalid username and/or password")
	ErrUsernameTaken      = NewUserError(UsernameTaken, "username already in use")
	ErrWeakPassword       = NewUserError(WeakPassword, "password doesn't meet requirements")
	ErrInvalidUsername    = NewUserError(InvalidUsername, "username too long (max 80 characters)")
)
