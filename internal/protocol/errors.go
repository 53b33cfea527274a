package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected indicates an operation was attempted on a client
	// whose connection is down.
	ErrNotConnected = errors.New("protocol client not connected")

	// ErrConnectTimeout indicates a connect attempt exceeded its deadline.
	ErrConnectTimeout = errors.New("protocol connect timed out")
)

// RPCError is an error returned by the remote service for an RPC call.
type RPCError struct {
	Code    string
	Message string
}

// Error implements error.
func (e *RPCError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fault is the classified form of a protocol error. ShouldLogout is the
// contract that causes the session to be deleted from the registry and the
// UI to be told to re-authenticate.
type Fault struct {
	ErrorCode    string `json:"errorCode"`
	Message      string `json:"message"`
	ShouldLogout bool   `json:"shouldLogout"`
}

// fatalAuthCodes are the error codes that permanently invalidate a
// session's credentials. Anything else is treated as transient.
var fatalAuthCodes = map[string]bool{
	"AUTH_KEY_UNREGISTERED": true,
	"AUTH_KEY_DUPLICATED":   true,
	"AUTH_KEY_INVALID":      true,
	"SESSION_REVOKED":       true,
	"SESSION_EXPIRED":       true,
	"USER_DEACTIVATED":      true,
	"USER_DEACTIVATED_BAN":  true,
	"PHONE_NUMBER_BANNED":   true,
}

// Classify maps a protocol error onto a Fault. Fatal authentication faults
// (revoked session, banned account) come back with ShouldLogout set; every
// other error is transient and may be retried.
func Classify(err error) Fault {
	if err == nil {
		return Fault{}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return Fault{
			ErrorCode:    rpcErr.Code,
			Message:      rpcErr.Error(),
			ShouldLogout: fatalAuthCodes[rpcErr.Code],
		}
	}

	// Some transports flatten the RPC error into the message text.
	msg := err.Error()
	for code := range fatalAuthCodes {
		if strings.Contains(msg, code) {
			return Fault{ErrorCode: code, Message: msg, ShouldLogout: true}
		}
	}

	return Fault{ErrorCode: "TRANSIENT", Message: msg}
}
