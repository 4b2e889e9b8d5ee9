package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrScanTimedOut marks work still pending when the scan deadline elapsed.
var ErrScanTimedOut = errors.New("scan deadline elapsed before completion")

// NetworkError is a transport failure reaching the chain node or price feed.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is a log whose topics or data do not match the Approval layout.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ContractCallError is a token read that reverted, returned malformed data or timed out.
type ContractCallError struct {
	Op  string
	Err error
}

func (e *ContractCallError) Error() string {
	return fmt.Sprintf("contract call error: %s: %v", e.Op, e.Err)
}

func (e *ContractCallError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is, or wraps, a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// FailureKind maps an error to the marker kind reported in results.
func FailureKind(err error) string {
	var (
		netErr      *NetworkError
		decodeErr   *DecodeError
		contractErr *ContractCallError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrScanTimedOut):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &contractErr):
		return KindContractCall
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}
