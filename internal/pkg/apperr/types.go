package apperr

import "fmt"

const (
	invalidArgumentCode = "INVALID_ARGUMENT"
	notFoundCode        = "NOT_FOUND"
	internalErrorCode   = "INTERNAL_ERROR"
	rpcPoolCode         = "RPC_POOL_ERROR"
	blockMonitorCode    = "BLOCK_MONITOR_ERROR"
	pollerCode          = "POLLER_ERROR"
	blockPublishCode    = "BLOCK_PUBLISH_ERROR"
	blockStreamCode     = "BLOCKSTREAM_ERROR"
)

type messageCause struct {
	Msg   string
	Cause error
}

func (e *messageCause) Message() string   { return e.Msg }
func (e *messageCause) CauseError() error { return e.Cause }
func (e *messageCause) Unwrap() error     { return e.Cause }

func formatError(code, msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, msg)
}

type InvalidArgErr struct {
	messageCause
}

func NewInvalidArgErr(msg string, cause error) *InvalidArgErr {
	return &InvalidArgErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *InvalidArgErr) Error() string { return formatError(invalidArgumentCode, e.Msg, e.Cause) }
func (e *InvalidArgErr) Code() string  { return invalidArgumentCode }

type NotFoundErr struct {
	messageCause
}

func NewNotFoundErr(msg string, cause error) *NotFoundErr {
	return &NotFoundErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *NotFoundErr) Error() string { return formatError(notFoundCode, e.Msg, e.Cause) }
func (e *NotFoundErr) Code() string  { return notFoundCode }

type InternalErr struct {
	messageCause
}

func NewInternalErr(msg string, cause error) *InternalErr {
	return &InternalErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *InternalErr) Error() string { return formatError(internalErrorCode, e.Msg, e.Cause) }
func (e *InternalErr) Code() string  { return internalErrorCode }

// RpcPoolErr covers endpoint selection, rate budgeting, and self-healing failures.
type RpcPoolErr struct {
	messageCause
}

func NewRpcPoolErr(msg string, cause error) *RpcPoolErr {
	return &RpcPoolErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *RpcPoolErr) Error() string { return formatError(rpcPoolCode, e.Msg, e.Cause) }
func (e *RpcPoolErr) Code() string  { return rpcPoolCode }

// BlockMonitorErr covers subscription, polling, and reconnection failures.
type BlockMonitorErr struct {
	messageCause
}

func NewBlockMonitorErr(msg string, cause error) *BlockMonitorErr {
	return &BlockMonitorErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *BlockMonitorErr) Error() string { return formatError(blockMonitorCode, e.Msg, e.Cause) }
func (e *BlockMonitorErr) Code() string  { return blockMonitorCode }

// PollerErr covers adaptive poller configuration and input failures.
type PollerErr struct {
	messageCause
}

func NewPollerErr(msg string, cause error) *PollerErr {
	return &PollerErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *PollerErr) Error() string { return formatError(pollerCode, e.Msg, e.Cause) }
func (e *PollerErr) Code() string  { return pollerCode }

// BlockPublishErr covers Kafka sink failures.
type BlockPublishErr struct {
	messageCause
}

func NewBlockPublishErr(msg string, cause error) *BlockPublishErr {
	return &BlockPublishErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *BlockPublishErr) Error() string { return formatError(blockPublishCode, e.Msg, e.Cause) }
func (e *BlockPublishErr) Code() string  { return blockPublishCode }

// BlockStreamErr covers Redis stream sink failures.
type BlockStreamErr struct {
	messageCause
}

func NewBlockStreamErr(msg string, cause error) *BlockStreamErr {
	return &BlockStreamErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *BlockStreamErr) Error() string { return formatError(blockStreamCode, e.Msg, e.Cause) }
func (e *BlockStreamErr) Code() string  { return blockStreamCode }
