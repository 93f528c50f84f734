package service

import "errors"

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrStorage        = errors.New("storage failure")
	ErrDelivery       = errors.New("delivery failure")
	ErrUnknownTool    = errors.New("unknown tool")
	ErrInvalidInput   = errors.New("invalid input")
)
