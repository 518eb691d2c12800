package core

import (
	"errors"
)

var (
	ErrPassCycle         = errors.New("render pass dependencies contain a cycle")
	ErrUnknownDependency = errors.New("render pass depends on a pass that was never registered")
	ErrDuplicatePass     = errors.New("render pass of this type is already registered")
	ErrFrameState        = errors.New("renderer frame called out of order")
	ErrUnknownProgram    = errors.New("no program registered under this name")
	ErrQueueFull         = errors.New("queue is full")
	ErrQueueEmpty        = errors.New("queue is empty")
	ErrUnknown           = errors.New("unknown")
)
