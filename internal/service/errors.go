package service

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrRecordNotFound = errors.New("build not found")
	ErrJobExists      = errors.New("job already exists")
	ErrNoSuccessful   = errors.New("no successful build to copy artifacts from")
)

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

type StepTimeoutError struct {
	Step    string
	Seconds int
}

func (e StepTimeoutError) Error() string {
	return fmt.Sprintf("step '%s' timed out in %d seconds", e.Step, e.Seconds)
}
