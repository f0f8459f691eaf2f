package app

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrMessageEmpty     = errors.New("message content is empty")
	ErrLLMConfig        = errors.New("llm config is invalid")
	ErrNoCachedInsights = errors.New("no cached insight bundle for session")
)
