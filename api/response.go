package api

import (
	"time"

	"github.com/dfryer1193/goblog/blog/domain"
)

// Response is the envelope of every JSON response.
type Response struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
}

// OK wraps data in a successful envelope.
func OK(data any) Response {
	return Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	}
}

// Fail builds an error envelope carrying a caller-safe message.
func Fail(message string) Response {
	return Response{
		Success:   false,
		Error:     &message,
		Timestamp: now(),
	}
}

func now() string {
	return time.Now().UTC().Format(domain.TimestampLayout)
}
