package httpclient

import "context"

// Response is the part of an HTTP response source adapters read.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client performs GET requests for source adapters. Tests swap in canned responses.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
