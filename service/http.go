package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPGetJSON performs a GET with a JSON body (as the M2M API expects) and an
// optional auth token
func HTTPGetJSON(ctx context.Context, client *http.Client, url string, body io.Reader, tokenHeader, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPGetJSON: %w", err)
	}
	return doJSON(client, req, tokenHeader, token)
}

// HTTPPostJSON performs a POST with a JSON body and an optional auth token
func HTTPPostJSON(ctx context.Context, client *http.Client, url string, body io.Reader, tokenHeader, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPPostJSON: %w", err)
	}
	return doJSON(client, req, tokenHeader, token)
}

func doJSON(client *http.Client, req *http.Request, tokenHeader, token string) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	if client == nil {
		client = &http.Client{}
	}
	return client.Do(req)
}

// ReadBody reads and closes the response body
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
