package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haatos/runkeeper/internal/views"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	// stream has no timeout; long-lived responses are bounded by their context.
	stream *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

func buildPath(job string, number int64, sub ...string) string {
	return views.BuildPath(job, number, sub...)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
			body.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: body.Message}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	resp, err := c.send(ctx, c.http, method, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Jobs(ctx context.Context) ([]views.JobView, error) {
	jobs := make([]views.JobView, 0)
	err := c.do(ctx, http.MethodGet, "/jobs", &jobs)
	return jobs, err
}

func (c *Client) Trigger(ctx context.Context, job string) (*views.BuildView, error) {
	bv := new(views.BuildView)
	err := c.do(ctx, http.MethodPost, views.JobPath(job)+"/builds", bv)
	return bv, err
}

func (c *Client) Build(ctx context.Context, job string, number int64) (*views.RunView, error) {
	rv := new(views.RunView)
	err := c.do(ctx, http.MethodGet, buildPath(job, number), rv)
	return rv, err
}

func (c *Client) Keep(ctx context.Context, job string, number int64) (*views.BuildView, error) {
	bv := new(views.BuildView)
	err := c.do(ctx, http.MethodPost, buildPath(job, number, "keep"), bv)
	return bv, err
}

func (c *Client) Unkeep(ctx context.Context, job string, number int64) (*views.BuildView, error) {
	bv := new(views.BuildView)
	err := c.do(ctx, http.MethodDelete, buildPath(job, number, "keep"), bv)
	return bv, err
}

func (c *Client) Interrupt(ctx context.Context, job string, number int64) (*views.BuildView, error) {
	bv := new(views.BuildView)
	err := c.do(ctx, http.MethodPost, buildPath(job, number, "interrupt"), bv)
	return bv, err
}

func (c *Client) Delete(ctx context.Context, job string, number int64) error {
	return c.do(ctx, http.MethodDelete, buildPath(job, number), nil)
}

// Wait polls the build until it completes or ctx is done.
func (c *Client) Wait(ctx context.Context, job string, number int64, interval time.Duration) (*views.RunView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rv, err := c.Build(ctx, job, number)
		if err != nil {
			return nil, err
		}
		if rv.Status == "completed" {
			return rv, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}


// Console copies the console output written so far to w.
func (c *Client) Console(ctx context.Context, job string, number int64, w io.Writer) error {
	resp, err := c.send(ctx, c.stream, http.MethodGet, buildPath(job, number, "console"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Follow streams console output to w until the build completes and returns
// the build's result.
func (c *Client) Follow(ctx context.Context, job string, number int64, w io.Writer) (string, error) {
	resp, err := c.send(ctx, c.stream, http.MethodGet, buildPath(job, number, "console", "sse"))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var event string
	data := make([]string, 0)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			name, payload := event, strings.Join(data, "\n")
			event, data = "", data[:0]
			if payload == "" {
				continue
			}
			if name == "end" {
				return payload, nil
			}
			if _, err := io.WriteString(w, payload); err != nil {
				return "", err
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("console stream ended before the build completed")
}
