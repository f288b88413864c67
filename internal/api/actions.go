package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	markReadPath     = "/notify/read/%d"
	markAllReadPath  = "/notify/read_all"
	markSeenPath     = "/notify/seen"
	reactPath        = "/tickets/%d/comments/%d/react"
	reactionsPath    = "/tickets/%d/comments/%d/reactions"
	csrfFormField    = "csrf_token"
	csrfHeader       = "X-CSRFToken"
	csrfMetaSelector = `meta[name="csrf-token"]`
)

// MarkRead marks one notification as read.
func (c *HTTPClient) MarkRead(ctx context.Context, id int64) error {
	_, err := c.postForm(ctx, fmt.Sprintf(markReadPath, id), url.Values{})
	return err
}

// MarkAllRead marks every notification of the session user as read.
func (c *HTTPClient) MarkAllRead(ctx context.Context) error {
	_, err := c.postForm(ctx, markAllReadPath, url.Values{})
	return err
}

// MarkSeen marks delivered notifications as seen without clearing the
// unread count.
func (c *HTTPClient) MarkSeen(ctx context.Context) error {
	_, err := c.postForm(ctx, markSeenPath, url.Values{})
	return err
}

// React toggles emoji on a ticket comment and returns the updated counts.
func (c *HTTPClient) React(ctx context.Context, ticketID, commentID int64, emoji string) (map[string]int, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("emoji is required")
	}
	ar, err := c.postForm(ctx, fmt.Sprintf(reactPath, ticketID, commentID), url.Values{"emoji": {emoji}})
	if err != nil {
		return nil, err
	}
	return ar.Counts, nil
}

// Reactions returns the emoji counts of a ticket comment.
func (c *HTTPClient) Reactions(ctx context.Context, ticketID, commentID int64) (map[string]int, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf(reactionsPath, ticketID, commentID), nil, nil)
	if err != nil {
		return nil, err
	}
	ar, err := decodeAction(body)
	if err != nil {
		return nil, err
	}
	return ar.Counts, nil
}

// CSRFToken returns the token sent with form posts. Unless configured, it
// is scraped once from the csrf-token meta tag of the CSRF page.
func (c *HTTPClient) CSRFToken(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()

	if c.csrf != "" {
		return c.csrf, nil
	}

	target, err := c.Resolve(c.cfg.CSRFPage)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching csrf page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching csrf page: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing csrf page: %w", err)
	}
	token, _ := doc.Find(csrfMetaSelector).First().Attr("content")
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrCSRFMissing
	}

	c.logger.Debug("csrf token loaded", zap.String("page", target))
	c.csrf = token
	return token, nil
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form url.Values) (*actionResponse, error) {
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return nil, err
	}
	form.Set(csrfFormField, token)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set(csrfHeader, token)

	body, err := c.do(ctx, http.MethodPost, path, []byte(form.Encode()), header)
	if err != nil {
		return nil, err
	}
	return decodeAction(body)
}

// do sends a request with retries on rate limiting and server errors,
// backing off exponentially between attempts.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("requesting", zap.String("method", method), zap.String("url", target))

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = checkResponse(resp)
			continue
		}

		// 400 answers carry {"ok": false, "error": ...}.
		if resp.StatusCode == http.StatusBadRequest {
			if _, err := decodeAction(body); err != nil {
				return nil, err
			}
		}

		if err := checkResponse(resp); err != nil {
			return nil, err
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ParseID parses a positive numeric id from a command-line argument.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
