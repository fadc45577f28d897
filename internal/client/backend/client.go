package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const (
	commandPath      = "/command"
	createTicketPath = "/create_ticket"

	dataField   = "data:"
	endSentinel = "__END__"

	maxErrorBody = 64 * 1024
)

// StatusError is returned when the backend rejects a command before
// streaming starts.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command backend returned %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.Backend.BaseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// PrepareWorkspace asks the backend to clone or refresh the repository of a
// ticket. It blocks until the backend is done.
func (c *Client) PrepareWorkspace(ctx context.Context, ticketID, repoURL string) error {
	query := url.Values{}
	query.Set("ticket_id", ticketID)
	query.Set("repo_url", repoURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTicketPath+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type commandRequest struct {
	TicketID string  `json:"ticket_id"`
	Action   string  `json:"action"`
	Message  *string `json:"message,omitempty"`
}

// Execute returns the backend's reply to a command as a lazy sequence of
// text chunks. The request is sent when iteration starts; the sequence can be
// ranged over once. A failure is yielded as the last element. The response
// body is released however the loop ends.
func (c *Client) Execute(ctx context.Context, ticketID string, action model.CommandType, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := c.open(ctx, ticketID, action, message)
		if err != nil {
			yield("", err)
			return
		}
		defer body.Close() //nolint:errcheck // .

		lines := newLineReader(body)
		for {
			payload, err := lines.next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read command stream: %w", err))
				return
			}
			if strings.TrimSpace(payload) == endSentinel {
				return
			}
			if !yield(payload, nil) {
				return
			}
		}
	}
}

func (c *Client) open(ctx context.Context, ticketID string, action model.CommandType, message string) (io.ReadCloser, error) {
	reqBody := commandRequest{
		TicketID: ticketID,
		Action:   string(action),
	}
	if message != "" {
		reqBody.Message = &message
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+commandPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close() //nolint:errcheck // .
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	return resp.Body, nil
}

// lineReader yields the payload of every data line. bufio keeps partial
// lines until their terminator arrives, so transport read boundaries never
// split a payload.
type lineReader struct {
	reader *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (l *lineReader) next() (string, error) {
	for {
		line, err := l.reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")
		if payload, ok := strings.CutPrefix(line, dataField); ok {
			return strings.TrimPrefix(payload, " "), nil
		}
		// blank separators, comments and other fields carry no text

		if err != nil {
			return "", err
		}
	}
}
