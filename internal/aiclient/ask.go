package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/fallback"
	"github.com/Gdockery/synerex-platform-sub002/internal/httpkit"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
)

// locationKeywords mark questions whose answer depends on where the
// project is.
var locationKeywords = []string{
	"utility", "utilities", "rate", "tariff", "weather", "local", "climate",
	"region", "location", "incentive", "rebate", "demand charge", "degree day",
	"hdd", "cdd", "temperature", "state code", "energy code",
}

// NeedsLocation reports whether question mentions a location-sensitive
// topic.
func NeedsLocation(question string) bool {
	q := strings.ToLower(question)
	for _, k := range locationKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

type chatRequest struct {
	Question            string         `json:"question"`
	ProjectContext      map[string]any `json:"project_context"`
	LocationData        *location.Data `json:"location_data,omitempty"`
	ConversationHistory []memory.Entry `json:"conversation_history"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

// AskAI sends question to the backend with projectContext (or, when nil,
// the project fields currently on the page). It never returns an error:
// failures come back as a Response with Success=false, a human-readable
// Response text and Err set to one of the package's failure classes.
//
// A successful exchange is appended to the conversation history.
func (c *Client) AskAI(ctx context.Context, question string, projectContext map[string]any) Response {
	if err := c.watcher.WaitInitialized(ctx); err != nil && !errors.Is(err, connwatch.ErrNotStarted) {
		if errors.Is(err, context.Canceled) {
			return c.failure(fmt.Errorf("%w: %w", ErrCanceled, err))
		}
		c.logger.Warn("ai client initialization wait aborted", "error", err)
		return unavailable(question)
	}

	if !c.watcher.IsReady() && !c.TestConnection(ctx) {
		c.logger.Info("ai backend unavailable, using fallback", "error", c.watcher.LastError())
		return unavailable(question)
	}

	if projectContext == nil {
		projectContext = map[string]any{}
		if c.extractor != nil {
			for k, v := range c.extractor.Project(ctx) {
				projectContext[k] = v
			}
		}
	}

	body := chatRequest{
		Question:            question,
		ProjectContext:      projectContext,
		ConversationHistory: []memory.Entry{},
	}
	if NeedsLocation(question) {
		if loc, ok := c.ProjectLocation(ctx); ok {
			body.LocationData = &loc
		} else {
			c.logger.Info("location-sensitive question without project location data")
		}
	}
	if c.history != nil {
		body.ConversationHistory = c.history.Recent(HistoryWindow)
	}

	out, err := c.chat(ctx, body)
	if err != nil {
		return c.failure(err)
	}

	if c.history != nil {
		if err := c.history.AppendExchange(question, out.Response); err != nil {
			c.logger.Warn("failed to persist conversation history", "error", err)
		}
	}

	ts := out.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return Response{
		Success:   true,
		Response:  out.Response,
		Model:     out.Model,
		Timestamp: ts,
	}
}

func (c *Client) chat(ctx context.Context, body chatRequest) (*chatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callerCanceled(ctx, err) {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
		}
		switch httpkit.Classify(err) {
		case httpkit.FailureTimeout:
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		case httpkit.FailureNetwork:
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		default:
			return nil, fmt.Errorf("request failed: %w", err)
		}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Code: resp.StatusCode,
			Body: httpkit.ReadErrorBody(resp.Body, 512),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if callerCanceled(ctx, err) {
			return nil, fmt.Errorf("%w: reading body: %w", ErrCanceled, err)
		}
		if httpkit.Classify(err) == httpkit.FailureTimeout {
			return nil, fmt.Errorf("%w: reading body: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformed)
	}
	return &out, nil
}

// callerCanceled reports whether err came from the caller cancelling
// ctx rather than from the chat deadline expiring.
func callerCanceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

// StatusError is a non-2xx reply from the chat endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai service returned HTTP %d: %s", e.Code, e.Body)
}

// failure turns a chat error into a Response with a message for its
// class.
func (c *Client) failure(err error) Response {
	r := Response{Model: ModelFallback, Err: err}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrCanceled):
		r.Error = "canceled"
		r.Response = "The question was cancelled before the AI service answered."
		c.logger.Debug("ai request canceled", "error", err)
		return r
	case errors.Is(err, ErrTimeout):
		r.Error = "timeout"
		r.Response = fmt.Sprintf("The AI service did not answer within %d seconds. "+
			"It may still be loading its model; please try again in a moment.", int(c.chatTimeout/time.Second))
	case errors.Is(err, ErrNetwork):
		r.Error = "network error"
		r.Response = "Could not connect to the AI service. Make sure the local AI backend is running, then try again."
	case errors.Is(err, ErrMalformed):
		r.Error = "malformed response"
		r.Response = "The AI service sent a response that could not be read. Please try again."
	case errors.As(err, &statusErr):
		r.Error = fmt.Sprintf("http %d", statusErr.Code)
		r.Response = fmt.Sprintf("The AI service reported an error (HTTP %d). Please try again later.", statusErr.Code)
	default:
		r.Error = "request failed"
		r.Response = "Something went wrong while asking the AI service. Please try again."
	}

	c.logger.Warn("ai request failed", "class", r.Error, "error", err)
	return r
}

func unavailable(question string) Response {
	return Response{
		Success:  false,
		Response: fallback.Canned(question),
		Model:    ModelFallback,
		Error:    UnavailableError,
		Err:      ErrUnavailable,
	}
}
