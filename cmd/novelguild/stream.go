package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kazz187/novelguild/internal/stream"
)

type frame struct {
	Type stream.Type     `json:"type"`
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *client) streamChat(ctx context.Context, personaID, message, scenario, project string) error {
	return c.stream(ctx, "/api/stream/personas/"+url.PathEscape(personaID), &stream.ChatRequest{
		Message:     message,
		Scenario:    scenario,
		ProjectInfo: project,
	})
}

func (c *client) streamWorkflow(ctx context.Context, id, message string) error {
	return c.stream(ctx, "/api/stream/workflows/"+url.PathEscape(id), &stream.WorkflowRequest{Message: message})
}

func (c *client) stream(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-API-Key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var e errorBody
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil || e.Message == "" {
			return fmt.Errorf("stream request failed: %s", res.Status)
		}
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	return c.readEvents(bufio.NewScanner(res.Body))
}

var errStreamClosed = errors.New("stream closed before completion")

// readEvents prints frames until a terminal event arrives.
func (c *client) readEvents(sc *bufio.Scanner) error {
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return fmt.Errorf("invalid stream frame: %w", err)
		}
		if err := c.printEvent(&f); err != nil {
			return err
		}
		if f.Type.Terminal() {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errStreamClosed
}

func (c *client) printEvent(f *frame) error {
	switch f.Type {
	case stream.TypeChatStart:
		var d stream.ChatStart
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s\n\n", titleColor.Sprint(d.Role))
	case stream.TypePhaseStart:
		var d stream.PhaseStart
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s (%s)\n\n", titleColor.Sprint(d.PhaseName), d.Role)
	case stream.TypeContentChunk:
		var d stream.ContentChunk
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		fmt.Fprint(c.out, d.Content)
	case stream.TypeChatComplete:
		var d stream.ChatComplete
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		fmt.Fprintln(c.out, dimColor.Sprintf("\n\ntokens: %d", d.TokenUsage.TotalTokens))
	case stream.TypePhaseComplete:
		var d stream.PhaseComplete
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out)
		line := fmt.Sprintf("quality %d  next: %s", d.Quality, d.NextAction.Action)
		if d.NextPhase != "" {
			line += " -> " + string(d.NextPhase)
		}
		if d.CanContinue {
			fmt.Fprintln(c.out, okColor.Sprint(line), d.NextAction.Reason)
		} else {
			fmt.Fprintln(c.out, warnColor.Sprint(line), d.NextAction.Reason)
		}
		for _, ch := range d.NextAction.Choices {
			fmt.Fprintf(c.out, "  - %-14s %s\n", ch.Phase, dimColor.Sprint(ch.Description))
		}
		fmt.Fprintln(c.out, dimColor.Sprintf("progress %d%%", d.Progress.Completion))
	case stream.TypeWorkflowComplete:
		fmt.Fprintln(c.out, okColor.Sprint("\n\nworkflow completed"))
	case stream.TypeError:
		var d stream.ErrorData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", d.Code, d.Message)
	}
	return nil
}
