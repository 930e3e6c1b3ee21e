// Package drawing is the typed surface callers use to draw into and query the
// editor. A Client scopes every drawing and query call to its target file.
package drawing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lukebridge/internal/bridge"
	"lukebridge/internal/domain"
	"lukebridge/internal/journal"
	"lukebridge/internal/metrics"
)

// ErrNoTarget is returned by drawing and query calls made before a target file
// is known. No network I/O happens in that case.
var ErrNoTarget = errors.New("no target file set; call set_file or get_active_file first")

// Sender runs one request/response cycle against the editor.
type Sender interface {
	Send(ctx context.Context, cmd domain.Command) (domain.Response, error)
}

// Recorder receives one entry per round trip.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Sender   Sender
	Recorder Recorder // optional
	Logger   *slog.Logger
}

// Client is the drawing façade. Its target is per instance; two clients over
// two sessions never share state.
type Client struct {
	sender   Sender
	recorder Recorder
	logger   *slog.Logger

	mu     sync.RWMutex
	target string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{sender: cfg.Sender, recorder: cfg.Recorder, logger: cfg.Logger}
}

// Target returns the current target file ("" when unset).
func (c *Client) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// ClearTarget forgets the target file.
func (c *Client) ClearTarget() {
	c.setTarget("")
}

func (c *Client) setTarget(path string) {
	c.mu.Lock()
	c.target = path
	c.mu.Unlock()
}

func (c *Client) requireTarget() (string, error) {
	target := c.Target()
	if target == "" {
		return "", ErrNoTarget
	}
	return target, nil
}

// GetActiveFile asks the editor for its focused document. A non-empty string
// file_path becomes the client's target; the raw result is returned as sent
// even when file_path is missing or not a string.
func (c *Client) GetActiveFile(ctx context.Context) (domain.ActiveFile, error) {
	result, err := c.call(ctx, domain.GetActiveFile{})
	if err != nil {
		return domain.ActiveFile{}, err
	}

	active := domain.ActiveFile{Raw: result}
	if isObject(result) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(result, &fields); err == nil {
			var path string
			if json.Unmarshal(fields["file_path"], &path) == nil {
				active.FilePath = path
			}
		}
	}
	if active.FilePath != "" {
		c.setTarget(active.FilePath)
	}
	return active, nil
}

// SetFile points the client at path and asks the editor to open it. The target
// is updated before the request is sent and stays set even when the editor
// rejects the request or cannot be reached.
func (c *Client) SetFile(ctx context.Context, path string) (json.RawMessage, error) {
	if path == "" {
		return nil, errors.New("set_file: file path is required")
	}
	c.setTarget(path)
	return c.call(ctx, domain.SetFile{FilePath: path})
}

// DrawCircle adds a circle to the target file and returns the element the editor
// reports. An acknowledgement without an element body echoes the submitted circle.
func (c *Client) DrawCircle(ctx context.Context, circle domain.Circle) (domain.Element, error) {
	target, err := c.requireTarget()
	if err != nil {
		return domain.Element{}, err
	}
	if circle.Color == "" {
		circle.Color = domain.DefaultColor
	}

	result, err := c.call(ctx, domain.DrawCircle{FilePath: target, Circle: circle})
	if err != nil {
		return domain.Element{}, err
	}
	return echoedElement(result, domain.CircleElement(circle))
}

// DrawRectangle adds a rectangle to the target file. See DrawCircle.
func (c *Client) DrawRectangle(ctx context.Context, rect domain.Rectangle) (domain.Element, error) {
	target, err := c.requireTarget()
	if err != nil {
		return domain.Element{}, err
	}
	if rect.Color == "" {
		rect.Color = domain.DefaultColor
	}

	result, err := c.call(ctx, domain.DrawRectangle{FilePath: target, Rectangle: rect})
	if err != nil {
		return domain.Element{}, err
	}
	return echoedElement(result, domain.RectangleElement(rect))
}

// GetElements lists the target file's elements. A result that is not an array
// yields an empty list.
func (c *Client) GetElements(ctx context.Context) ([]domain.Element, error) {
	target, err := c.requireTarget()
	if err != nil {
		return nil, err
	}

	result, err := c.call(ctx, domain.GetElements{FilePath: target})
	if err != nil {
		return nil, err
	}

	elements := []domain.Element{}
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return elements, nil
	}
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, fmt.Errorf("%w: decode elements: %v", bridge.ErrTransport, err)
	}
	return elements, nil
}

// GetElementByID fetches one element. An unknown id is reported with found=false,
// never as an error.
func (c *Client) GetElementByID(ctx context.Context, id string) (el domain.Element, found bool, err error) {
	target, err := c.requireTarget()
	if err != nil {
		return domain.Element{}, false, err
	}

	result, err := c.call(ctx, domain.GetElementByID{FilePath: target, ID: id})
	if err != nil {
		return domain.Element{}, false, err
	}
	if !isObject(result) {
		return domain.Element{}, false, nil
	}
	if err := json.Unmarshal(result, &el); err != nil {
		return domain.Element{}, false, fmt.Errorf("%w: decode element: %v", bridge.ErrTransport, err)
	}
	if el.ID == "" {
		return domain.Element{}, false, nil
	}
	return el, true, nil
}

// call sends cmd and turns a rejected reply into a *bridge.RemoteError.
func (c *Client) call(ctx context.Context, cmd domain.Command) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.sender.Send(ctx, cmd)
	if err == nil && !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Unknown error"
		}
		metrics.RemoteRejections.Inc()
		err = &bridge.RemoteError{Command: cmd.Type(), Message: msg}
	}
	c.record(ctx, cmd, err, time.Since(start))

	if err != nil {
		c.logger.Debug("editor command failed", "command", cmd.Type(), "err", err)
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) record(ctx context.Context, cmd domain.Command, err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	entry := journal.Entry{
		Command:   string(cmd.Type()),
		FilePath:  domain.TargetOf(cmd),
		ElementID: domain.ElementIDOf(cmd),
		Success:   err == nil,
		Duration:  elapsed,
	}
	if ider, ok := c.sender.(interface{ ID() string }); ok {
		entry.SessionID = ider.ID()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if recErr := c.recorder.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		c.logger.Warn("journal write failed", "command", cmd.Type(), "err", recErr)
	}
}

// echoedElement decodes the editor's element, falling back to the submitted
// shape when the reply carries none.
func echoedElement(result json.RawMessage, submitted domain.Element) (domain.Element, error) {
	if !isObject(result) {
		return submitted, nil
	}
	var el domain.Element
	if err := json.Unmarshal(result, &el); err != nil {
		return domain.Element{}, fmt.Errorf("%w: decode element: %v", bridge.ErrTransport, err)
	}
	if el.ID == "" {
		return submitted, nil
	}
	return el, nil
}

// isObject reports whether raw holds a non-empty JSON object.
func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 2 && trimmed[0] == '{'
}
