// Package codec maps bridge commands and responses to and from their JSON
// wire form. Each request and each response is one complete JSON object.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"lukebridge/internal/domain"
)

// envelope is the wire shape shared by every command.
type envelope struct {
	Type     domain.CommandType `json:"type"`
	FilePath string             `json:"file_path,omitempty"`
	Data     json.RawMessage    `json:"data,omitempty"`
}

type idPayload struct {
	ID string `json:"id"`
}

// EncodeCommand serializes cmd into a single JSON object.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	env := envelope{}
	var data any

	switch c := cmd.(type) {
	case domain.GetActiveFile:
		env.Type = domain.CmdGetActiveFile
	case domain.SetFile:
		env.Type = domain.CmdSetFile
		env.FilePath = c.FilePath
	case domain.DrawCircle:
		env.Type = domain.CmdDrawCircle
		env.FilePath = c.FilePath
		circle := c.Circle
		if circle.Color == "" {
			circle.Color = domain.DefaultColor
		}
		data = circle
	case domain.DrawRectangle:
		env.Type = domain.CmdDrawRectangle
		env.FilePath = c.FilePath
		rect := c.Rectangle
		if rect.Color == "" {
			rect.Color = domain.DefaultColor
		}
		data = rect
	case domain.GetElements:
		env.Type = domain.CmdGetElements
		env.FilePath = c.FilePath
	case domain.GetElementByID:
		env.Type = domain.CmdGetElementByID
		env.FilePath = c.FilePath
		data = idPayload{ID: c.ID}
	default:
		return nil, fmt.Errorf("encode command: unsupported command %T", cmd)
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", env.Type, err)
		}
		env.Data = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return out, nil
}

// DecodeCommand parses one wire message into its typed variant. Required fields
// are checked per variant and unknown types are rejected.
func DecodeCommand(b []byte) (domain.Command, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	needFile := func() error {
		if env.FilePath == "" {
			return fmt.Errorf("decode %s: file_path is required", env.Type)
		}
		return nil
	}
	needData := func(v any) error {
		if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
			return fmt.Errorf("decode %s: data is required", env.Type)
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("decode %s data: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case domain.CmdGetActiveFile:
		return domain.GetActiveFile{}, nil

	case domain.CmdSetFile:
		if err := needFile(); err != nil {
			return nil, err
		}
		return domain.SetFile{FilePath: env.FilePath}, nil

	case domain.CmdDrawCircle:
		if err := needFile(); err != nil {
			return nil, err
		}
		var c domain.Circle
		if err := needData(&c); err != nil {
			return nil, err
		}
		if c.ID == "" {
			return nil, fmt.Errorf("decode %s: data.id is required", env.Type)
		}
		if c.Color == "" {
			c.Color = domain.DefaultColor
		}
		return domain.DrawCircle{FilePath: env.FilePath, Circle: c}, nil

	case domain.CmdDrawRectangle:
		if err := needFile(); err != nil {
			return nil, err
		}
		var r domain.Rectangle
		if err := needData(&r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			return nil, fmt.Errorf("decode %s: data.id is required", env.Type)
		}
		if r.Color == "" {
			r.Color = domain.DefaultColor
		}
		return domain.DrawRectangle{FilePath: env.FilePath, Rectangle: r}, nil

	case domain.CmdGetElements:
		if err := needFile(); err != nil {
			return nil, err
		}
		return domain.GetElements{FilePath: env.FilePath}, nil

	case domain.CmdGetElementByID:
		if err := needFile(); err != nil {
			return nil, err
		}
		var p idPayload
		if err := needData(&p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s: data.id is required", env.Type)
		}
		return domain.GetElementByID{FilePath: env.FilePath, ID: p.ID}, nil

	case "":
		return nil, errors.New("decode command: missing type")
	default:
		return nil, fmt.Errorf("decode command: unknown type %q", env.Type)
	}
}

// EncodeResponse serializes a response envelope.
func EncodeResponse(resp domain.Response) ([]byte, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// DecodeResponse parses a response envelope. Anything that is not a JSON
// object is rejected.
func DecodeResponse(b []byte) (domain.Response, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Response{}, errors.New("decode response: not a JSON object")
	}
	var resp domain.Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return domain.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Result marshals v for use as a Response result.
func Result(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}
