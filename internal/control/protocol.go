// Package control is the consumer daemon's local control channel: length-prefixed JSON
// frames over a unix socket.
package control

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const ProtocolVersion = 1

// SocketName is the socket file inside the consumer's state directory.
const SocketName = "consumer.sock"

const maxFrame = 8 * 1024 * 1024

// Commands understood by the consumer.
const (
	CmdPing     = "ping"
	CmdScan     = "scan"
	CmdStatus   = "status"
	CmdShutdown = "shutdown"
)

const (
	CodeProtocolMismatch = "PROTOCOL_MISMATCH"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodeInternal         = "INTERNAL_ERROR"
	CodeBusy             = "BUSY"
	CodeShuttingDown     = "SHUTTING_DOWN"
)

type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorDetail) Error() string {
	return e.Code + ": " + e.Message
}

func NewRequest(command string, params any) (*Request, error) {
	req := &Request{ProtocolVersion: ProtocolVersion, Command: command}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// OK wraps data in a successful response. A value that cannot be encoded becomes an
// internal error.
func OK(data any) *Response {
	if data == nil {
		return &Response{OK: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail(CodeInternal, fmt.Sprintf("marshal response: %v", err))
	}
	return &Response{OK: true, Data: raw}
}

func Fail(code, message string) *Response {
	return &Response{Error: &ErrorDetail{Code: code, Message: message}}
}

// Decode unmarshals the response payload into v, or returns the remote error.
func (r *Response) Decode(v any) error {
	if !r.OK {
		if r.Error != nil {
			return r.Error
		}
		return fmt.Errorf("request failed without detail")
	}
	if v == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// WriteFrame writes [4-byte big-endian length][JSON].
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(data) > maxFrame {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader, v any) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	if n > maxFrame {
		return fmt.Errorf("frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
