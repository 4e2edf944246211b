// internal/api/requests.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tamzrod/dmc-bridge/internal/controller"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

// Target is the part of the controller the API may drive.
type Target interface {
	EnablePower() error
	DisablePower() error
	Hold() error

	ServoJP(pos []float64) error
	ServoJR(pos []float64) error
	ServoJV(vel []float64) error
	SetSpeed(v []float64) error
	SetAccel(v []float64) error
	SetDecel(v []float64) error

	Home(mask []bool) error
	UnHome(mask []bool) error
	FindEdge(mask []bool) error
	FindIndex(mask []bool) error
	SetHomePosition(pos []float64) error

	AbortProgram() error
	AbortMotion() error
	SendCommandReply(cmd string) (string, error)
}

// Dispatcher runs fn on the control cycle goroutine.
type Dispatcher interface {
	Do(ctx context.Context, fn func(Target) error) error
}

// ControllerDispatcher submits requests through controller.Do.
type ControllerDispatcher struct {
	C *controller.Controller
}

func (d ControllerDispatcher) Do(ctx context.Context, fn func(Target) error) error {
	return d.C.Do(ctx, func(c *controller.Controller) error { return fn(c) })
}

// ---- wire types ----

type request struct {
	ID     any           `json:"id,omitempty"`
	Method string        `json:"method"`
	Params requestParams `json:"params"`
}

type requestParams struct {
	Mask    []bool    `json:"mask,omitempty"`
	Values  []float64 `json:"values,omitempty"`
	Command string    `json:"command,omitempty"`
}

type response struct {
	ID     any    `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type notification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type messageParams struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type reportParams struct {
	Controller   string             `json:"controller"`
	At           time.Time          `json:"at"`
	Error        string             `json:"error,omitempty"`
	SampleNumber uint16             `json:"sample_number"`
	ErrorCode    uint8              `json:"error_code"`
	State        status.Snapshot    `json:"state"`
	Axes         []status.AxisState `json:"axes,omitempty"`
	Analog       [][]float64        `json:"analog,omitempty"`
}

func newReportParams(rep status.Report) reportParams {
	p := reportParams{
		Controller:   rep.Controller,
		At:           rep.At,
		SampleNumber: rep.SampleNumber,
		ErrorCode:    rep.ErrorCode,
		State:        rep.State,
		Axes:         rep.Axes,
		Analog:       rep.Analog,
	}
	if rep.Err != nil {
		p.Error = rep.Err.Error()
	}
	return p
}

// ---- dispatch ----

// handleRequest decodes one request and runs it on the cycle.
func (s *Server) handleRequest(ctx context.Context, data []byte) response {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return response{Error: fmt.Sprintf("parse error: %v", err)}
	}

	op, err := operation(req)
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}

	var result any
	err = s.cfg.Target.Do(ctx, func(t Target) error {
		r, err := op(t)
		result = r
		return err
	})
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}
	if result == nil {
		result = "ok"
	}
	return response{ID: req.ID, Result: result}
}

func operation(req request) (func(Target) (any, error), error) {
	p := req.Params

	noResult := func(fn func(Target) error) func(Target) (any, error) {
		return func(t Target) (any, error) { return nil, fn(t) }
	}
	values := func(fn func(Target, []float64) error) func(Target) (any, error) {
		return noResult(func(t Target) error { return fn(t, p.Values) })
	}
	mask := func(fn func(Target, []bool) error) func(Target) (any, error) {
		return noResult(func(t Target) error { return fn(t, p.Mask) })
	}

	switch req.Method {
	case "enable_power":
		return noResult(Target.EnablePower), nil
	case "disable_power":
		return noResult(Target.DisablePower), nil
	case "hold":
		return noResult(Target.Hold), nil
	case "abort_program":
		return noResult(Target.AbortProgram), nil
	case "abort_motion":
		return noResult(Target.AbortMotion), nil

	case "servo_jp":
		return values(Target.ServoJP), nil
	case "servo_jr":
		return values(Target.ServoJR), nil
	case "servo_jv":
		return values(Target.ServoJV), nil
	case "set_speed":
		return values(Target.SetSpeed), nil
	case "set_accel":
		return values(Target.SetAccel), nil
	case "set_decel":
		return values(Target.SetDecel), nil
	case "set_home_position":
		return values(Target.SetHomePosition), nil

	case "home":
		return mask(Target.Home), nil
	case "unhome":
		return mask(Target.UnHome), nil
	case "find_edge":
		return mask(Target.FindEdge), nil
	case "find_index":
		return mask(Target.FindIndex), nil

	case "command":
		if p.Command == "" {
			return nil, fmt.Errorf("command: params.command required")
		}
		return func(t Target) (any, error) { return t.SendCommandReply(p.Command) }, nil
	}

	return nil, fmt.Errorf("unknown method %q", req.Method)
}
