// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/dmc-bridge/internal/config"
	wmodbus "github.com/tamzrod/dmc-bridge/internal/writer/modbus"
)

// BuildPlan converts the publish config into a Writer Plan.
// Assumes config has already passed validation.
// The bool is false when Modbus publication is not configured.
func BuildPlan(c *cfg.Config) (Plan, bool, error) {
	m := c.Publish.Modbus
	if m == nil {
		return Plan{}, false, nil
	}
	if c.Controller.Name == "" {
		return Plan{}, false, errors.New("writer: controller.name required")
	}

	return Plan{
		Controller:    c.Controller.Name,
		Endpoint:      m.Endpoint,
		UnitID:        m.UnitID,
		Timeout:       time.Duration(m.TimeoutMs) * time.Millisecond,
		StatusAddress: m.StatusAddress,
		AxisAddress:   m.AxisAddress,
	}, true, nil
}

// BuildEndpointClient opens the plan's endpoint.
func BuildEndpointClient(plan Plan) (*wmodbus.RegisterClient, func() error, error) {
	c, err := wmodbus.Dial(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  plan.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}
