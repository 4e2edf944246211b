// internal/writer/builder_test.go
package writer

import (
	"testing"

	cfg "github.com/tamzrod/dmc-bridge/internal/config"
)

func TestBuildPlan_Disabled(t *testing.T) {
	_, enabled, err := BuildPlan(&cfg.Config{Controller: cfg.ControllerConfig{Name: "stage"}})
	if err != nil || enabled {
		t.Fatalf("expected disabled plan, got enabled=%v err=%v", enabled, err)
	}
}

func TestBuildPlan_Modbus(t *testing.T) {
	c := &cfg.Config{
		Controller: cfg.ControllerConfig{Name: "stage"},
		Publish: cfg.PublishConfig{
			Modbus: &cfg.ModbusConfig{
				Endpoint:      "127.0.0.1:502",
				UnitID:        3,
				StatusAddress: 10,
				AxisAddress:   200,
				TimeoutMs:     250,
			},
		},
	}

	plan, enabled, err := BuildPlan(c)
	if err != nil || !enabled {
		t.Fatalf("BuildPlan() enabled=%v err=%v", enabled, err)
	}
	if plan.Controller != "stage" || plan.UnitID != 3 || plan.StatusAddress != 10 || plan.AxisAddress != 200 {
		t.Fatalf("plan mismatch: %+v", plan)
	}
	if plan.Timeout.Milliseconds() != 250 {
		t.Fatalf("timeout = %v", plan.Timeout)
	}
}
