// internal/config/config.go
package config

type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Axes       []AxisConfig     `yaml:"axes"`
	Analog     []AnalogConfig   `yaml:"analog_inputs"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ---- CONTROLLER ----

type ControllerConfig struct {
	Name      string       `yaml:"name"`
	Transport string       `yaml:"transport"` // tcp | serial
	Endpoint  string       `yaml:"endpoint"`  // tcp only
	Serial    SerialConfig `yaml:"serial"`    // serial only
	TimeoutMs int          `yaml:"timeout_ms"`

	// Model is a model ID; 0 means auto-detect from the revision string.
	Model int `yaml:"model"`

	// RecordSize is the data record length for models without a header.
	RecordSize int `yaml:"record_size"`

	// ProgramFile is a DMC program downloaded and started at startup.
	// A relative path is resolved against the config file directory.
	ProgramFile string `yaml:"program_file"`

	CycleMs  int            `yaml:"cycle_ms"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DefaultsConfig holds per-axis motion defaults in SI units.
type DefaultsConfig struct {
	Speed float64 `yaml:"speed"`
	Accel float64 `yaml:"accel"`
	Decel float64 `yaml:"decel"`
}

// ---- AXES ----

type AxisConfig struct {
	Name    string `yaml:"name"`
	Channel int    `yaml:"channel"`
	Type    string `yaml:"type"` // prismatic | revolute

	PositionLimits   LimitsConfig `yaml:"position_limits"`
	PositionBitsToSI ScaleConfig  `yaml:"position_bits_to_si"`

	Absolute bool    `yaml:"absolute"`
	HomePos  float64 `yaml:"home_pos"`
}

const (
	AxisPrismatic = "prismatic"
	AxisRevolute  = "revolute"
)

type LimitsConfig struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// ScaleConfig maps raw units to SI: si = (raw - offset) / scale.
type ScaleConfig struct {
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// ---- ANALOG INPUTS ----

type AnalogConfig struct {
	Name string                `yaml:"name"`
	Axes []AnalogChannelConfig `yaml:"axes"`
}

type AnalogChannelConfig struct {
	Channel   int         `yaml:"channel"`
	VoltsToSI ScaleConfig `yaml:"volts_to_si"`
}

// ---- PUBLISH ----

// PublishConfig selects the outputs. Both are optional.
type PublishConfig struct {
	Modbus    *ModbusConfig    `yaml:"modbus"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
}

type ModbusConfig struct {
	Endpoint      string `yaml:"endpoint"`
	UnitID        uint8  `yaml:"unit_id"`
	StatusAddress uint16 `yaml:"status_address"`
	AxisAddress   uint16 `yaml:"axis_address"`
	TimeoutMs     int    `yaml:"timeout_ms"`
}

type WebSocketConfig struct {
	Listen string `yaml:"listen"`
}
