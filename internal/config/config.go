package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Kernel  KernelConfig
	Logging LogConfig
	Heap    HeapConfig
}

// ServerConfig holds inspector HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// KernelConfig holds simulated kernel configuration.
type KernelConfig struct {
	Cores int `envconfig:"KERNEL_CORES" default:"2"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// HeapConfig holds capability heap configuration.
type HeapConfig struct {
	// LayoutPath points to a YAML region layout; empty uses DefaultRegions.
	LayoutPath string `envconfig:"HEAP_LAYOUT"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// regionSpec is the YAML shape of one heap region.
type regionSpec struct {
	Name     string   `yaml:"name"`
	Capacity int      `yaml:"capacity"`
	Caps     []string `yaml:"caps"`
}

type layoutSpec struct {
	Regions []regionSpec `yaml:"regions"`
}

var capNames = map[string]types.CapMask{
	"internal": types.CapInternal,
	"dma":      types.CapDMA,
	"exec":     types.CapExec,
	"spiram":   types.CapSPIRAM,
}

// LoadRegions parses a YAML heap region layout.
func LoadRegions(path string) ([]memory.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heap layout: %w", err)
	}

	var spec layoutSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse heap layout: %w", err)
	}
	if len(spec.Regions) == 0 {
		return nil, fmt.Errorf("heap layout %s declares no regions", path)
	}

	regions := make([]memory.Region, 0, len(spec.Regions))
	for _, r := range spec.Regions {
		if r.Name == "" || r.Capacity <= 0 {
			return nil, fmt.Errorf("region %q: name and positive capacity required", r.Name)
		}
		var mask types.CapMask
		for _, c := range r.Caps {
			bit, ok := capNames[c]
			if !ok {
				return nil, fmt.Errorf("region %q: unknown capability %q", r.Name, c)
			}
			mask |= bit
		}
		regions = append(regions, memory.Region{
			Name:     r.Name,
			Capacity: r.Capacity,
			Caps:     mask,
		})
	}
	return regions, nil
}

// DefaultRegions returns the built-in heap layout: fast internal memory
// first, then DMA-capable internal memory, then a large external region.
func DefaultRegions() []memory.Region {
	return []memory.Region{
		{Name: "iram", Capacity: 64 * 1024, Caps: types.CapInternal | types.CapExec},
		{Name: "dram", Capacity: 256 * 1024, Caps: types.CapInternal | types.CapDMA},
		{Name: "spiram", Capacity: 4 * 1024 * 1024, Caps: types.CapSPIRAM},
	}
}
