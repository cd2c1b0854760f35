package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

/** @brief Logging configuration. */
type LogConfig struct {
	/** @brief One of debug, info, warn, error, fatal. */
	Level string `toml:"level"`
}

/** @brief Per resource class table flush deferral toggles. */
type MergeConfig struct {
	CBV     bool `toml:"cbv"`
	SRV     bool `toml:"srv"`
	UAV     bool `toml:"uav"`
	Sampler bool `toml:"sampler"`
}

/** @brief Reflection and layout building configuration. */
type LayoutConfig struct {
	/** @brief Keeps bind point names in a side-table for layout dumps. */
	Diagnostics bool `toml:"diagnostics"`
	/** @brief Constant buffer registers at or below this slot are never merged. */
	LegacyPerInstanceSlot uint8 `toml:"legacy_per_instance_slot"`
	/** @brief Constant buffer registers deduplicated across stages. */
	SharedSlots []uint8     `toml:"shared_slots"`
	Merge       MergeConfig `toml:"merge"`
}

/** @brief Hardware and engine ceilings a layout must respect. */
type LimitsConfig struct {
	MaxRootParameters      int `toml:"max_root_parameters"`
	MaxRootSignatureDWORDs int `toml:"max_root_dwords"`
	MaxDescriptorRanges    int `toml:"max_descriptor_ranges"`
	MaxDescriptorTables    int `toml:"max_descriptor_tables"`
	MaxStaticSamplers      int `toml:"max_static_samplers"`
}

/** @brief Where shader binding files live. */
type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
}

/** @brief Worker pool used to build signatures ahead of time. */
type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

/**
 * @brief A named shader combination. Graphics pipelines name a shader per
 * stage; compute pipelines name only Compute.
 */
type PipelineConfig struct {
	Name     string `toml:"name"`
	Vertex   string `toml:"vertex"`
	Hull     string `toml:"hull"`
	Domain   string `toml:"domain"`
	Geometry string `toml:"geometry"`
	Pixel    string `toml:"pixel"`
	Compute  string `toml:"compute"`
}

type Config struct {
	Log       LogConfig        `toml:"log"`
	Layout    LayoutConfig     `toml:"layout"`
	Limits    LimitsConfig     `toml:"limits"`
	Assets    AssetsConfig     `toml:"assets"`
	Jobs      JobsConfig       `toml:"jobs"`
	Pipelines []PipelineConfig `toml:"pipeline"`
}

// Well known constant buffer slots.
const (
	SlotPerBatch          uint8 = 0
	SlotPerInstanceLegacy uint8 = 1
	SlotPerMaterial       uint8 = 2
	SlotSkinQuat          uint8 = 3
	SlotSkinQuatPrev      uint8 = 4
	SlotPerPass           uint8 = 5
	SlotPerView           uint8 = 6
	SlotPerFrame          uint8 = 7
)

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Layout: LayoutConfig{
			Diagnostics:           false,
			LegacyPerInstanceSlot: SlotPerInstanceLegacy,
			SharedSlots:           []uint8{SlotPerMaterial, SlotPerPass, SlotPerView, SlotPerFrame},
			Merge: MergeConfig{
				CBV:     false,
				SRV:     true,
				UAV:     true,
				Sampler: true,
			},
		},
		Limits: LimitsConfig{
			MaxRootParameters:      64,
			MaxRootSignatureDWORDs: 64,
			MaxDescriptorRanges:    128,
			MaxDescriptorTables:    32,
			MaxStaticSamplers:      16,
		},
		Assets: AssetsConfig{ShaderDir: "assets/shaders"},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults, so partial files are valid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("func LoadConfig: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("func ParseConfig: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	l := c.Limits
	if l.MaxRootParameters <= 0 || l.MaxRootSignatureDWORDs <= 0 || l.MaxDescriptorRanges <= 0 ||
		l.MaxDescriptorTables <= 0 || l.MaxStaticSamplers < 0 {
		return fmt.Errorf("config: limits must be positive, got %+v", l)
	}
	// D3D12 hard ceiling.
	if l.MaxRootSignatureDWORDs > 64 {
		return fmt.Errorf("config: max_root_dwords cannot exceed 64, got %d", l.MaxRootSignatureDWORDs)
	}
	if c.Jobs.Workers <= 0 || c.Jobs.QueueSize < 0 {
		return fmt.Errorf("config: jobs need at least one worker and a non negative queue, got %+v", c.Jobs)
	}
	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("config: pipeline %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: pipeline '%s' is defined twice", p.Name)
		}
		seen[p.Name] = true
		graphics := p.Vertex != "" || p.Hull != "" || p.Domain != "" || p.Geometry != "" || p.Pixel != ""
		if graphics == (p.Compute != "") {
			return fmt.Errorf("config: pipeline '%s' must name either graphics stages or a compute shader", p.Name)
		}
	}
	return nil
}
