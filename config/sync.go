// Package config holds the replication configuration surface: per-entity
// sync profiles, host network settings, and their persistence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/automoto/netxform/shared/netconfig"
)

// ErrInvalidConfig is returned by Validate for settings the replicator cannot run with.
var ErrInvalidConfig = errors.New("config: invalid sync config")

// SyncConfig configures replication of one entity
type SyncConfig struct {
	// Per-axis sync enable
	SyncPositionX bool `json:"syncPositionX"`
	SyncPositionY bool `json:"syncPositionY"`
	SyncPositionZ bool `json:"syncPositionZ"`
	SyncRotAngleX bool `json:"syncRotAngleX"`
	SyncRotAngleY bool `json:"syncRotAngleY"`
	SyncRotAngleZ bool `json:"syncRotAngleZ"`
	SyncScaleX    bool `json:"syncScaleX"`
	SyncScaleY    bool `json:"syncScaleY"`
	SyncScaleZ    bool `json:"syncScaleZ"`

	// Change thresholds (strictly greater than triggers a send)
	PositionThreshold float64 `json:"positionThreshold"` // World units
	RotAngleThreshold float64 `json:"rotAngleThreshold"` // Degrees
	ScaleThreshold    float64 `json:"scaleThreshold"`

	InLocalSpace                 bool `json:"inLocalSpace"`
	UseQuaternionSynchronization bool `json:"useQuaternionSynchronization"`

	Precision   netconfig.PrecisionMode   `json:"precision"`
	Compression netconfig.CompressionMode `json:"compression"`

	// Half-precision position codec
	MaxDeltaBeforeAdjustment float64 `json:"maxDeltaBeforeAdjustment"` // Fold threshold, both ends must agree
	HalfPrecisionResyncTicks int     `json:"halfPrecisionResyncTicks"` // Full-precision resync period, 0 disables

	// Receiver smoothing
	Interpolate             bool    `json:"interpolate"`
	InterpolationDelayTicks int     `json:"interpolationDelayTicks"` // Render time lags server time by this many ticks
	Extrapolate             bool    `json:"extrapolate"`
	MaxExtrapolationSeconds float64 `json:"maxExtrapolationSeconds"` // Ceiling on extrapolation past the newest sample

	StaleDataHandling netconfig.StaleDataHandling `json:"staleDataHandling"`

	MaxSendRate float64 `json:"maxSendRate"` // Updates per second, 0 sends every tick
	TickRate    int     `json:"tickRate"`    // Simulation ticks per second
}

// NetworkConfig contains host and observer connection settings
type NetworkConfig struct {
	Port       uint   `json:"port"`
	ServerName string `json:"serverName"`
	Version    string `json:"version"` // Required client version (empty = accept any)
	TickRate   int    `json:"tickRate"`
}

// Global configuration instances
var Sync SyncConfig
var Network NetworkConfig

func init() {
	Sync = DefaultSync()

	Network = NetworkConfig{
		Port:       7373,
		ServerName: "netxform host",
		TickRate:   30,
	}
}

// DefaultSync returns the profile new entities start from: every axis synced,
// full precision, interpolation on, stale data ignored.
func DefaultSync() SyncConfig {
	return SyncConfig{
		SyncPositionX: true,
		SyncPositionY: true,
		SyncPositionZ: true,
		SyncRotAngleX: true,
		SyncRotAngleY: true,
		SyncRotAngleZ: true,
		SyncScaleX:    true,
		SyncScaleY:    true,
		SyncScaleZ:    true,

		PositionThreshold: 0.001,
		RotAngleThreshold: 0.01,
		ScaleThreshold:    0.01,

		Precision:   netconfig.PrecisionFull,
		Compression: netconfig.CompressionNone,

		MaxDeltaBeforeAdjustment: 64,
		HalfPrecisionResyncTicks: 120,

		Interpolate:             true,
		InterpolationDelayTicks: 1,
		Extrapolate:             true,
		MaxExtrapolationSeconds: 0.25,

		StaleDataHandling: netconfig.StaleIgnore,

		TickRate: 30,
	}
}

// SyncsPosition reports whether any position axis is synchronized.
func (c SyncConfig) SyncsPosition() bool {
	return c.SyncPositionX || c.SyncPositionY || c.SyncPositionZ
}

func (c SyncConfig) SyncsRotation() bool {
	return c.SyncRotAngleX || c.SyncRotAngleY || c.SyncRotAngleZ
}

func (c SyncConfig) SyncsScale() bool {
	return c.SyncScaleX || c.SyncScaleY || c.SyncScaleZ
}

// PositionAxes, RotationAxes and ScaleAxes return the enable flags indexed by axis.
func (c SyncConfig) PositionAxes() [3]bool {
	return [3]bool{c.SyncPositionX, c.SyncPositionY, c.SyncPositionZ}
}

func (c SyncConfig) RotationAxes() [3]bool {
	return [3]bool{c.SyncRotAngleX, c.SyncRotAngleY, c.SyncRotAngleZ}
}

func (c SyncConfig) ScaleAxes() [3]bool {
	return [3]bool{c.SyncScaleX, c.SyncScaleY, c.SyncScaleZ}
}

// TickDuration is the length of one simulation tick in seconds.
func (c SyncConfig) TickDuration() float64 {
	if c.TickRate <= 0 {
		return 0
	}
	return 1 / float64(c.TickRate)
}

// Validate rejects settings the replicator cannot run with.
func (c SyncConfig) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick rate must be positive, got %d", ErrInvalidConfig, c.TickRate)
	case c.PositionThreshold < 0 || c.RotAngleThreshold < 0 || c.ScaleThreshold < 0:
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidConfig)
	case c.MaxSendRate < 0:
		return fmt.Errorf("%w: max send rate must not be negative", ErrInvalidConfig)
	case c.MaxExtrapolationSeconds < 0:
		return fmt.Errorf("%w: max extrapolation must not be negative", ErrInvalidConfig)
	case c.InterpolationDelayTicks < 0 || c.HalfPrecisionResyncTicks < 0:
		return fmt.Errorf("%w: tick counts must not be negative", ErrInvalidConfig)
	case c.Precision == netconfig.PrecisionHalf && c.MaxDeltaBeforeAdjustment <= 0:
		return fmt.Errorf("%w: half precision needs a positive fold threshold", ErrInvalidConfig)
	case c.Compression == netconfig.CompressionSmallestThree && !c.SyncsPosition() && !c.UseQuaternionSynchronization:
		return fmt.Errorf("%w: compression enabled with nothing to compress", ErrInvalidConfig)
	}
	return nil
}

// LoadSyncConfig reads a JSON profile. Fields missing from the file keep their
// DefaultSync values.
func LoadSyncConfig(path string) (SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SyncConfig{}, fmt.Errorf("read sync config: %w", err)
	}
	return ParseSyncConfig(data)
}

// ParseSyncConfig decodes and validates a JSON profile.
func ParseSyncConfig(data []byte) (SyncConfig, error) {
	c := DefaultSync()
	if err := json.Unmarshal(data, &c); err != nil {
		return SyncConfig{}, fmt.Errorf("parse sync config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return SyncConfig{}, err
	}
	return c, nil
}
