package accessory

import "garage-sentry-backend/config"

const (
	Manufacturer = "GarageSentry"
	Model        = "Garage Door"
)

// Info is the accessory information service surfaced to clients.
type Info struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
}

// NewInfo builds accessory information for the configured device.
func NewInfo(cfg *config.DeviceConfig) Info {
	name := cfg.Name
	if name == "" {
		name = Model
	}
	return Info{
		Name:         name,
		Manufacturer: Manufacturer,
		Model:        Model,
		SerialNumber: cfg.DeviceID,
	}
}
