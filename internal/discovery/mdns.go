package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"garage-sentry-backend/internal/accessory"
)

// ServiceDomain is the mDNS domain the control API is advertised in.
const ServiceDomain = "local."

// TXTRecords describes the accessory in key=value form.
func TXTRecords(info accessory.Info) []string {
	return []string{
		"name=" + info.Name,
		"manufacturer=" + info.Manufacturer,
		"model=" + info.Model,
		"serial=" + info.SerialNumber,
		"path=/api",
	}
}

// Advertise registers the control API on port and keeps the record up until
// ctx is done.
func Advertise(ctx context.Context, instance, service string, port int, info accessory.Info, logger *zap.Logger) error {
	server, err := zeroconf.Register(instance, service, ServiceDomain, port, TXTRecords(info), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logger.Info("advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", service),
		zap.Int("port", port))

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}
