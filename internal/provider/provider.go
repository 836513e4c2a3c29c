// Package provider implements waveform providers: a local directory of
// WAV/FLAC segments and an HTTP waveform service.
package provider

import (
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const componentName = "provider"

// New returns the provider selected by settings.
func New(settings *conf.ProviderSettings, log logger.Logger) (waveform.Provider, error) {
	switch settings.Type {
	case conf.ProviderLocal:
		return NewLocalDirectory(settings.Local.Root, settings.Local.CacheTTL, log)
	case conf.ProviderNetwork:
		return NewNetworkClient(NetworkConfig{
			BaseURL:   settings.Network.BaseURL,
			Timeout:   settings.Network.Timeout,
			RateLimit: settings.Network.RateLimit,
			Burst:     settings.Network.Burst,
		}, log)
	default:
		return nil, errors.NewConfigError(componentName, "unknown provider type %q", settings.Type)
	}
}
