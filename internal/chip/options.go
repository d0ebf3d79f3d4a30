package chip

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

// Options are the settings common to every adapter. Adapter specific keys
// of the raw option map are decoded by the adapter itself with
// DecodeOptions.
type Options struct {
	// HostSpeed and HostDuplex describe a CPU port whose MII settings are
	// strapped rather than readable.
	HostSpeed  int    `mapstructure:"host_speed"`
	HostDuplex string `mapstructure:"host_duplex"`

	Poller regio.Poller `mapstructure:"-"`
}

// DecodeOptions decodes raw into out, accepting string numbers and
// booleans the way config files and environment overrides produce them.
func DecodeOptions(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode chip options: %w", err)
	}
	return nil
}

// StrappedHostLink returns the fixed host link described by o, defaulting
// to 100M full duplex.
func (o Options) StrappedHostLink() core.PortLink {
	l := core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexFull}
	switch o.HostSpeed {
	case 10:
		l.Speed = core.Speed10M
	case 1000:
		l.Speed = core.Speed1G
	}
	if o.HostDuplex == "half" {
		l.Duplex = core.DuplexHalf
	}
	return l
}
