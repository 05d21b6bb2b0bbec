package config

// Descriptor is the form a converter takes in the options document: either a
// BareConverter (just the backend name) or a ConfiguredConverter.
type Descriptor interface {
	ConverterName() ConverterName
}

// BareConverter encodes as a plain JSON string.
type BareConverter ConverterName

func (b BareConverter) ConverterName() ConverterName { return ConverterName(b) }

// ConfiguredConverter encodes as {"converter": ..., "options": {...}}.
type ConfiguredConverter struct {
	Converter ConverterName    `json:"converter"`
	Options   ConverterOptions `json:"options"`
}

func (c ConfiguredConverter) ConverterName() ConverterName { return c.Converter }

// Descriptor returns the options-document form of c. Any bag, even an empty
// one, yields a ConfiguredConverter; only a nil bag is bare.
func (c Converter) Descriptor() Descriptor {
	if c.Options == nil {
		return BareConverter(c.Name)
	}
	opts := make(ConverterOptions, len(c.Options))
	for k, v := range c.Options {
		opts[k] = v
	}
	return ConfiguredConverter{Converter: c.Name, Options: opts}
}

// Options is the runtime document read by the image-serving pipeline.
// It is always derived from Config and never edited on its own.
type Options struct {
	Version    int          `json:"version"`
	Converters []Descriptor `json:"converters"`
	Settings
}

// DeriveOptions projects cfg onto the options document: deactivated converters
// are dropped, converter ids are not carried and image-types is left out.
// Converter order is preserved.
func DeriveOptions(cfg Config) Options {
	cfg = Normalize(cfg)
	converters := make([]Descriptor, 0, len(cfg.Converters))
	for _, c := range cfg.Converters {
		if c.Deactivated {
			continue
		}
		converters = append(converters, c.Descriptor())
	}
	return Options{
		Version:    cfg.Version,
		Converters: converters,
		Settings:   cfg.Settings,
	}
}
