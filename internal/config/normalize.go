package config

import (
	"math"
	"strings"
)

// CacheControlMaxAges maps the max-age choices to seconds.
var CacheControlMaxAges = map[string]int{
	"one-second": 1,
	"one-hour":   3600,
	"one-day":    86400,
	"one-week":   604800,
	"one-month":  2592000,
	"one-year":   31536000,
}

type optionKind int

const (
	kindBool optionKind = iota
	kindInt
	kindString
)

// acceptedOptions is the closed set of converter option keys and their value types.
var acceptedOptions = map[string]optionKind{
	// vips
	"smart-subsample": kindBool,
	"preset":          kindString,
	// gd
	"skip-pngs": kindBool,
	// several backends
	"use-nice": kindBool,
	// cwebp
	"try-common-system-paths":    kindBool,
	"try-supplied-binary-for-os": kindBool,
	"method":                     kindInt,
	"size-in-percentage":         kindInt,
	"low-memory":                 kindBool,
	"command-line-options":       kindString,
	"set-size":                   kindBool,
	// wpc
	"api-url":                   kindString,
	"api-version":               kindInt,
	"crypt-api-key-in-transfer": kindBool,
	"api-key":                   kindString,
}

// Normalize enforces the document invariants: enums fall back to their defaults,
// qualities are clamped, destination-extension "set" requires the mingled folder,
// unknown converters are dropped and converter options are filtered to known keys
// of the expected type. The returned config shares no maps or slices with cfg.
func Normalize(cfg Config) Config {
	def := Default()
	out := cfg

	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	switch out.ImageTypes {
	case ImageTypesNone, ImageTypesJPEG, ImageTypesPNG, ImageTypesBoth:
	default:
		out.ImageTypes = def.ImageTypes
	}

	switch out.OperationMode {
	case ModeVariedImageResponses, ModeCDNFriendly, ModeNoConversion, ModeTweaked:
	default:
		out.OperationMode = def.OperationMode
	}
	switch out.DestinationFolder {
	case FolderSeparate, FolderMingled:
	default:
		out.DestinationFolder = def.DestinationFolder
	}
	switch out.DestinationExtension {
	case ExtensionAppend, ExtensionSet:
	default:
		out.DestinationExtension = def.DestinationExtension
	}
	if out.DestinationFolder != FolderMingled {
		out.DestinationExtension = ExtensionAppend
	}

	switch out.CacheControl {
	case CacheControlNoHeader, CacheControlSet, CacheControlCustom:
	default:
		out.CacheControl = def.CacheControl
	}
	if _, ok := CacheControlMaxAges[out.CacheControlMaxAge]; !ok {
		out.CacheControlMaxAge = def.CacheControlMaxAge
	}
	out.CacheControlCustom = stripNUL(out.CacheControlCustom)

	out.Metadata = oneOf(out.Metadata, def.Metadata, "none", "all")
	out.JPEGEncoding = oneOf(out.JPEGEncoding, def.JPEGEncoding, "lossy", "auto")
	out.PNGEncoding = oneOf(out.PNGEncoding, def.PNGEncoding, "lossless", "auto")
	out.Fail = oneOf(out.Fail, def.Fail, "original", "404", "report")
	out.SuccessResponse = oneOf(out.SuccessResponse, def.SuccessResponse, "original", "converted")
	out.AlterHTML.Replacement = oneOf(out.AlterHTML.Replacement, def.AlterHTML.Replacement, "picture", "url")
	out.AlterHTML.Hooks = oneOf(out.AlterHTML.Hooks, def.AlterHTML.Hooks, "content-hooks", "ob")

	out.MaxQuality = clampQuality(out.MaxQuality)
	out.QualitySpecific = clampQuality(out.QualitySpecific)
	out.JPEGNearLossless = clampQuality(out.JPEGNearLossless)
	out.PNGQuality = clampQuality(out.PNGQuality)
	out.PNGNearLossless = clampQuality(out.PNGNearLossless)
	out.AlphaQuality = clampQuality(out.AlphaQuality)

	out.Converters = normalizeConverters(cfg.Converters)
	if cfg.WebService.Whitelist != nil {
		out.WebService.Whitelist = append([]WhitelistEntry(nil), cfg.WebService.Whitelist...)
	}
	return out
}

// IsKnownConverter reports whether name is a supported backend.
func IsKnownConverter(name ConverterName) bool {
	for _, k := range KnownConverters {
		if k == name {
			return true
		}
	}
	return false
}

func normalizeConverters(in []Converter) []Converter {
	if in == nil {
		return nil
	}
	out := make([]Converter, 0, len(in))
	for _, c := range in {
		if !IsKnownConverter(c.Name) {
			continue
		}
		c.Options = SanitizeOptions(c.Options)
		out = append(out, c)
	}
	return out
}

// SanitizeOptions drops unknown keys and values whose type does not match the
// accepted type for that key. A nil bag stays nil.
func SanitizeOptions(in ConverterOptions) ConverterOptions {
	if in == nil {
		return nil
	}
	out := make(ConverterOptions, len(in))
	for key, raw := range in {
		kind, ok := acceptedOptions[key]
		if !ok {
			continue
		}
		v, ok := coerce(kind, raw)
		if !ok {
			continue
		}
		out[key] = v
	}
	return out
}

func coerce(kind optionKind, raw any) (any, bool) {
	switch kind {
	case kindBool:
		b, ok := raw.(bool)
		return b, ok
	case kindString:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		return stripNUL(s), true
	case kindInt:
		switch n := raw.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			// JSON numbers decode as float64; only integral values are ints
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				return nil, false
			}
			return int(n), true
		}
	}
	return nil, false
}

func oneOf(v, fallback string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

func clampQuality(q int) int {
	return max(0, min(q, 100))
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
