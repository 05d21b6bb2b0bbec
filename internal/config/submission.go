package config

import (
	"github.com/google/uuid"
)

// SubmittedWhitelistEntry is a whitelist row as sent by the administrative form.
// It has no api-key field: a stored key can only be replaced through NewAPIKey.
type SubmittedWhitelistEntry struct {
	Label                string `json:"label"`
	IP                   string `json:"ip"`
	UID                  string `json:"uid,omitempty"`
	NewAPIKey            string `json:"new-api-key,omitempty"`
	RequireCryptedAPIKey bool   `json:"require-api-key-to-be-crypted-in-transfer,omitempty"`
}

// SubmittedConverter is a converter row as sent by the form. Any api-key in
// Options is ignored; NewAPIKey is the only way to replace the stored one.
type SubmittedConverter struct {
	Converter
	NewAPIKey string `json:"new-api-key,omitempty"`
}

// Submission is the sanitized, Config-shaped payload produced by the form handler.
// OperationMode is the mode the form was rendered in; ChangeOperationMode is the
// mode the user selected.
type Submission struct {
	Force               bool                      `json:"force"`
	ChangeOperationMode OperationMode             `json:"change-operation-mode,omitempty"`
	ImageTypes          int                       `json:"image-types"`
	QualityFallback     int                       `json:"quality-fallback"`
	Converters          []SubmittedConverter      `json:"converters"`
	Whitelist           []SubmittedWhitelistEntry `json:"whitelist"`
	Settings
}

// ApplySubmission merges sub into old. Only the fields that the submitted
// operation mode exposes are taken from sub; everything else keeps its stored
// value. Secrets are carried forward from old.
func ApplySubmission(old Config, sub Submission) Config {
	old = Normalize(old)
	cfg := old
	mode := OperationMode(oneOf(string(sub.OperationMode), string(old.OperationMode),
		string(ModeVariedImageResponses), string(ModeCDNFriendly), string(ModeNoConversion), string(ModeTweaked)))

	cfg.OperationMode = mode
	cfg.ImageTypes = sub.ImageTypes
	cfg.ForwardQueryString = true

	if mode != ModeCDNFriendly {
		cfg.CacheControl = sub.CacheControl
		switch sub.CacheControl {
		case CacheControlSet:
			cfg.CacheControlMaxAge = sub.CacheControlMaxAge
			cfg.CacheControlPublic = sub.CacheControlPublic
		case CacheControlCustom:
			cfg.CacheControlCustom = sub.CacheControlCustom
		}
	}

	cfg.AlterHTML = AlterHTML{
		Enabled:     sub.AlterHTML.Enabled,
		Replacement: sub.AlterHTML.Replacement,
		Hooks:       sub.AlterHTML.Hooks,
	}
	if sub.AlterHTML.Replacement == "url" {
		cfg.AlterHTML.OnlyForWebPEnabledBrowsers = sub.AlterHTML.OnlyForWebPEnabledBrowsers
	}
	if sub.AlterHTML.Replacement == "picture" {
		cfg.AlterHTML.AddPicturefillJS = sub.AlterHTML.AddPicturefillJS
	}
	cfg.AlterHTML.OnlyForWebPsThatExists = true
	if mode != ModeNoConversion {
		cfg.AlterHTML.OnlyForWebPsThatExists = sub.AlterHTML.OnlyForWebPsThatExists
	}

	if mode != ModeNoConversion {
		cfg.EnableRedirectionToWebPRealizer = sub.EnableRedirectionToWebPRealizer
		cfg.Metadata = sub.Metadata
		cfg.JPEGEncoding = sub.JPEGEncoding
		cfg.QualityAuto = sub.QualityAuto
		if sub.QualityAuto {
			cfg.MaxQuality = sub.MaxQuality
			cfg.QualitySpecific = sub.QualityFallback
		} else {
			cfg.MaxQuality = 80
			cfg.QualitySpecific = sub.QualitySpecific
		}
		cfg.JPEGEnableNearLossless = sub.JPEGEnableNearLossless
		cfg.JPEGNearLossless = sub.JPEGNearLossless
		cfg.PNGEncoding = sub.PNGEncoding
		cfg.PNGQuality = sub.PNGQuality
		cfg.PNGEnableNearLossless = sub.PNGEnableNearLossless
		cfg.PNGNearLossless = sub.PNGNearLossless
		cfg.AlphaQuality = sub.AlphaQuality
		cfg.ConvertOnUpload = sub.ConvertOnUpload

		cfg.WebService = WebService{
			Enabled:   sub.WebService.Enabled,
			Whitelist: MergeWhitelist(old.WebService.Whitelist, sub.Whitelist),
		}
		cfg.Converters = MergeConverters(old.Converters, sub.Converters)
	}

	ext := ExtensionAppend
	if sub.DestinationFolder == FolderMingled {
		ext = sub.DestinationExtension
	}
	switch mode {
	case ModeVariedImageResponses:
		cfg.RedirectToExistingInHtaccess = sub.RedirectToExistingInHtaccess
		cfg.DestinationFolder = sub.DestinationFolder
		cfg.DestinationExtension = ext
		cfg.EnableRedirectionToConverter = sub.EnableRedirectionToConverter
	case ModeCDNFriendly:
		cfg.DestinationFolder = sub.DestinationFolder
		cfg.DestinationExtension = ext
		cfg.EnableRedirectionToConverter = sub.EnableRedirectionToConverter
	case ModeNoConversion:
		cfg.RedirectToExistingInHtaccess = sub.RedirectToExistingInHtaccess
		cfg.DestinationExtension = sub.DestinationExtension
	case ModeTweaked:
		cfg.EnableRedirectionToConverter = sub.EnableRedirectionToConverter
		cfg.OnlyRedirectToConverterForWebPBrowsers = sub.OnlyRedirectToConverterForWebPBrowsers
		cfg.OnlyRedirectToConverterOnCacheMiss = sub.OnlyRedirectToConverterOnCacheMiss
		cfg.DoNotPassSourceInQueryString = sub.DoNotPassSourceInQueryString
		cfg.RedirectToExistingInHtaccess = sub.RedirectToExistingInHtaccess
		cfg.DestinationFolder = sub.DestinationFolder
		cfg.DestinationExtension = ext
		cfg.Fail = sub.Fail
		cfg.SuccessResponse = sub.SuccessResponse
	}

	if sub.ChangeOperationMode != "" && sub.ChangeOperationMode != mode {
		cfg.OperationMode = sub.ChangeOperationMode
		cfg = ApplyOperationMode(cfg)
		if cfg.OperationMode == ModeVariedImageResponses {
			cfg.RedirectToExistingInHtaccess = true
		}
	}

	return Normalize(cfg)
}

// ApplyOperationMode forces the settings that cfg.OperationMode does not let
// the user choose.
func ApplyOperationMode(cfg Config) Config {
	switch cfg.OperationMode {
	case ModeVariedImageResponses:
		cfg.OnlyRedirectToConverterForWebPBrowsers = true
		cfg.OnlyRedirectToConverterOnCacheMiss = false
		cfg.DoNotPassSourceInQueryString = true
		cfg.Fail = "original"
		cfg.SuccessResponse = "converted"
	case ModeCDNFriendly:
		cfg.RedirectToExistingInHtaccess = false
		cfg.EnableRedirectionToConverter = false
		cfg.OnlyRedirectToConverterForWebPBrowsers = false
		cfg.Fail = "original"
		cfg.SuccessResponse = "original"
	case ModeNoConversion:
		cfg.EnableRedirectionToConverter = false
		cfg.EnableRedirectionToWebPRealizer = false
		cfg.WebService.Enabled = false
	}
	return cfg
}

// MergeWhitelist builds the stored whitelist from submitted rows. A row keeps
// the api-key stored under its uid unless it carries a non-empty NewAPIKey.
// Rows without a uid get a fresh one.
func MergeWhitelist(old []WhitelistEntry, submitted []SubmittedWhitelistEntry) []WhitelistEntry {
	keys := make(map[string]string, len(old))
	for _, e := range old {
		if e.UID != "" {
			keys[e.UID] = e.APIKey
		}
	}

	out := make([]WhitelistEntry, 0, len(submitted))
	for _, s := range submitted {
		e := WhitelistEntry{
			Label:                stripNUL(s.Label),
			IP:                   stripNUL(s.IP),
			UID:                  s.UID,
			RequireCryptedAPIKey: s.RequireCryptedAPIKey,
		}
		if e.UID == "" {
			e.UID = uuid.NewString()
		} else {
			e.APIKey = keys[e.UID]
		}
		if s.NewAPIKey != "" {
			e.APIKey = s.NewAPIKey
		}
		out = append(out, e)
	}
	return out
}

// MergeConverters builds the stored converter chain from submitted rows. Ids are
// dropped. A submitted api-key is ignored: the key stored for the same converter
// is carried forward unless NewAPIKey replaces it. wpc always has the key set.
func MergeConverters(old []Converter, submitted []SubmittedConverter) []Converter {
	keys := make(map[ConverterName]string)
	for _, c := range old {
		if _, seen := keys[c.Name]; seen {
			continue
		}
		if k, ok := c.Options["api-key"].(string); ok {
			keys[c.Name] = k
		}
	}

	out := make([]Converter, 0, len(submitted))
	for _, s := range submitted {
		c := s.Converter
		c.ID = ""
		c.Options = SanitizeOptions(c.Options)
		delete(c.Options, "api-key")

		key, stored := keys[c.Name]
		if s.NewAPIKey != "" {
			key, stored = s.NewAPIKey, true
		}
		if stored || c.Name == ConverterWPC {
			if c.Options == nil {
				c.Options = ConverterOptions{}
			}
			c.Options["api-key"] = key
		}
		out = append(out, c)
	}
	return out
}

// Redacted returns a copy of cfg with every secret removed, for client-visible payloads.
func Redacted(cfg Config) Config {
	cfg = Normalize(cfg)
	for i := range cfg.WebService.Whitelist {
		cfg.WebService.Whitelist[i].APIKey = ""
	}
	for i := range cfg.Converters {
		if _, ok := cfg.Converters[i].Options["api-key"]; ok {
			delete(cfg.Converters[i].Options, "api-key")
		}
	}
	return cfg
}
