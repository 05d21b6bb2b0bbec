package config

// KnownConverters lists the conversion backends in their default priority order.
var KnownConverters = []ConverterName{
	ConverterCwebp,
	ConverterVips,
	ConverterImagick,
	ConverterGmagick,
	ConverterImageMagick,
	ConverterGraphicsMagick,
	ConverterWPC,
	ConverterEwww,
	ConverterGd,
}

// Default returns the configuration used when no document exists yet.
func Default() Config {
	converters := make([]Converter, 0, len(KnownConverters))
	for _, name := range KnownConverters {
		c := Converter{Name: name}
		switch name {
		case ConverterWPC, ConverterEwww:
			// cloud converters need credentials before they can work
			c.Deactivated = true
		}
		converters = append(converters, c)
	}

	return Config{
		Version:    CurrentVersion,
		ImageTypes: ImageTypesBoth,
		Converters: converters,
		Settings: Settings{
			OperationMode:        ModeVariedImageResponses,
			DestinationFolder:    FolderSeparate,
			DestinationExtension: ExtensionAppend,

			CacheControl:       CacheControlNoHeader,
			CacheControlMaxAge: "one-hour",
			CacheControlPublic: true,

			RedirectToExistingInHtaccess:           true,
			EnableRedirectionToConverter:           true,
			OnlyRedirectToConverterForWebPBrowsers: true,
			ForwardQueryString:                     true,

			Metadata:               "none",
			JPEGEncoding:           "auto",
			QualityAuto:            true,
			MaxQuality:             80,
			QualitySpecific:        70,
			JPEGEnableNearLossless: true,
			JPEGNearLossless:       60,
			PNGEncoding:            "auto",
			PNGQuality:             85,
			PNGEnableNearLossless:  true,
			PNGNearLossless:        60,
			AlphaQuality:           80,

			Fail:            "original",
			SuccessResponse: "converted",

			AlterHTML: AlterHTML{
				OnlyForWebPsThatExists: true,
				Replacement:            "picture",
				Hooks:                  "content-hooks",
			},
		},
	}
}
