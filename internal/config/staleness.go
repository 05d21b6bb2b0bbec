package config

import "fmt"

// ruleInputs is every Config fact the rewrite rules depend on.
type ruleInputs struct {
	OperationMode      OperationMode
	ImageTypes         int
	Folder             DestinationFolder
	Extension          DestinationExtension
	RedirectToExisting bool
	ToConverter        bool
	ConverterGated     bool
	OnCacheMiss        bool
	DoNotPassSource    bool
	ForwardQueryString bool
	ToRealizer         bool
	CacheControl       string
	Paths              PathFacts
}

func inputsOf(cfg Config) ruleInputs {
	return ruleInputs{
		OperationMode:      cfg.OperationMode,
		ImageTypes:         cfg.ImageTypes,
		Folder:             cfg.DestinationFolder,
		Extension:          cfg.DestinationExtension,
		RedirectToExisting: cfg.RedirectToExistingInHtaccess,
		ToConverter:        cfg.EnableRedirectionToConverter,
		ConverterGated:     cfg.OnlyRedirectToConverterForWebPBrowsers,
		OnCacheMiss:        cfg.OnlyRedirectToConverterOnCacheMiss,
		DoNotPassSource:    cfg.DoNotPassSourceInQueryString,
		ForwardQueryString: cfg.ForwardQueryString,
		ToRealizer:         cfg.EnableRedirectionToWebPRealizer,
		CacheControl:       CacheControlHeader(cfg),
		Paths:              cfg.PathsUsedInRules,
	}
}

// RulesNeedUpdate reports whether rules generated from next would differ in
// any input from those generated from prev. It is a pure function of the two
// snapshots; prev must be the document as persisted before next is written.
func RulesNeedUpdate(prev, next Config) bool {
	return inputsOf(Normalize(prev)) != inputsOf(Normalize(next))
}

// CacheControlHeader returns the Cache-Control value for redirected derivatives,
// or "" when no header is sent.
func CacheControlHeader(cfg Config) string {
	switch cfg.CacheControl {
	case CacheControlSet:
		secs, ok := CacheControlMaxAges[cfg.CacheControlMaxAge]
		if !ok {
			secs = CacheControlMaxAges["one-hour"]
		}
		visibility := "public"
		if !cfg.CacheControlPublic {
			visibility = "private"
		}
		return fmt.Sprintf("max-age=%d, %s", secs, visibility)
	case CacheControlCustom:
		return cfg.CacheControlCustom
	}
	return ""
}

type SchemeChange string

const (
	SchemeUnchanged           SchemeChange = ""
	SchemeRenamed             SchemeChange = "renamed"
	SchemeRelocated           SchemeChange = "relocated"
	SchemeRelocatedAndRenamed SchemeChange = "relocated and renamed"
)

// CompareSchemes classifies how derivative files must move between two configs.
func CompareSchemes(prev, next Config) SchemeChange {
	a, b := prev.Scheme(), next.Scheme()
	switch {
	case a == b:
		return SchemeUnchanged
	case a.Folder == b.Folder:
		return SchemeRenamed
	case a.Extension == b.Extension:
		return SchemeRelocated
	default:
		return SchemeRelocatedAndRenamed
	}
}
