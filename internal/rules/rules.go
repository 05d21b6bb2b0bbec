// Package rules turns a configuration into rewrite-rule directives.
package rules

import (
	"fmt"
	"strings"

	"github.com/Roelanb/webpsync/internal/config"
)

const (
	converterScript = "webp-on-demand.php"
	realizerScript  = "webp-realizer.php"
)

// ImageExtPattern returns the regex alternation for the enabled image types,
// or "" when none are enabled.
func ImageExtPattern(imageTypes int) string {
	switch imageTypes {
	case config.ImageTypesBoth:
		return "jpe?g|png"
	case config.ImageTypesJPEG:
		return "jpe?g"
	case config.ImageTypesPNG:
		return "png"
	}
	return ""
}

// ConverterGated reports whether redirects to the converter are restricted to
// clients that advertise webp support.
func ConverterGated(cfg config.Config) bool {
	switch cfg.OperationMode {
	case config.ModeVariedImageResponses:
		return true
	case config.ModeTweaked:
		return cfg.OnlyRedirectToConverterForWebPBrowsers
	}
	return false
}

func redirectsToExisting(cfg config.Config) bool {
	return cfg.OperationMode != config.ModeCDNFriendly && cfg.RedirectToExistingInHtaccess
}

func redirectsToConverter(cfg config.Config) bool {
	return cfg.OperationMode != config.ModeNoConversion && cfg.EnableRedirectionToConverter
}

// Generate maps cfg to an ordered list of rule lines. It reads nothing but cfg;
// path facts come from cfg.PathsUsedInRules.
func Generate(cfg config.Config) []string {
	cfg = config.Normalize(cfg)
	g := &generator{cfg: cfg, ext: ImageExtPattern(cfg.ImageTypes)}

	g.line("<IfModule mod_rewrite.c>")
	g.line("  RewriteEngine On")
	if g.ext != "" {
		if redirectsToExisting(cfg) {
			g.existing()
		}
		if redirectsToConverter(cfg) {
			g.converter()
		}
	}
	if cfg.EnableRedirectionToWebPRealizer {
		g.realizer()
	}
	g.line("</IfModule>")
	g.headers()
	g.line("<IfModule mod_mime.c>")
	g.line("  AddType image/webp .webp")
	g.line("</IfModule>")
	return g.lines
}

type generator struct {
	cfg    config.Config
	ext    string
	lines  []string
	varied bool
}

func (g *generator) line(s string) {
	g.lines = append(g.lines, s)
}

func (g *generator) linef(format string, args ...any) {
	g.lines = append(g.lines, fmt.Sprintf(format, args...))
}

func (g *generator) acceptCond() {
	g.line("  RewriteCond %{HTTP_ACCEPT} image/webp")
	g.varied = true
}

func (g *generator) existing() {
	facts := g.cfg.PathsUsedInRules
	g.line("")
	g.line("  # Redirect to existing converted image")

	if g.cfg.DestinationFolder == config.FolderMingled {
		target := g.mingledTarget()
		g.acceptCond()
		g.linef("  RewriteCond %%{REQUEST_FILENAME} ^(.+)\\.(%s)$ [NC]", g.ext)
		g.linef("  RewriteCond %s -f", backrefs(target))
		g.linef("  RewriteRule ^(.+)\\.(%s)$ %s [NC,T=image/webp,E=EXISTING:1,L]", g.ext, target)
	}

	g.acceptCond()
	g.linef("  RewriteCond %%{REQUEST_URI} ^/?(.+)\\.(%s)$ [NC]", g.ext)
	g.linef("  RewriteCond %%{DOCUMENT_ROOT}%s/%%1.%%2.webp -f", facts.Existing)
	g.linef("  RewriteRule ^/?(.+)\\.(%s)$ %s/%%1.%%2.webp [NC,T=image/webp,E=EXISTING:1,L]", g.ext, facts.Existing)
}

// mingledTarget is the substitution for a derivative stored beside its original.
func (g *generator) mingledTarget() string {
	if g.cfg.DestinationExtension == config.ExtensionSet {
		return "$1.webp"
	}
	return "$1.$2.webp"
}

// backrefs rewrites rule backreferences into condition backreferences.
func backrefs(target string) string {
	return strings.NewReplacer("$1", "%1", "$2", "%2").Replace(target)
}

func (g *generator) converter() {
	cfg := g.cfg
	facts := cfg.PathsUsedInRules
	g.line("")
	g.line("  # Redirect images to webp-on-demand")

	if ConverterGated(cfg) {
		g.acceptCond()
	}
	if cfg.OnlyRedirectToConverterOnCacheMiss {
		if cfg.DestinationFolder == config.FolderMingled {
			g.linef("  RewriteCond %%{REQUEST_FILENAME} ^(.+)\\.(%s)$ [NC]", g.ext)
			g.linef("  RewriteCond %s !-f", backrefs(g.mingledTarget()))
		}
		g.linef("  RewriteCond %%{REQUEST_URI} ^/?(.+)\\.(%s)$ [NC]", g.ext)
		g.linef("  RewriteCond %%{DOCUMENT_ROOT}%s/%%1.%%2.webp !-f", facts.Existing)
	}
	if cfg.ForwardQueryString {
		g.line("  RewriteCond %{QUERY_STRING} (.*)")
	}

	query := "xconfig=" + facts.ConfigDirRel
	if !cfg.DoNotPassSourceInQueryString {
		query = "xsource=x%{SCRIPT_FILENAME}&" + query
	}
	if cfg.ForwardQueryString {
		query += "&%1"
	}
	flags := "NC,L"
	if cfg.DoNotPassSourceInQueryString {
		flags = "NC,E=REQFN:%{REQUEST_FILENAME},L"
	}
	g.linef("  RewriteRule ^(.*)\\.(%s)$ %s/%s?%s [%s]", g.ext, facts.WodURLPath, converterScript, query, flags)
}

func (g *generator) realizer() {
	facts := g.cfg.PathsUsedInRules
	g.line("")
	g.line("  # WebP Realizer: convert on request for missing webp files")
	g.line("  RewriteCond %{REQUEST_FILENAME} !-f")
	g.linef("  RewriteRule ^(.+)\\.webp$ %s/%s?xdestination=x%%{SCRIPT_FILENAME}&xconfig=%s [NC,L]",
		facts.WodURLPath, realizerScript, facts.ConfigDirRel)
}

func (g *generator) headers() {
	cc := config.CacheControlHeader(g.cfg)
	if !g.varied && cc == "" {
		return
	}
	g.line("<IfModule mod_headers.c>")
	if g.varied {
		g.linef("  <FilesMatch \"(?i)\\.(%s)$\">", g.headerExt())
		g.line("    Header append \"Vary\" \"Accept\"")
		g.line("  </FilesMatch>")
	}
	if cc != "" {
		g.linef("  Header set \"Cache-Control\" %q env=EXISTING", cc)
	}
	g.line("</IfModule>")
}

func (g *generator) headerExt() string {
	if g.ext == "" {
		return "webp"
	}
	return g.ext + "|webp"
}

// Text joins lines into a rule block body.
func Text(lines []string) string {
	return strings.Join(lines, "\n")
}
