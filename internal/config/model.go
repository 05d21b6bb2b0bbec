package config

type OperationMode string

const (
	ModeVariedImageResponses OperationMode = "varied-image-responses"
	ModeCDNFriendly          OperationMode = "cdn-friendly"
	ModeNoConversion         OperationMode = "no-conversion"
	ModeTweaked              OperationMode = "tweaked"
)

type DestinationFolder string

const (
	FolderSeparate DestinationFolder = "separate"
	FolderMingled  DestinationFolder = "mingled"
)

type DestinationExtension string

const (
	ExtensionAppend DestinationExtension = "append"
	ExtensionSet    DestinationExtension = "set"
)

// Scheme is the (folder, extension) policy that places a derivative file
// relative to its original.
type Scheme struct {
	Folder    DestinationFolder
	Extension DestinationExtension
}

// Image type bit set.
const (
	ImageTypesNone = 0
	ImageTypesJPEG = 1
	ImageTypesPNG  = 2
	ImageTypesBoth = 3
)

type CacheControl string

const (
	CacheControlNoHeader CacheControl = "no-header"
	CacheControlSet      CacheControl = "set"
	CacheControlCustom   CacheControl = "custom"
)

type ConverterName string

const (
	ConverterCwebp          ConverterName = "cwebp"
	ConverterVips           ConverterName = "vips"
	ConverterImagick        ConverterName = "imagick"
	ConverterGmagick        ConverterName = "gmagick"
	ConverterImageMagick    ConverterName = "imagemagick"
	ConverterGraphicsMagick ConverterName = "graphicsmagick"
	ConverterWPC            ConverterName = "wpc"
	ConverterEwww           ConverterName = "ewww"
	ConverterGd             ConverterName = "gd"
)

// ConverterOptions is a backend-specific option bag. Values are bool, int or string.
type ConverterOptions map[string]any

type Converter struct {
	Name        ConverterName    `json:"converter"`
	ID          string           `json:"id,omitempty"`
	Options     ConverterOptions `json:"options"`
	Working     bool             `json:"working,omitempty"`
	Deactivated bool             `json:"deactivated,omitempty"`
}

type WhitelistEntry struct {
	Label                string `json:"label"`
	IP                   string `json:"ip"`
	UID                  string `json:"uid"`
	APIKey               string `json:"api-key,omitempty"`
	RequireCryptedAPIKey bool   `json:"require-api-key-to-be-crypted-in-transfer,omitempty"`
}

type WebService struct {
	Enabled   bool             `json:"enabled"`
	Whitelist []WhitelistEntry `json:"whitelist"`
}

type AlterHTML struct {
	Enabled                    bool   `json:"enabled"`
	OnlyForWebPEnabledBrowsers bool   `json:"only-for-webp-enabled-browsers"`
	AddPicturefillJS           bool   `json:"alter-html-add-picturefill-js,omitempty"`
	OnlyForWebPsThatExists     bool   `json:"only-for-webps-that-exists"`
	Replacement                string `json:"replacement"` // picture|url
	Hooks                      string `json:"hooks"`       // content-hooks|ob
}

// PathFacts are the filesystem/URL facts baked into the last written rules.
type PathFacts struct {
	Existing     string `json:"existing"`
	WodURLPath   string `json:"wod-url-path"`
	ConfigDirRel string `json:"config-dir-rel"`
}

// Settings holds every field that the options document shares verbatim with Config.
type Settings struct {
	OperationMode OperationMode `json:"operation-mode"`

	DestinationFolder    DestinationFolder    `json:"destination-folder"`
	DestinationExtension DestinationExtension `json:"destination-extension"`

	CacheControl       CacheControl `json:"cache-control"`
	CacheControlMaxAge string       `json:"cache-control-max-age"`
	CacheControlPublic bool         `json:"cache-control-public"`
	CacheControlCustom string       `json:"cache-control-custom"`

	RedirectToExistingInHtaccess           bool `json:"redirect-to-existing-in-htaccess"`
	EnableRedirectionToConverter           bool `json:"enable-redirection-to-converter"`
	OnlyRedirectToConverterForWebPBrowsers bool `json:"only-redirect-to-converter-for-webp-enabled-browsers"`
	OnlyRedirectToConverterOnCacheMiss     bool `json:"only-redirect-to-converter-on-cache-miss"`
	DoNotPassSourceInQueryString           bool `json:"do-not-pass-source-in-query-string"`
	ForwardQueryString                     bool `json:"forward-query-string"`
	EnableRedirectionToWebPRealizer        bool `json:"enable-redirection-to-webp-realizer"`

	Metadata               string `json:"metadata"`      // none|all
	JPEGEncoding           string `json:"jpeg-encoding"` // lossy|auto
	QualityAuto            bool   `json:"quality-auto"`
	MaxQuality             int    `json:"max-quality"`
	QualitySpecific        int    `json:"quality-specific"`
	JPEGEnableNearLossless bool   `json:"jpeg-enable-near-lossless"`
	JPEGNearLossless       int    `json:"jpeg-near-lossless"`
	PNGEncoding            string `json:"png-encoding"` // lossless|auto
	PNGQuality             int    `json:"png-quality"`
	PNGEnableNearLossless  bool   `json:"png-enable-near-lossless"`
	PNGNearLossless        int    `json:"png-near-lossless"`
	AlphaQuality           int    `json:"alpha-quality"`
	ConvertOnUpload        bool   `json:"convert-on-upload"`

	Fail            string `json:"fail"`             // original|404|report
	SuccessResponse string `json:"success-response"` // original|converted

	AlterHTML  AlterHTML  `json:"alter-html"`
	WebService WebService `json:"web-service"`

	PathsUsedInRules PathFacts `json:"paths-used-in-rules"`
}

// Config is the persisted configuration document.
type Config struct {
	Version    int         `json:"version"`
	ImageTypes int         `json:"image-types"`
	Converters []Converter `json:"converters"`
	Settings
}

// Scheme returns the destination scheme of cfg.
func (c Config) Scheme() Scheme {
	return Scheme{Folder: c.DestinationFolder, Extension: c.DestinationExtension}
}
