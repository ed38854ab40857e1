package mime

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownType = errors.New("unknown mime type")

// First extension in each list is the canonical one.
var extensions = map[string][]string{
	"text/html":                            {"html", "htm", "shtml"},
	"text/css":                             {"css"},
	"text/xml":                             {"xml"},
	"image/gif":                            {"gif"},
	"image/jpeg":                           {"jpeg", "jpg"},
	"application/x-javascript":             {"js"},
	"application/atom+xml":                 {"atom"},
	"application/rss+xml":                  {"rss"},
	"text/mathml":                          {"mml"},
	"text/plain":                           {"txt"},
	"text/vnd.sun.j2me.app-descriptor":     {"jad"},
	"text/vnd.wap.wml":                     {"wml"},
	"text/x-component":                     {"htc"},
	"image/png":                            {"png"},
	"image/tiff":                           {"tif", "tiff"},
	"image/vnd.wap.wbmp":                   {"wbmp"},
	"image/x-icon":                         {"ico"},
	"image/x-jng":                          {"jng"},
	"image/x-ms-bmp":                       {"bmp"},
	"image/svg+xml":                        {"svg"},
	"image/webp":                           {"webp"},
	"application/java-archive":             {"jar", "war", "ear"},
	"application/mac-binhex40":             {"hqx"},
	"application/msword":                   {"doc"},
	"application/pdf":                      {"pdf"},
	"application/postscript":               {"ps", "eps", "ai"},
	"application/rtf":                      {"rtf"},
	"application/vnd.ms-excel":             {"xls"},
	"application/vnd.ms-powerpoint":        {"ppt"},
	"application/vnd.wap.wmlc":             {"wmlc"},
	"application/vnd.google-earth.kml+xml": {"kml"},
	"application/vnd.google-earth.kmz":     {"kmz"},
	"application/x-7z-compressed":          {"7z"},
	"application/x-cocoa":                  {"cco"},
	"application/x-java-archive-diff":      {"jardiff"},
	"application/x-java-jnlp-file":         {"jnlp"},
	"application/x-makeself":               {"run"},
	"application/x-perl":                   {"pl", "pm"},
	"application/x-pilot":                  {"prc", "pdb"},
	"application/x-rar-compressed":         {"rar"},
	"application/x-redhat-package-manager": {"rpm"},
	"application/x-sea":                    {"sea"},
	"application/x-shockwave-flash":        {"swf"},
	"application/x-stuffit":                {"sit"},
	"application/x-tcl":                    {"tcl", "tk"},
	"application/x-x509-ca-cert":           {"der", "pem", "crt"},
	"application/x-xpinstall":              {"xpi"},
	"application/xhtml+xml":                {"xhtml"},
	"application/zip":                      {"zip"},
	"application/octet-stream":             {"bin", "exe", "dll", "deb", "dmg", "eot", "iso", "img", "msi", "msp", "msm"},
	"audio/midi":                           {"mid", "midi", "kar"},
	"audio/mpeg":                           {"mp3"},
	"audio/ogg":                            {"ogg"},
	"audio/x-realaudio":                    {"ra"},
	"video/3gpp":                           {"3gpp", "3gp"},
	"video/mpeg":                           {"mpeg", "mpg"},
	"video/quicktime":                      {"mov"},
	"video/x-flv":                          {"flv"},
	"video/x-mng":                          {"mng"},
	"video/x-ms-asf":                       {"asx", "asf"},
	"video/x-ms-wmv":                       {"wmv"},
	"video/x-msvideo":                      {"avi"},
	"video/mp4":                            {"m4v", "mp4"},
}

// aliases maps types reported by content sniffing onto table entries.
var aliases = map[string]string{
	"application/javascript":   "application/x-javascript",
	"image/bmp":                "image/x-ms-bmp",
	"image/vnd.microsoft.icon": "image/x-icon",
	"application/x-rar":        "application/x-rar-compressed",
	"application/vnd.rar":      "application/x-rar-compressed",
}

func normalize(mimeType string) string {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if a, ok := aliases[t]; ok {
		return a
	}
	return t
}

// LookupAll returns every known extension for mimeType, without the dot.
func LookupAll(mimeType string) ([]string, error) {
	exts, ok := extensions[normalize(mimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, mimeType)
	}
	return append([]string(nil), exts...), nil
}

func Lookup(mimeType string) (string, error) {
	exts, err := LookupAll(mimeType)
	if err != nil {
		return "", err
	}
	return exts[0], nil
}

// HasExtension reports whether name already ends in one of mimeType's extensions.
func HasExtension(name, mimeType string) bool {
	exts, err := LookupAll(mimeType)
	if err != nil {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}
