package config

import "github.com/spf13/viper"

// Configuration keys
const (
	KeyRoot             = "root"
	KeyWatchFolders     = "watch_folders"
	KeySettleSeconds    = "settle_seconds"
	KeyBigFileThreshold = "big_file_threshold"
	KeyBigFileRouting   = "big_file_routing"
	KeyBigFilesCategory = "big_files_category"
	KeyDefaultCategory  = "default_category"
	KeyIgnoreExtensions = "ignore_extensions"
	KeyCategories       = "categories"
	KeyHashContent      = "hash_content"
	KeyDB               = "db"
	KeyLogDir           = "log_dir"
)

const (
	DefaultRoot             = "~/Sorted"
	DefaultSettleSeconds    = 5
	DefaultBigFileThreshold = int64(1 << 30)
	DefaultBigFilesCategory = "Big Files"
	DefaultUnsortedCategory = "Unsorted"
)

// DefaultIgnoreExtensions are partial-download and temp markers
var DefaultIgnoreExtensions = []string{".crdownload", ".part", ".partial", ".download", ".tmp"}

// SetDefaults registers defaults on v. Calling it more than once is harmless.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyRoot, DefaultRoot)
	v.SetDefault(KeySettleSeconds, DefaultSettleSeconds)
	v.SetDefault(KeyBigFileThreshold, DefaultBigFileThreshold)
	v.SetDefault(KeyBigFileRouting, false)
	v.SetDefault(KeyBigFilesCategory, DefaultBigFilesCategory)
	v.SetDefault(KeyDefaultCategory, DefaultUnsortedCategory)
	v.SetDefault(KeyIgnoreExtensions, DefaultIgnoreExtensions)
	v.SetDefault(KeyHashContent, false)
}

// DefaultCategories is the built-in rule table, in match order
func DefaultCategories() []CategoryRule {
	return []CategoryRule{
		{Category: "Documents", Extensions: []string{"pdf", "doc", "docx", "odt", "rtf", "txt", "md", "xls", "xlsx", "ods", "csv", "ppt", "pptx", "odp"}},
		{Category: "Images", Extensions: []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "svg", "heic", "tif", "tiff", "raw"}},
		{Category: "Videos", Extensions: []string{"mp4", "mkv", "mov", "avi", "webm", "wmv", "m4v"}},
		{Category: "Audio", Extensions: []string{"mp3", "flac", "wav", "m4a", "aac", "ogg", "opus"}},
		{Category: "Archives", Extensions: []string{"zip", "rar", "7z", "tar", "gz", "bz2", "xz", "tgz"}},
		{Category: "Executables", Extensions: []string{"exe", "msi", "dmg", "pkg", "deb", "rpm", "appimage", "apk"}},
		{Category: "Code", Extensions: []string{"go", "py", "js", "ts", "java", "c", "cpp", "h", "rs", "sh", "json", "yaml", "yml", "xml", "html", "css"}},
		{Category: "Fonts", Extensions: []string{"ttf", "otf", "woff", "woff2"}},
		{Category: "Documents", Subfolder: "Ebooks", Extensions: []string{"epub", "mobi", "azw3"}},
	}
}
