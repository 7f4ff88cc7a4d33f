package config

import "strings"

// AppVersion is the version of the service, set at build time with -ldflags.
var AppVersion = "0.1.0"

// AppName is the name of the service.
const AppName = "MolaYeri"

// LogWinSubDir is the sub directory for the log files on windows.
var LogWinSubDir = AppName

// LogSubDir is the sub directory for the log files.
var LogSubDir = "." + strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// ConfigFileName is the name of the YAML config file inside the config directory.
const ConfigFileName = "config.yaml"

// Environment variables that override values from the config file.
const (
	EnvConfigPath      = "MOLAYERI_CONFIG"
	EnvServerAddr      = "MOLAYERI_ADDR"
	EnvStorageDriver   = "MOLAYERI_STORAGE_DRIVER"
	EnvS3Endpoint      = "MOLAYERI_S3_ENDPOINT"
	EnvS3AccessKeyID   = "MOLAYERI_S3_ACCESS_KEY_ID"
	EnvS3SecretKey     = "MOLAYERI_S3_SECRET_ACCESS_KEY"
	EnvS3Bucket        = "MOLAYERI_S3_BUCKET"
	EnvS3Region        = "MOLAYERI_S3_REGION"
	EnvPublicBaseURL   = "MOLAYERI_PUBLIC_BASE_URL"
	EnvSkipUpdateCheck = "MOLAYERI_SKIP_UPDATE_CHECK"
)
