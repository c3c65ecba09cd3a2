// Package config loads framework configuration the way spec.md §6
// describes it: an embedded set of defaults, optionally overridden by a
// config.properties file, optionally overridden again by environment
// variables (the highest-precedence layer wins). Layering and the
// properties-file format are handled by github.com/spf13/viper; the
// CELIX_AUTO_START_n family of keys is enumerated separately because its
// key set is only known at runtime.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/apache/celix-go/internal/framework"
	"github.com/apache/celix-go/pkg/logging"
)

// File is the on-disk properties file name the loader looks for under the
// storage directory, java.util.Properties-style (key=value, one per line).
const File = "config.properties"

const (
	keyStorage      = "org.osgi.framework.storage"
	keyStorageClean = "org.osgi.framework.storage.clean"
	keyUUID         = "org.osgi.framework.uuid"
	keyLogLevel     = "CELIX_LOGGING_DEFAULT_ACTIVE_LOG_LEVEL"
	autoStartPrefix = "CELIX_AUTO_START_"
)

// Defaults returns the embedded baseline configuration (spec.md §6): a
// storage directory under the process working directory, not cleaned on
// start, no auto-start bundles.
func Defaults() framework.Config {
	return framework.Config{
		StorageDir:   ".cache",
		StorageClean: false,
		AutoStart:    make(map[int][]string),
	}
}

// Load builds a framework.Config by layering, in increasing precedence:
// embedded defaults, the properties file at storageDir/config.properties (if
// present), and environment variables. logLevel receives the resolved
// CELIX_LOGGING_DEFAULT_ACTIVE_LOG_LEVEL value, if any, for callers that
// configure logging before constructing the framework.
func Load(storageDir string) (cfg framework.Config, logLevel string, err error) {
	defaults := Defaults()
	if storageDir != "" {
		defaults.StorageDir = storageDir
	}

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(File, ".properties"))
	v.SetConfigType("properties")
	v.AddConfigPath(defaults.StorageDir)

	v.SetDefault(keyStorage, defaults.StorageDir)
	v.SetDefault(keyStorageClean, defaults.StorageClean)
	v.SetDefault(keyUUID, "")
	v.SetDefault(keyLogLevel, "")

	if readErr := v.ReadInConfig(); readErr != nil {
		if _, notFound := readErr.(viper.ConfigFileNotFoundError); !notFound {
			return framework.Config{}, "", readErr
		}
	} else {
		logging.Debug("Config", "loaded configuration from %s", v.ConfigFileUsed())
	}

	cfg = framework.Config{
		StorageDir:   v.GetString(keyStorage),
		StorageClean: v.GetBool(keyStorageClean),
		UUID:         v.GetString(keyUUID),
		AutoStart:    autoStartFromEnv(readAutoStartProperties(defaults.StorageDir)),
	}
	logLevel = v.GetString(keyLogLevel)

	// Environment variables take precedence over both defaults and the
	// properties file. Viper's AutomaticEnv only matches upper-cased key
	// names, which would silently miss the dotted OSGi-style keys, so the
	// four scalar overrides (the three OSGi keys and the log level) are
	// applied explicitly by literal name.
	if s, ok := os.LookupEnv(keyStorage); ok && s != "" {
		cfg.StorageDir = s
	}
	if s, ok := os.LookupEnv(keyStorageClean); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.StorageClean = b
		}
	}
	if s, ok := os.LookupEnv(keyUUID); ok && s != "" {
		cfg.UUID = s
	}
	if s, ok := os.LookupEnv(keyLogLevel); ok && s != "" {
		logLevel = s
	}

	return cfg, logLevel, nil
}

// readAutoStartProperties re-scans the properties file, if any, for
// CELIX_AUTO_START_n keys: viper's key space is fixed at SetDefault time, so
// indexed keys whose count isn't known ahead of time are collected by hand.
func readAutoStartProperties(storageDir string) map[string]string {
	props := make(map[string]string)
	data, err := os.ReadFile(storageDir + string(os.PathSeparator) + File)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			idx := strings.IndexByte(line, '=')
			if idx < 0 {
				continue
			}
			key := strings.TrimSpace(line[:idx])
			if strings.HasPrefix(key, autoStartPrefix) {
				props[key] = strings.TrimSpace(line[idx+1:])
			}
		}
	}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, autoStartPrefix) {
			continue
		}
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			props[kv[:idx]] = kv[idx+1:]
		}
	}
	return props
}

// autoStartFromEnv converts the CELIX_AUTO_START_n=<space separated URLs>
// properties into an ordinal-keyed map, in ordinal order.
func autoStartFromEnv(props map[string]string) map[int][]string {
	ordinals := make([]int, 0, len(props))
	for key := range props {
		n, err := strconv.Atoi(strings.TrimPrefix(key, autoStartPrefix))
		if err != nil {
			continue
		}
		ordinals = append(ordinals, n)
	}
	sort.Ints(ordinals)

	out := make(map[int][]string, len(ordinals))
	for _, n := range ordinals {
		fields := strings.Fields(props[autoStartPrefix+strconv.Itoa(n)])
		if len(fields) > 0 {
			out[n] = fields
		}
	}
	return out
}
