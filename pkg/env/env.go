// Package env reads the process environment: machine identity and
// ROMI_* overrides, optionally loaded from .env files.
package env

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name looked up by this package.
const Prefix = "ROMI_"

const appID = "romi"

// idLen is the length of the robot id derived from the machine id.
const idLen = 12

// MachineID retrieves an ID identifying the machine. The raw machine id is
// hashed with the app id so it is not leaked through telemetry topics.
// Falls back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && len(id) >= idLen {
		return id[:idLen]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "romi"
}

// LoadFiles loads .env style files into the process environment.
// Missing files are skipped and existing variables are never overridden.
func LoadFiles(files ...string) error {
	for _, fn := range files {
		if err := godotenv.Load(fn); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		glog.V(1).Infof("env: loaded %s", fn)
	}
	return nil
}

// Lookup returns ROMI_<key>.
func Lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(Prefix + strings.ToUpper(key))
	if ok && val == "" {
		return "", false
	}
	return val, ok
}

// String overrides *v with ROMI_<key> if set.
func String(key string, v *string) {
	if val, ok := Lookup(key); ok {
		*v = val
	}
}

// Float overrides *v with ROMI_<key> if set and valid.
func Float(key string, v *float64) {
	if val, ok := Lookup(key); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			glog.Warningf("env: %s%s: %v", Prefix, key, err)
			return
		}
		*v = f
	}
}

// Bool overrides *v with ROMI_<key> if set and valid.
func Bool(key string, v *bool) {
	if val, ok := Lookup(key); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			glog.Warningf("env: %s%s: %v", Prefix, key, err)
			return
		}
		*v = b
	}
}

// Duration overrides *v with ROMI_<key> if set and valid.
func Duration(key string, v *time.Duration) {
	if val, ok := Lookup(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			glog.Warningf("env: %s%s: %v", Prefix, key, err)
			return
		}
		*v = d
	}
}
