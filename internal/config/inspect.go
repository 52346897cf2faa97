package config

import "fmt"

// KeyInfo is one row of `optilead config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// ShowAll lists every non-secret key with its effective value in cfg.
func ShowAll(cfg Config) []KeyInfo {
	infos := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		infos = append(infos, KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg))})
	}
	return infos
}

// ValidKeys returns the keys `config set` accepts.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// SetKey type-checks value and persists it to the config file.
func SetKey(key, value string) error {
	return setKeyIn(openJSONFile(configFilePath()), key, value)
}

func setKeyIn(src Source, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	v, err := s.coerce(value)
	if err != nil {
		return err
	}
	return src.Store(key, v)
}
