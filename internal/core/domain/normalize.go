package domain

import (
	"maps"
	"slices"

	"go.trai.ch/zerr"
)

var requiredSettings = []string{SettingOS, SettingArch, SettingCompiler, SettingBuildType}

// Normalize validates a raw matrix cell against the recipe's domains and
// applies the recipe's rules in declaration order.
// It is pure: equal input yields an equal Configuration.
func (r *Recipe) Normalize(raw RawAxes) (Configuration, error) {
	values := make(map[string]string, len(raw)+len(r.Options))

	for _, name := range requiredSettings {
		v, ok := raw[name]
		if !ok || v == "" {
			return Configuration{}, &InvalidConfigurationError{Field: name, Reason: "setting is required"}
		}
	}

	for _, name := range SettingNames() {
		v, ok := raw[name]
		if !ok || v == "" {
			continue
		}
		if err := r.checkSetting(name, v); err != nil {
			return Configuration{}, err
		}
		values[name] = v
	}

	for _, name := range slices.Sorted(maps.Keys(raw)) {
		if IsSetting(name) {
			continue
		}
		v := raw[name]
		opt, ok := r.Option(name)
		if !ok {
			return Configuration{}, &InvalidConfigurationError{Field: name, Value: v, Reason: "unknown option"}
		}
		if !opt.Allows(v) {
			return Configuration{}, &InvalidConfigurationError{Field: name, Value: v, Reason: "value not in option domain"}
		}
		values[name] = v
	}

	for _, opt := range r.Options {
		if _, ok := values[opt.Name]; !ok {
			values[opt.Name] = opt.Default
		}
	}

	for i, rule := range r.Rules {
		if err := r.applyRule(rule, values); err != nil {
			return Configuration{}, zerr.With(zerr.Wrap(err, "normalization rule failed"), "rule", i)
		}
	}

	return r.build(values), nil
}

func (r *Recipe) checkSetting(name, value string) error {
	allowed, ok := r.Settings[name]
	if !ok || len(allowed) == 0 {
		allowed, ok = DefaultSettings()[name]
		if !ok {
			return nil
		}
	}
	if !slices.Contains(allowed, value) {
		return &InvalidConfigurationError{Field: name, Value: value, Reason: "value not in setting domain"}
	}
	return nil
}

func (r *Recipe) applyRule(rule NormalizationRule, values map[string]string) error {
	ok, err := Matches(rule.When, values)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	for _, name := range rule.Clear {
		delete(values, name)
	}
	for _, name := range rule.Remove {
		delete(values, name)
	}
	for name, v := range rule.Force {
		opt, ok := r.Option(name)
		if !ok {
			return &InvalidConfigurationError{Field: name, Value: v, Reason: "rule forces an unknown option"}
		}
		if !opt.Allows(v) {
			return &InvalidConfigurationError{Field: name, Value: v, Reason: "rule forces a value outside the option domain"}
		}
		values[name] = v
	}
	return nil
}

func (r *Recipe) build(values map[string]string) Configuration {
	options := make(map[string]string)
	for name, v := range values {
		if !IsSetting(name) {
			options[name] = v
		}
	}
	return Configuration{
		os:   OS(values[SettingOS]),
		arch: Arch(values[SettingArch]),
		compiler: Compiler{
			Name:    values[SettingCompiler],
			Version: values[SettingCompilerVersion],
			Libcxx:  values[SettingCompilerLibcxx],
		},
		buildType: BuildType(values[SettingBuildType]),
		options:   options,
	}
}
