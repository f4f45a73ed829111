package domain

import (
	"maps"
	"slices"
	"strings"
)

// Configuration is one normalized point of the build matrix.
// It is immutable: accessors return copies and there are no setters.
type Configuration struct {
	os        OS
	arch      Arch
	compiler  Compiler
	buildType BuildType
	options   map[string]string
}

// NewConfiguration builds a Configuration from already validated values.
// Use Recipe.Normalize to obtain a Configuration from a raw matrix cell.
func NewConfiguration(os OS, arch Arch, compiler Compiler, buildType BuildType, options map[string]string) Configuration {
	return Configuration{
		os:        os,
		arch:      arch,
		compiler:  compiler,
		buildType: buildType,
		options:   maps.Clone(options),
	}
}

// OS returns the target operating system.
func (c Configuration) OS() OS { return c.os }

// Arch returns the target architecture.
func (c Configuration) Arch() Arch { return c.arch }

// Compiler returns the compiler setting.
func (c Configuration) Compiler() Compiler { return c.compiler }

// BuildType returns the build type.
func (c Configuration) BuildType() BuildType { return c.buildType }

// Has reports whether the option is present. Options removed by a rule are absent.
func (c Configuration) Has(option string) bool {
	_, ok := c.options[option]
	return ok
}

// Option returns the option value and whether it is present.
func (c Configuration) Option(option string) (string, bool) {
	v, ok := c.options[option]
	return v, ok
}

// Enabled reports whether a boolean option is present and true.
func (c Configuration) Enabled(option string) bool {
	v, ok := c.options[option]
	return ok && v == "true"
}

// Options returns a copy of the option values.
func (c Configuration) Options() map[string]string {
	return maps.Clone(c.options)
}

// Values flattens settings and options into a single map keyed by axis name.
// Empty optional settings are omitted.
func (c Configuration) Values() map[string]string {
	values := make(map[string]string, len(c.options)+6)
	values[SettingOS] = string(c.os)
	values[SettingArch] = string(c.arch)
	values[SettingCompiler] = c.compiler.Name
	if c.compiler.Version != "" {
		values[SettingCompilerVersion] = c.compiler.Version
	}
	if c.compiler.Libcxx != "" {
		values[SettingCompilerLibcxx] = c.compiler.Libcxx
	}
	values[SettingBuildType] = string(c.buildType)
	maps.Copy(values, c.options)
	return values
}

// Key returns the canonical identity of the configuration.
// Settings come first in a fixed order, options follow sorted by name.
func (c Configuration) Key() string {
	var b strings.Builder
	b.WriteString("os=")
	b.WriteString(string(c.os))
	b.WriteString(";arch=")
	b.WriteString(string(c.arch))
	b.WriteString(";compiler=")
	b.WriteString(c.compiler.String())
	b.WriteString(";build_type=")
	b.WriteString(string(c.buildType))

	for _, name := range slices.Sorted(maps.Keys(c.options)) {
		b.WriteByte(';')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(c.options[name])
	}
	return b.String()
}

// Equal reports whether both configurations have the same settings and options.
func (c Configuration) Equal(other Configuration) bool {
	return c.os == other.os &&
		c.arch == other.arch &&
		c.compiler == other.compiler &&
		c.buildType == other.buildType &&
		maps.Equal(c.options, other.options)
}

// String implements fmt.Stringer.
func (c Configuration) String() string {
	return c.Key()
}

// RawAxes is an unvalidated matrix cell: axis name to requested value.
type RawAxes map[string]string

// String renders the cell with sorted keys.
func (r RawAxes) String() string {
	parts := make([]string, 0, len(r))
	for _, k := range slices.Sorted(maps.Keys(r)) {
		parts = append(parts, k+"="+r[k])
	}
	return strings.Join(parts, ";")
}
