package domain

// Setting axis names. Every other key of a matrix cell names a recipe option.
const (
	SettingOS              = "os"
	SettingArch            = "arch"
	SettingCompiler        = "compiler"
	SettingCompilerVersion = "compiler.version"
	SettingCompilerLibcxx  = "compiler.libcxx"
	SettingBuildType       = "build_type"
)

// OS is a target operating system.
type OS string

// Supported operating systems.
const (
	OSLinux   OS = "Linux"
	OSWindows OS = "Windows"
	OSMacos   OS = "Macos"
	OSFreeBSD OS = "FreeBSD"
)

// Arch is a target CPU architecture.
type Arch string

// Supported architectures.
const (
	ArchX86    Arch = "x86"
	ArchX86_64 Arch = "x86_64" //nolint:revive // matches the setting value
	ArchArmv7  Arch = "armv7"
	ArchArmv8  Arch = "armv8"
)

// BuildType selects optimized or debug binaries.
type BuildType string

// Supported build types.
const (
	BuildTypeDebug   BuildType = "Debug"
	BuildTypeRelease BuildType = "Release"
)

// Compiler identifies the toolchain a configuration is built with.
type Compiler struct {
	Name    string
	Version string
	// Libcxx is empty when the recipe does not link a C++ standard library.
	Libcxx string
}

// String renders the compiler as name[-version][/libcxx].
func (c Compiler) String() string {
	s := c.Name
	if c.Version != "" {
		s += "-" + c.Version
	}
	if c.Libcxx != "" {
		s += "/" + c.Libcxx
	}
	return s
}

// SettingNames lists the setting axes in canonical order.
func SettingNames() []string {
	return []string{
		SettingOS,
		SettingArch,
		SettingCompiler,
		SettingCompilerVersion,
		SettingCompilerLibcxx,
		SettingBuildType,
	}
}

// IsSetting reports whether name is a setting axis rather than an option.
func IsSetting(name string) bool {
	switch name {
	case SettingOS, SettingArch, SettingCompiler, SettingCompilerVersion, SettingCompilerLibcxx, SettingBuildType:
		return true
	default:
		return false
	}
}

// DefaultSettings returns the global value domain of every enumerated setting.
// compiler.version is open-ended and therefore absent.
func DefaultSettings() map[string][]string {
	return map[string][]string{
		SettingOS:             {string(OSLinux), string(OSWindows), string(OSMacos), string(OSFreeBSD)},
		SettingArch:           {string(ArchX86), string(ArchX86_64), string(ArchArmv7), string(ArchArmv8)},
		SettingCompiler:       {"gcc", "clang", "apple-clang", "Visual Studio"},
		SettingCompilerLibcxx: {"libstdc++", "libstdc++11", "libc++"},
		SettingBuildType:      {string(BuildTypeDebug), string(BuildTypeRelease)},
	}
}
