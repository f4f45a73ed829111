package config

// RecipeFile represents the structure of a recipe descriptor.
type RecipeFile struct {
	Schema       int                 `yaml:"schema"`
	Name         string              `yaml:"name"`
	Version      string              `yaml:"version"`
	Description  string              `yaml:"description"`
	License      string              `yaml:"license"`
	Homepage     string              `yaml:"homepage"`
	URL          string              `yaml:"url"`
	Settings     map[string][]string `yaml:"settings"`
	Options      []OptionDTO         `yaml:"options"`
	Rules        []RuleDTO           `yaml:"rules"`
	Requirements []RequirementDTO    `yaml:"requirements"`
	Source       SourceDTO           `yaml:"source"`
	Patches      []PatchDTO          `yaml:"patches"`
	Build        BuildDTO            `yaml:"build"`
	Package      PackageDTO          `yaml:"package"`
	PackageInfo  PackageInfoDTO      `yaml:"package_info"`
	Test         *TestDTO            `yaml:"test"`
}

// OptionDTO declares an option domain.
type OptionDTO struct {
	Name    string   `yaml:"name"`
	Values  []string `yaml:"values"`
	Default string   `yaml:"default"`
}

// RuleDTO represents a normalization rule.
type RuleDTO struct {
	When       string            `yaml:"when"`
	Remove     []string          `yaml:"remove"`
	Force      map[string]string `yaml:"force"`
	Clear      []string          `yaml:"clear"`
	DropLibcxx bool              `yaml:"drop_libcxx"`
}

// RequirementDTO represents a conditional build tool.
type RequirementDTO struct {
	Ref    string `yaml:"ref"`
	Binary string `yaml:"binary"`
	When   string `yaml:"when"`
}

// SourceDTO locates the source archive. URL and Strip are templates.
type SourceDTO struct {
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum"`
	Strip    string `yaml:"strip"`
}

// PatchDTO represents a string replacement patch.
type PatchDTO struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Old  string `yaml:"old"`
	New  string `yaml:"new"`
	When string `yaml:"when"`
}

// BuildDTO holds the strategy selection and its arguments.
type BuildDTO struct {
	Strategies    []StrategyDTO `yaml:"strategies"`
	Default       string        `yaml:"default"`
	ConfigureArgs []ArgsDTO     `yaml:"configure_args"`
	CMakeDefines  []DefinesDTO  `yaml:"cmake_defines"`
	Env           []EnvDTO      `yaml:"env"`
	PICOption     string        `yaml:"pic_option"`
	Jobs          int           `yaml:"jobs"`
}

// StrategyDTO selects a strategy when its predicate holds.
type StrategyDTO struct {
	When string `yaml:"when"`
	Use  string `yaml:"use"`
}

// ArgsDTO contributes configure arguments.
type ArgsDTO struct {
	When string   `yaml:"when"`
	Args []string `yaml:"args"`
}

// DefinesDTO contributes CMake definitions.
type DefinesDTO struct {
	When    string            `yaml:"when"`
	Defines map[string]string `yaml:"defines"`
}

// EnvDTO contributes environment variables.
type EnvDTO struct {
	When string            `yaml:"when"`
	Vars map[string]string `yaml:"vars"`
}

// PackageDTO describes the package layout.
type PackageDTO struct {
	Copy    []CopyDTO   `yaml:"copy"`
	Exclude []string    `yaml:"exclude"`
	Expect  []ExpectDTO `yaml:"expect"`
}

// CopyDTO represents a copy rule.
type CopyDTO struct {
	Pattern  string `yaml:"pattern"`
	Src      string `yaml:"src"`
	Dst      string `yaml:"dst"`
	KeepPath bool   `yaml:"keep_path"`
	When     string `yaml:"when"`
}

// ExpectDTO lists files the install step must produce.
type ExpectDTO struct {
	When  string   `yaml:"when"`
	Files []string `yaml:"files"`
}

// PackageInfoDTO describes the consumer-facing package metadata.
type PackageInfoDTO struct {
	Libs        []LibsDTO `yaml:"libs"`
	IncludeDirs []string  `yaml:"include_dirs"`
	LibDirs     []string  `yaml:"lib_dirs"`
	BinDirs     []string  `yaml:"bin_dirs"`
}

// LibsDTO selects library names. The first matching entry wins.
type LibsDTO struct {
	When string   `yaml:"when"`
	Libs []string `yaml:"libs"`
}

// TestDTO describes the consumer that checks a freshly collected package.
// Dir is resolved against the recipe file.
type TestDTO struct {
	Dir      string            `yaml:"dir"`
	When     string            `yaml:"when"`
	Commands [][]string        `yaml:"commands"`
	Env      map[string]string `yaml:"env"`
}

// MatrixFile represents the structure of a matrix spec.
type MatrixFile struct {
	Recipe   string    `yaml:"recipe"`
	Axes     []AxisDTO `yaml:"axes"`
	Exclude  []string  `yaml:"exclude"`
	Parallel int       `yaml:"parallel"`
	Build    string    `yaml:"build"`
}

// AxisDTO represents one matrix axis.
type AxisDTO struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}
