package domain

import "slices"

// RecipeSchemaVersion is the descriptor schema version this build understands.
const RecipeSchemaVersion = 1

// RecipeMeta carries the identity and descriptive metadata of a recipe.
type RecipeMeta struct {
	Name        string
	Version     string
	Description string
	License     string
	Homepage    string
	URL         string
}

// Ref returns name/version.
func (m RecipeMeta) Ref() string {
	return m.Name + "/" + m.Version
}

// OptionDomain declares a recipe option, its allowed values and its default.
type OptionDomain struct {
	Name    string
	Values  []string
	Default string
}

// Allows reports whether value belongs to the option's domain.
func (o OptionDomain) Allows(value string) bool {
	return slices.Contains(o.Values, value)
}

// IsBool reports whether the option is a plain true/false switch.
func (o OptionDomain) IsBool() bool {
	return len(o.Values) == 2 && o.Allows("true") && o.Allows("false")
}

// NormalizationRule adjusts a configuration when its predicate holds.
type NormalizationRule struct {
	// When selects the configurations the rule applies to. Nil matches all.
	When Predicate
	// Remove lists options that are dropped from the configuration.
	Remove []string
	// Force pins options to a value.
	Force map[string]string
	// Clear lists optional settings (compiler.version, compiler.libcxx) that are reset.
	Clear []string
}

// BuildRequirement is an external tool needed only on some configurations.
type BuildRequirement struct {
	// Ref is the tool reference, e.g. nasm/2.12.02.
	Ref string
	// Binary is the executable looked up for the tool.
	Binary string
	When   Predicate
}

// Recipe is a loaded package recipe. It is immutable after loading and is
// shared across all runs of a matrix.
type Recipe struct {
	Meta   RecipeMeta
	Schema int
	// Settings narrows the global setting domains. Missing keys accept the global domain.
	Settings     map[string][]string
	Options      []OptionDomain
	Rules        []NormalizationRule
	Requirements []BuildRequirement
	Hooks        Hooks
}

// Option returns the declared option domain by name.
func (r *Recipe) Option(name string) (OptionDomain, bool) {
	for _, o := range r.Options {
		if o.Name == name {
			return o, true
		}
	}
	return OptionDomain{}, false
}

// RequirementsFor returns the build requirements that apply to cfg.
func (r *Recipe) RequirementsFor(cfg Configuration) ([]BuildRequirement, error) {
	values := cfg.Values()
	var out []BuildRequirement
	for _, req := range r.Requirements {
		ok, err := Matches(req.When, values)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, req)
		}
	}
	return out, nil
}

// Hooks are the configuration-parameterized parts of a recipe.
// Each hook is a pure function of the configuration.
type Hooks struct {
	Source      func(cfg Configuration) (SourceSpec, error)
	Patches     func(cfg Configuration) ([]Patch, error)
	Branch      func(cfg Configuration) (BranchTag, error)
	Build       func(cfg Configuration) (BuildPlan, error)
	Package     func(cfg Configuration) (PackageLayout, error)
	PackageInfo func(cfg Configuration) (PackageInfo, error)
	// Test is optional. A nil hook or an empty PackageTest skips the check.
	Test func(cfg Configuration) (PackageTest, error)
}

// BranchTag names a build-strategy variant.
type BranchTag string

// Built-in build strategies.
const (
	StrategyConfigureMake BranchTag = "configure-make"
	StrategyCMake         BranchTag = "cmake"
)

// SourceSpec describes where a recipe's sources come from.
type SourceSpec struct {
	URL string
	// Checksum is an optional content digest in algorithm:hex form.
	Checksum string
	// Strip is the top-level archive directory that becomes the source root.
	Strip string
}

// Patch is a named string replacement on one file of the prepared source tree.
type Patch struct {
	Name string
	// File is relative to the source root.
	File string
	Old  string
	New  string
}

// BuildPlan holds the strategy arguments derived from a configuration.
type BuildPlan struct {
	BuildType BuildType
	// ConfigureArgs are passed to ./configure by the configure-make strategy.
	ConfigureArgs []string
	// Defines are passed as -D flags by the cmake strategy.
	Defines map[string]string
	// PIC requests position independent code.
	PIC  bool
	Env  map[string]string
	Jobs int
}

// CopyRule moves install outputs into the package layout.
type CopyRule struct {
	// Pattern is matched against the file's base name.
	Pattern string
	// Src restricts the rule to files below this install subdirectory.
	Src string
	Dst string
	// KeepPath preserves the path below Src instead of flattening.
	KeepPath bool
}

// PackageLayout tells the packager what to collect from the install prefix.
type PackageLayout struct {
	Copy []CopyRule
	// Exclude lists install-relative globs (or dir/ prefixes) that are never packaged.
	Exclude []string
	// Expect lists install-relative files the install step must have produced.
	Expect []string
}

// PackageTest builds and runs a small consumer against a freshly packaged
// artifact before it is published.
type PackageTest struct {
	// Dir holds the consumer sources. It is copied into the workspace.
	Dir      string
	Commands [][]string
	Env      map[string]string
}

// Empty reports whether there is nothing to run.
func (t PackageTest) Empty() bool {
	return len(t.Commands) == 0
}

// PackageInfo is the consumer-facing metadata of a package.
type PackageInfo struct {
	Libs        []string `json:"libs,omitempty"`
	Shared      bool     `json:"shared"`
	IncludeDirs []string `json:"include_dirs,omitempty"`
	LibDirs     []string `json:"lib_dirs,omitempty"`
	BinDirs     []string `json:"bin_dirs,omitempty"`
}
