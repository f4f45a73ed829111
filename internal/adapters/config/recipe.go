package config

import (
	_ "crypto/sha256" // registers the digest algorithm for checksum validation
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// versionPattern accepts upstream release strings such as 1.5.2, 2.12.02 and 1.1.1k.
var versionPattern = regexp.MustCompile(`^v?[0-9][0-9A-Za-z.+_-]*$`)

// templateData is the value source templates are rendered with.
type templateData struct {
	Name      string
	Version   string
	OS        string
	Arch      string
	BuildType string
	Options   map[string]string
}

func newTemplateData(meta domain.RecipeMeta, cfg domain.Configuration) templateData {
	return templateData{
		Name:      meta.Name,
		Version:   meta.Version,
		OS:        string(cfg.OS()),
		Arch:      string(cfg.Arch()),
		BuildType: string(cfg.BuildType()),
		Options:   cfg.Options(),
	}
}

// compiler turns descriptor fields into predicates and templates.
type compiler struct {
	scope Scope
	// dir is the directory holding the recipe file.
	dir string
}

func (c *compiler) when(field, src string) (domain.Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	p, err := CompilePredicate(src, c.scope)
	if err != nil {
		return nil, zerr.With(err, "field", field)
	}
	return p, nil
}

func (c *compiler) template(field, src string) (*template.Template, error) {
	t, err := template.New(field).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidRecipe, err.Error()), "field", field)
	}
	return t, nil
}

func render(t *template.Template, data templateData) (string, error) {
	if t == nil {
		return "", nil
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrInvalidRecipe, err.Error()), "template", t.Name())
	}
	return b.String(), nil
}

func invalidRecipe(reason, field string) error {
	return zerr.With(zerr.Wrap(domain.ErrInvalidRecipe, reason), "field", field)
}

func matches(p domain.Predicate, cfg domain.Configuration) (bool, error) {
	return domain.Matches(p, cfg.Values())
}

func buildRecipe(file *RecipeFile, dir string) (*domain.Recipe, error) {
	if file.Schema != domain.RecipeSchemaVersion {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedSchema, "unknown schema version"), "schema", file.Schema)
	}
	if file.Name == "" {
		return nil, invalidRecipe("name is required", "name")
	}
	if !versionPattern.MatchString(file.Version) {
		return nil, zerr.With(invalidRecipe("version must start with a digit and contain no separators", "version"), "version", file.Version)
	}

	recipe := &domain.Recipe{
		Meta: domain.RecipeMeta{
			Name:        file.Name,
			Version:     file.Version,
			Description: file.Description,
			License:     file.License,
			Homepage:    file.Homepage,
			URL:         file.URL,
		},
		Schema: file.Schema,
	}

	var err error
	if recipe.Settings, err = buildSettings(file.Settings); err != nil {
		return nil, err
	}
	if recipe.Options, err = buildOptions(file.Options); err != nil {
		return nil, err
	}

	c := &compiler{scope: recipeScope(recipe), dir: dir}

	if recipe.Rules, err = c.rules(recipe, file.Rules); err != nil {
		return nil, err
	}
	if recipe.Requirements, err = c.requirements(file.Requirements); err != nil {
		return nil, err
	}
	if recipe.Hooks, err = c.hooks(recipe, file); err != nil {
		return nil, err
	}
	return recipe, nil
}

func buildSettings(in map[string][]string) (map[string][]string, error) {
	defaults := domain.DefaultSettings()
	out := make(map[string][]string, len(in))
	for _, name := range slices.Sorted(maps.Keys(in)) {
		if !domain.IsSetting(name) {
			return nil, invalidRecipe("unknown setting", "settings."+name)
		}
		global, enumerated := defaults[name]
		for _, v := range in[name] {
			if enumerated && !slices.Contains(global, v) {
				return nil, zerr.With(invalidRecipe("value outside the global setting domain", "settings."+name), "value", v)
			}
		}
		out[name] = slices.Clone(in[name])
	}
	return out, nil
}

func buildOptions(in []OptionDTO) ([]domain.OptionDomain, error) {
	out := make([]domain.OptionDomain, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, dto := range in {
		field := "options." + dto.Name
		switch {
		case dto.Name == "":
			return nil, invalidRecipe("option name is required", "options")
		case domain.IsSetting(dto.Name):
			return nil, invalidRecipe("option shadows a setting", field)
		case len(dto.Values) == 0:
			return nil, invalidRecipe("option declares no values", field)
		case !slices.Contains(dto.Values, dto.Default):
			return nil, zerr.With(invalidRecipe("default is not an allowed value", field), "default", dto.Default)
		}
		if _, dup := seen[dto.Name]; dup {
			return nil, invalidRecipe("duplicate option", field)
		}
		seen[dto.Name] = struct{}{}
		out = append(out, domain.OptionDomain{Name: dto.Name, Values: slices.Clone(dto.Values), Default: dto.Default})
	}
	return out, nil
}

func recipeScope(r *domain.Recipe) Scope {
	scope := Scope{Axes: domain.SettingNames()}
	for name, values := range domain.DefaultSettings() {
		if narrowed, ok := r.Settings[name]; ok && len(narrowed) > 0 {
			values = narrowed
		}
		scope.Values = append(scope.Values, values...)
	}
	for _, opt := range r.Options {
		scope.Axes = append(scope.Axes, opt.Name)
		scope.Values = append(scope.Values, opt.Values...)
	}
	return scope
}

func (c *compiler) rules(r *domain.Recipe, in []RuleDTO) ([]domain.NormalizationRule, error) {
	out := make([]domain.NormalizationRule, 0, len(in))
	for i, dto := range in {
		when, err := c.when("rules.when", dto.When)
		if err != nil {
			return nil, zerr.With(err, "rule", i)
		}
		for _, name := range dto.Remove {
			if _, ok := r.Option(name); !ok {
				return nil, zerr.With(invalidRecipe("rule removes an unknown option", "rules.remove"), "option", name)
			}
		}
		for _, name := range slices.Sorted(maps.Keys(dto.Force)) {
			opt, ok := r.Option(name)
			if !ok || !opt.Allows(dto.Force[name]) {
				return nil, zerr.With(invalidRecipe("rule forces an unknown option value", "rules.force"), "option", name)
			}
		}

		cleared := slices.Clone(dto.Clear)
		if dto.DropLibcxx && !slices.Contains(cleared, domain.SettingCompilerLibcxx) {
			cleared = append(cleared, domain.SettingCompilerLibcxx)
		}
		for _, name := range cleared {
			if name != domain.SettingCompilerVersion && name != domain.SettingCompilerLibcxx {
				return nil, zerr.With(invalidRecipe("only optional settings can be cleared", "rules.clear"), "setting", name)
			}
		}

		out = append(out, domain.NormalizationRule{
			When:   when,
			Remove: slices.Clone(dto.Remove),
			Force:  maps.Clone(dto.Force),
			Clear:  cleared,
		})
	}
	return out, nil
}

func (c *compiler) requirements(in []RequirementDTO) ([]domain.BuildRequirement, error) {
	out := make([]domain.BuildRequirement, 0, len(in))
	for _, dto := range in {
		if dto.Ref == "" {
			return nil, invalidRecipe("requirement reference is required", "requirements.ref")
		}
		when, err := c.when("requirements.when", dto.When)
		if err != nil {
			return nil, zerr.With(err, "requirement", dto.Ref)
		}
		out = append(out, domain.BuildRequirement{Ref: dto.Ref, Binary: dto.Binary, When: when})
	}
	return out, nil
}

func (c *compiler) hooks(r *domain.Recipe, file *RecipeFile) (domain.Hooks, error) {
	var hooks domain.Hooks
	var err error

	if hooks.Source, err = c.sourceHook(r.Meta, file.Source); err != nil {
		return hooks, err
	}
	if hooks.Patches, err = c.patchesHook(file.Patches); err != nil {
		return hooks, err
	}
	if hooks.Branch, err = c.branchHook(file.Build); err != nil {
		return hooks, err
	}
	if hooks.Build, err = c.buildHook(r, file.Build); err != nil {
		return hooks, err
	}
	if hooks.Package, err = c.packageHook(file.Package); err != nil {
		return hooks, err
	}
	if hooks.PackageInfo, err = c.packageInfoHook(file.PackageInfo); err != nil {
		return hooks, err
	}
	if file.Test != nil {
		if hooks.Test, err = c.testHook(*file.Test); err != nil {
			return hooks, err
		}
	}
	return hooks, nil
}

func (c *compiler) sourceHook(meta domain.RecipeMeta, dto SourceDTO) (func(domain.Configuration) (domain.SourceSpec, error), error) {
	if dto.URL == "" {
		return nil, invalidRecipe("source url is required", "source.url")
	}
	if dto.Checksum != "" {
		if _, err := digest.Parse(dto.Checksum); err != nil {
			return nil, zerr.With(invalidRecipe("checksum is not an algorithm:hex digest", "source.checksum"), "checksum", dto.Checksum)
		}
	}

	urlTmpl, err := c.template("source.url", dto.URL)
	if err != nil {
		return nil, err
	}
	var stripTmpl *template.Template
	if dto.Strip != "" {
		if stripTmpl, err = c.template("source.strip", dto.Strip); err != nil {
			return nil, err
		}
	}

	return func(cfg domain.Configuration) (domain.SourceSpec, error) {
		data := newTemplateData(meta, cfg)
		url, err := render(urlTmpl, data)
		if err != nil {
			return domain.SourceSpec{}, err
		}
		strip, err := render(stripTmpl, data)
		if err != nil {
			return domain.SourceSpec{}, err
		}
		return domain.SourceSpec{URL: url, Checksum: dto.Checksum, Strip: strip}, nil
	}, nil
}

type conditionalPatch struct {
	patch domain.Patch
	when  domain.Predicate
}

func (c *compiler) patchesHook(in []PatchDTO) (func(domain.Configuration) ([]domain.Patch, error), error) {
	patches := make([]conditionalPatch, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, dto := range in {
		switch {
		case dto.Name == "":
			return nil, invalidRecipe("patch name is required", "patches.name")
		case dto.File == "" || dto.Old == "":
			return nil, zerr.With(invalidRecipe("patch needs a file and the text it replaces", "patches"), "patch", dto.Name)
		}
		if _, dup := seen[dto.Name]; dup {
			return nil, zerr.With(invalidRecipe("duplicate patch", "patches.name"), "patch", dto.Name)
		}
		seen[dto.Name] = struct{}{}

		when, err := c.when("patches.when", dto.When)
		if err != nil {
			return nil, zerr.With(err, "patch", dto.Name)
		}
		patches = append(patches, conditionalPatch{
			patch: domain.Patch{Name: dto.Name, File: dto.File, Old: dto.Old, New: dto.New},
			when:  when,
		})
	}

	return func(cfg domain.Configuration) ([]domain.Patch, error) {
		var out []domain.Patch
		for _, p := range patches {
			ok, err := matches(p.when, cfg)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, p.patch)
			}
		}
		return out, nil
	}, nil
}

type conditionalStrategy struct {
	tag  domain.BranchTag
	when domain.Predicate
}

func (c *compiler) branchHook(dto BuildDTO) (func(domain.Configuration) (domain.BranchTag, error), error) {
	fallback := domain.BranchTag(dto.Default)
	if fallback == "" {
		fallback = domain.StrategyConfigureMake
	}

	strategies := make([]conditionalStrategy, 0, len(dto.Strategies))
	for _, s := range dto.Strategies {
		if s.Use == "" {
			return nil, invalidRecipe("strategy name is required", "build.strategies.use")
		}
		when, err := c.when("build.strategies.when", s.When)
		if err != nil {
			return nil, zerr.With(err, "strategy", s.Use)
		}
		strategies = append(strategies, conditionalStrategy{tag: domain.BranchTag(s.Use), when: when})
	}

	return func(cfg domain.Configuration) (domain.BranchTag, error) {
		for _, s := range strategies {
			ok, err := matches(s.when, cfg)
			if err != nil {
				return "", err
			}
			if ok {
				return s.tag, nil
			}
		}
		return fallback, nil
	}, nil
}

func (c *compiler) buildHook(r *domain.Recipe, dto BuildDTO) (func(domain.Configuration) (domain.BuildPlan, error), error) {
	picOption := dto.PICOption
	if picOption == "" {
		picOption = "fPIC"
	} else if _, ok := r.Option(picOption); !ok {
		return nil, zerr.With(invalidRecipe("pic option is not declared", "build.pic_option"), "option", picOption)
	}
	if dto.Jobs < 0 {
		return nil, invalidRecipe("jobs must not be negative", "build.jobs")
	}

	args := make([]domain.Predicate, len(dto.ConfigureArgs))
	for i, a := range dto.ConfigureArgs {
		var err error
		if args[i], err = c.when("build.configure_args.when", a.When); err != nil {
			return nil, err
		}
	}
	defines := make([]domain.Predicate, len(dto.CMakeDefines))
	for i, d := range dto.CMakeDefines {
		var err error
		if defines[i], err = c.when("build.cmake_defines.when", d.When); err != nil {
			return nil, err
		}
	}
	env := make([]domain.Predicate, len(dto.Env))
	for i, e := range dto.Env {
		var err error
		if env[i], err = c.when("build.env.when", e.When); err != nil {
			return nil, err
		}
	}

	return func(cfg domain.Configuration) (domain.BuildPlan, error) {
		plan := domain.BuildPlan{
			BuildType: cfg.BuildType(),
			PIC:       cfg.Enabled(picOption),
			Jobs:      dto.Jobs,
		}
		for i, a := range dto.ConfigureArgs {
			ok, err := matches(args[i], cfg)
			if err != nil {
				return domain.BuildPlan{}, err
			}
			if ok {
				plan.ConfigureArgs = append(plan.ConfigureArgs, a.Args...)
			}
		}
		for i, d := range dto.CMakeDefines {
			ok, err := matches(defines[i], cfg)
			if err != nil {
				return domain.BuildPlan{}, err
			}
			if ok {
				if plan.Defines == nil {
					plan.Defines = make(map[string]string)
				}
				maps.Copy(plan.Defines, d.Defines)
			}
		}
		for i, e := range dto.Env {
			ok, err := matches(env[i], cfg)
			if err != nil {
				return domain.BuildPlan{}, err
			}
			if ok {
				if plan.Env == nil {
					plan.Env = make(map[string]string)
				}
				maps.Copy(plan.Env, e.Vars)
			}
		}
		return plan, nil
	}, nil
}

func (c *compiler) packageHook(dto PackageDTO) (func(domain.Configuration) (domain.PackageLayout, error), error) {
	copyWhen := make([]domain.Predicate, len(dto.Copy))
	for i, rule := range dto.Copy {
		if rule.Pattern == "" {
			return nil, invalidRecipe("copy rule needs a pattern", "package.copy.pattern")
		}
		var err error
		if copyWhen[i], err = c.when("package.copy.when", rule.When); err != nil {
			return nil, err
		}
	}
	expectWhen := make([]domain.Predicate, len(dto.Expect))
	for i, e := range dto.Expect {
		var err error
		if expectWhen[i], err = c.when("package.expect.when", e.When); err != nil {
			return nil, err
		}
	}

	return func(cfg domain.Configuration) (domain.PackageLayout, error) {
		layout := domain.PackageLayout{Exclude: slices.Clone(dto.Exclude)}
		for i, rule := range dto.Copy {
			ok, err := matches(copyWhen[i], cfg)
			if err != nil {
				return domain.PackageLayout{}, err
			}
			if ok {
				layout.Copy = append(layout.Copy, domain.CopyRule{
					Pattern:  rule.Pattern,
					Src:      rule.Src,
					Dst:      rule.Dst,
					KeepPath: rule.KeepPath,
				})
			}
		}
		for i, e := range dto.Expect {
			ok, err := matches(expectWhen[i], cfg)
			if err != nil {
				return domain.PackageLayout{}, err
			}
			if ok {
				layout.Expect = append(layout.Expect, e.Files...)
			}
		}
		return layout, nil
	}, nil
}

func (c *compiler) testHook(dto TestDTO) (func(domain.Configuration) (domain.PackageTest, error), error) {
	if len(dto.Commands) == 0 {
		return nil, invalidRecipe("test needs at least one command", "test.commands")
	}
	for _, args := range dto.Commands {
		if len(args) == 0 {
			return nil, invalidRecipe("test command is empty", "test.commands")
		}
	}
	when, err := c.when("test.when", dto.When)
	if err != nil {
		return nil, err
	}

	dir := dto.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(c.dir, dir)
	}

	return func(cfg domain.Configuration) (domain.PackageTest, error) {
		ok, err := matches(when, cfg)
		if err != nil || !ok {
			return domain.PackageTest{}, err
		}
		return domain.PackageTest{
			Dir:      dir,
			Commands: slices.Clone(dto.Commands),
			Env:      maps.Clone(dto.Env),
		}, nil
	}, nil
}

func (c *compiler) packageInfoHook(dto PackageInfoDTO) (func(domain.Configuration) (domain.PackageInfo, error), error) {
	libsWhen := make([]domain.Predicate, len(dto.Libs))
	for i, l := range dto.Libs {
		var err error
		if libsWhen[i], err = c.when("package_info.libs.when", l.When); err != nil {
			return nil, err
		}
	}

	dirs := func(in []string, fallback string) []string {
		if len(in) == 0 {
			return []string{fallback}
		}
		return slices.Clone(in)
	}

	return func(cfg domain.Configuration) (domain.PackageInfo, error) {
		info := domain.PackageInfo{
			Shared:      cfg.Enabled("shared"),
			IncludeDirs: dirs(dto.IncludeDirs, "include"),
			LibDirs:     dirs(dto.LibDirs, "lib"),
			BinDirs:     dirs(dto.BinDirs, "bin"),
		}
		for i, l := range dto.Libs {
			ok, err := matches(libsWhen[i], cfg)
			if err != nil {
				return domain.PackageInfo{}, err
			}
			if ok {
				info.Libs = slices.Clone(l.Libs)
				break
			}
		}
		return info, nil
	}, nil
}
