package lifecycle

import (
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// The helpers below evaluate a recipe hook, substituting the default when
// the recipe leaves the hook unset.

func sourceFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.SourceSpec, error) {
	if recipe.Hooks.Source == nil {
		return domain.SourceSpec{}, zerr.Wrap(domain.ErrInvalidRecipe, "recipe has no source")
	}
	return recipe.Hooks.Source(cfg)
}

func branchFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.BranchTag, error) {
	if recipe.Hooks.Branch == nil {
		return domain.StrategyConfigureMake, nil
	}
	return recipe.Hooks.Branch(cfg)
}

func patchesFor(recipe *domain.Recipe, cfg domain.Configuration) ([]domain.Patch, error) {
	if recipe.Hooks.Patches == nil {
		return nil, nil
	}
	return recipe.Hooks.Patches(cfg)
}

func planFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.BuildPlan, error) {
	if recipe.Hooks.Build == nil {
		return domain.BuildPlan{BuildType: cfg.BuildType(), PIC: cfg.Enabled("fPIC")}, nil
	}
	return recipe.Hooks.Build(cfg)
}

func layoutFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.PackageLayout, error) {
	if recipe.Hooks.Package == nil {
		return domain.PackageLayout{}, nil
	}
	return recipe.Hooks.Package(cfg)
}

func infoFor(recipe *domain.Recipe, cfg domain.Configuration) (domain.PackageInfo, error) {
	if recipe.Hooks.PackageInfo == nil {
		return domain.PackageInfo{
			Shared:      cfg.Enabled("shared"),
			IncludeDirs: []string{"include"},
			LibDirs:     []string{"lib"},
			BinDirs:     []string{"bin"},
		}, nil
	}
	return recipe.Hooks.PackageInfo(cfg)
}
