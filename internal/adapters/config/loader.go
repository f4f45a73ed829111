// Package config loads recipe descriptors and matrix specs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using YAML files.
type Loader struct {
	Logger ports.Logger
	FS     FileSystem
}

// NewLoader creates a new Loader with the given logger reading from the OS filesystem.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, FS: NewOSFS()}
}

// LoadRecipe reads and validates the recipe descriptor at path.
func (l *Loader) LoadRecipe(path string) (*domain.Recipe, error) {
	var file RecipeFile
	if err := l.readAndUnmarshalYAML(path, &file); err != nil {
		return nil, err
	}

	recipe, err := buildRecipe(&file, filepath.Dir(path))
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}

	if len(file.Patches) > 0 && file.Source.Checksum == "" {
		l.Logger.Warn(fmt.Sprintf("recipe %s patches sources that are not pinned by a checksum", recipe.Meta.Ref()))
	}
	return recipe, nil
}

// LoadMatrix reads a matrix spec and compiles its exclusions against the
// axes it declares. A relative recipe path is resolved against the
// directory of the matrix file.
func (l *Loader) LoadMatrix(path string) (*domain.MatrixSpec, error) {
	var file MatrixFile
	if err := l.readAndUnmarshalYAML(path, &file); err != nil {
		return nil, err
	}

	spec, err := buildMatrix(&file, filepath.Dir(path))
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return spec, nil
}

func buildMatrix(file *MatrixFile, dir string) (*domain.MatrixSpec, error) {
	if file.Recipe == "" {
		return nil, zerr.Wrap(domain.ErrInvalidMatrix, "recipe is required")
	}
	if file.Parallel < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidMatrix, "parallel must not be negative"), "parallel", file.Parallel)
	}

	policy, err := domain.ParseBuildPolicy(file.Build)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid matrix build policy"), "build", file.Build)
	}

	recipePath := file.Recipe
	if !filepath.IsAbs(recipePath) {
		recipePath = filepath.Join(dir, recipePath)
	}

	spec := &domain.MatrixSpec{
		RecipePath: filepath.Clean(recipePath),
		Parallel:   file.Parallel,
		Policy:     policy,
	}

	scope := Scope{Axes: domain.SettingNames()}
	for _, axis := range file.Axes {
		if axis.Name == "" {
			return nil, zerr.Wrap(domain.ErrInvalidMatrix, "axis name is empty")
		}
		if slices.ContainsFunc(spec.Axes, func(a domain.Axis) bool { return a.Name == axis.Name }) {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidMatrix, "duplicate axis"), "axis", axis.Name)
		}
		spec.Axes = append(spec.Axes, domain.Axis{Name: axis.Name, Values: slices.Clone(axis.Values)})
		scope.Axes = append(scope.Axes, axis.Name)
		scope.Values = append(scope.Values, axis.Values...)
	}

	for i, src := range file.Exclude {
		p, err := CompilePredicate(src, scope)
		if err != nil {
			return nil, zerr.With(err, "exclude", i)
		}
		spec.Exclude = append(spec.Exclude, p)
	}

	return spec, nil
}

// readAndUnmarshalYAML reads a YAML file and decodes it into target.
// Unknown fields are rejected.
func (l *Loader) readAndUnmarshalYAML(path string, target any) error {
	data, err := l.FS.ReadFile(path)
	if err != nil {
		return zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigReadFailed, err), "failed to read descriptor"), "path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			err = zerr.New("document is empty")
		}
		return zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "failed to parse descriptor"), "path", path)
	}
	return nil
}
