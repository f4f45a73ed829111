package domain

import "go.trai.ch/zerr"

var (
	// ErrInvalidConfiguration is returned when a matrix cell does not satisfy the recipe's declared domains.
	ErrInvalidConfiguration = zerr.New("invalid configuration")

	// ErrFetchFailed is returned when the source archive cannot be obtained.
	ErrFetchFailed = zerr.New("failed to fetch source")

	// ErrAlreadyPatched is returned when a patch is applied to a tree that already carries it.
	ErrAlreadyPatched = zerr.New("patch already applied")

	// ErrPatchNotApplicable is returned when the text a patch replaces is missing from its target file.
	ErrPatchNotApplicable = zerr.New("patch does not apply")

	// ErrToolchainFailed is returned when an external build tool exits unsuccessfully.
	ErrToolchainFailed = zerr.New("toolchain command failed")

	// ErrStoreFailed is returned when the package store rejects an artifact.
	ErrStoreFailed = zerr.New("package store failure")

	// ErrPackageNotFound is returned when a package is not present in the store.
	ErrPackageNotFound = zerr.New("package not found in store")

	// ErrStoreCorrupt is returned when a stored archive does not match its recorded digest.
	ErrStoreCorrupt = zerr.New("stored package is corrupt")

	// ErrUnknownBranch is returned when a recipe selects a build strategy that is not registered.
	ErrUnknownBranch = zerr.New("unknown build strategy")

	// ErrInvalidPredicate is returned when a predicate expression cannot be compiled or evaluated.
	ErrInvalidPredicate = zerr.New("invalid predicate")

	// ErrInvalidRecipe is returned when a recipe descriptor fails validation.
	ErrInvalidRecipe = zerr.New("invalid recipe")

	// ErrInvalidMatrix is returned when a matrix spec fails validation.
	ErrInvalidMatrix = zerr.New("invalid matrix")

	// ErrUnsupportedSchema is returned when a recipe descriptor declares an unknown schema version.
	ErrUnsupportedSchema = zerr.New("unsupported recipe schema")

	// ErrConfigReadFailed is returned when a descriptor file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when a descriptor file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrUnsupportedArchive is returned when a source archive has an unrecognized format.
	ErrUnsupportedArchive = zerr.New("unsupported archive format")

	// ErrUnsafeArchivePath is returned when an archive entry would escape the extraction directory.
	ErrUnsafeArchivePath = zerr.New("archive entry escapes destination")

	// ErrRequirementUnresolved is returned when a build requirement cannot be located.
	ErrRequirementUnresolved = zerr.New("build requirement not found")

	// ErrMissingOutput is returned when the install step did not produce an expected file.
	ErrMissingOutput = zerr.New("expected output missing")

	// ErrPackageTestFailed is returned when the consumer check against a fresh package fails.
	ErrPackageTestFailed = zerr.New("package test failed")

	// ErrWorkspaceFailed is returned when a run's workspace cannot be prepared.
	ErrWorkspaceFailed = zerr.New("failed to prepare workspace")

	// ErrBuildExecutionFailed is returned when at least one configuration of a matrix failed.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrInvalidBuildPolicy is returned when a build policy is neither "missing" nor "always".
	ErrInvalidBuildPolicy = zerr.New("invalid build policy, expected 'missing' or 'always'")
)
