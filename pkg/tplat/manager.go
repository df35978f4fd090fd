// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package tplat

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/osgi-build/tplat/pkg/set"
	"github.com/osgi-build/tplat/pkg/uripath"
)

type ProjectPaths struct {
	// Project root.
	ProjectRootPath string

	// The path of the lock file for the current project.
	LockFile string

	// The path of the platform file for the current project.
	PlatformFile string
}

// Manager serves as entry point for all target-platform related operations.
// Use NewManager to create a new manager.
type Manager struct {
	factory *ResolverFactory

	// The local repository root. Agents are shared per root.
	localRepository string
	offline         bool
	disableMirrors  bool

	// The UI to communicate with the user.
	ui UI
}

// ProjectManager is a manager for a specific project.
type ProjectManager struct {
	*Manager

	// The project relevant Paths.
	Paths *ProjectPaths
}

// NewManager returns a new Manager.
// If factory is nil, a factory on the default agent registry is used.
func NewManager(factory *ResolverFactory, localRepository string, offline bool, disableMirrors bool, ui UI) *Manager {
	if factory == nil {
		factory = NewResolverFactory(nil)
	}
	return &Manager{
		factory:         factory,
		localRepository: localRepository,
		offline:         offline,
		disableMirrors:  disableMirrors,
		ui:              ui,
	}
}

func NewProjectManager(manager *Manager, paths *ProjectPaths) *ProjectManager {
	return &ProjectManager{
		Manager: manager,
		Paths:   paths,
	}
}

func (m *Manager) newContext(disableMirrors bool) (*ResolutionContext, error) {
	rc, err := m.factory.CreateResolutionContext(m.localRepository, m.offline, m.disableMirrors || disableMirrors, m.ui)
	if err != nil {
		return nil, m.reportAgentError(err)
	}
	return rc, nil
}

func (m *Manager) reportAgentError(err error) error {
	var initErr *AgentInitError
	if errors.As(err, &initErr) {
		return m.ui.ReportError("Failed to initialize local repository '%s': %v", initErr.Root, initErr.Err)
	}
	return err
}

// Mirror copies the given units of the sources into the destination.
func (m *Manager) Mirror(ctx context.Context, sources RepositoryReferences, dest DestinationRepositoryDescriptor, units []IUDescription, options MirrorOptions) ([]ArtifactDescriptor, error) {
	rc, err := m.newContext(false)
	if err != nil {
		return nil, err
	}
	return m.factory.CreateResolver(m.ui).MirrorStandalone(ctx, rc, sources, dest, units, options)
}

// Clean removes the persisted repositories of the local repository.
func (m *Manager) Clean() error {
	rc, err := m.newContext(false)
	if err != nil {
		return err
	}
	return rc.Agent().CacheManager().Clean()
}

// readPlatformFile reads the platform file of the project.
// Returns an error if it doesn't exist.
func (m *ProjectManager) readPlatformFile() (*PlatformFile, error) {
	ok, err := isFile(m.Paths.PlatformFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.ui.ReportError("Missing platform file '%s'", m.Paths.PlatformFile)
	}
	return ReadPlatformFile(m.Paths.PlatformFile, m.ui)
}

// InitDirectory writes a new platform file for the project.
// Fails if the file already exists.
func (m *ProjectManager) InitDirectory(artifactID string) error {
	ok, err := isFile(m.Paths.PlatformFile)
	if err != nil {
		return err
	}
	if ok {
		return m.ui.ReportError("Platform file '%s' already exists", m.Paths.PlatformFile)
	}
	if artifactID == "" {
		artifactID = filepath.Base(m.Paths.ProjectRootPath)
	}
	pf := &PlatformFile{
		path:       m.Paths.PlatformFile,
		ArtifactID: artifactID,
		Version:    "1.0.0-SNAPSHOT",
		Packaging:  TypeEclipsePlugin,
	}
	return pf.WriteToFile()
}

// AddRepository adds a repository to the platform file.
// Adding a location that is already present is a no-op.
func (m *ProjectManager) AddRepository(ctx context.Context, location string, name string) error {
	pf, err := m.readPlatformFile()
	if err != nil {
		return err
	}
	if schemeOf(location) == "" {
		// Relative paths are given relative to the working directory.
		abs, err := filepath.Abs(location)
		if err != nil {
			return err
		}
		location = abs
	}
	key, err := CanonicalLocation(location)
	if err != nil {
		return m.ui.ReportError("Invalid repository location '%s': %v", location, err)
	}
	for _, ref := range pf.Repositories {
		if existing, err := CanonicalLocation(pf.repositoryLocation(ref.Location)); err == nil && existing == key {
			m.ui.ReportInfo("Repository '%s' already present", location)
			return nil
		}
	}
	// Make sure the repository can be loaded before recording it.
	rc, err := m.newContext(pf.Configuration.DisableMirrors)
	if err != nil {
		return err
	}
	if err := rc.AddRepository(ctx, location); err != nil {
		return err
	}
	pf.Repositories = append(pf.Repositories, RepositoryReference{Location: location, Name: name})
	return pf.WriteToFile()
}

// RemoveRepository removes the repository from the platform file.
func (m *ProjectManager) RemoveRepository(location string) error {
	pf, err := m.readPlatformFile()
	if err != nil {
		return err
	}
	key, err := CanonicalLocation(location)
	if err != nil {
		return m.ui.ReportError("Invalid repository location '%s': %v", location, err)
	}
	var remaining RepositoryReferences
	for _, ref := range pf.Repositories {
		if ref.Location == location {
			continue
		}
		if existing, err := CanonicalLocation(pf.repositoryLocation(ref.Location)); err == nil && existing == key {
			continue
		}
		remaining = append(remaining, ref)
	}
	if len(remaining) == len(pf.Repositories) {
		return m.ui.ReportError("Repository '%s' not found", location)
	}
	pf.Repositories = remaining
	return pf.WriteToFile()
}

// Repositories returns the repositories listed in the platform file.
func (m *ProjectManager) Repositories() (RepositoryReferences, error) {
	pf, err := m.readPlatformFile()
	if err != nil {
		return nil, err
	}
	return pf.Repositories, nil
}

// Resolved is the outcome of ProjectManager.Resolve.
type Resolved struct {
	Result       ResolutionResult
	Dependencies []Dependency
	LockFile     *LockFile
}

// Resolve computes the target platform of the project, writes the lock
// file, and projects the resolved artifacts into dependencies.
func (m *ProjectManager) Resolve(ctx context.Context) (*Resolved, error) {
	pf, err := m.readPlatformFile()
	if err != nil {
		return nil, err
	}
	cfg, err := pf.TargetConfiguration()
	if err != nil {
		return nil, m.ui.ReportError("Invalid configuration: %v", err)
	}
	if cfg.Implicit {
		m.ui.ReportInfo("No environments configured, using '%s'", cfg.Environments[0])
	}

	rc, err := m.newContext(cfg.DisableMirrors)
	if err != nil {
		return nil, err
	}

	requirements := append([]Requirement{}, pf.Requirements...)
	if cfg.Resolver == ResolverP2 {
		for _, ref := range pf.Repositories {
			if err := rc.AddRepository(ctx, pf.repositoryLocation(ref.Location)); err != nil {
				return nil, err
			}
		}
		if cfg.Target != "" {
			targetReqs, err := m.addTargetDefinition(ctx, rc, pf.resolvePath(uripath.ToPath(cfg.Target)))
			if err != nil {
				return nil, err
			}
			requirements = append(requirements, targetReqs...)
		}
	}

	if cfg.Resolver == ResolverLocal && cfg.Installation != "" {
		if err := m.addInstallation(rc, pf.resolvePath(uripath.ToPath(cfg.Installation))); err != nil {
			return nil, err
		}
	}

	project := pf.Project()
	if err := m.addReactor(rc, pf, project, set.String{}); err != nil {
		return nil, err
	}
	if cfg.PomDependencies == PomDependenciesConsider {
		if err := m.addDependencies(rc, pf); err != nil {
			return nil, err
		}
	}

	resolver := m.factory.CreateResolver(m.ui, WithConfiguration(cfg))
	result, err := resolver.Resolve(ctx, rc, requirements, cfg.Environments)
	if err != nil {
		return nil, err
	}

	lf := NewLockFile(m.Paths.LockFile, result)
	if err := lf.WriteToFile(); err != nil {
		return nil, err
	}

	nestedDir := filepath.Join(rc.Agent().CacheManager().CacheDir(), NestedSubDir)
	projector := NewDependencyProjector(nestedDir, m.ui)
	var deps []Dependency
	seen := set.String{}
	for _, er := range result {
		for _, dep := range projector.Project(project, er.Artifacts) {
			if seen.Contains(dep.String()) {
				continue
			}
			seen.Add(dep.String())
			deps = append(deps, dep)
		}
	}
	return &Resolved{
		Result:       result,
		Dependencies: deps,
		LockFile:     lf,
	}, nil
}

func (m *ProjectManager) addTargetDefinition(ctx context.Context, rc *ResolutionContext, path string) ([]Requirement, error) {
	td, err := ReadTargetDefinition(path)
	if err != nil {
		return nil, m.ui.ReportError("Failed to read target definition: %v", err)
	}
	dir := filepath.Dir(path)
	for _, location := range td.Locations {
		repository := location.Repository
		if schemeOf(repository) == "" && !filepath.IsAbs(repository) {
			repository = filepath.Join(dir, filepath.FromSlash(repository))
		}
		if err := rc.AddRepository(ctx, repository); err != nil {
			return nil, err
		}
	}
	reqs, err := td.Requirements()
	if err != nil {
		return nil, m.ui.ReportError("Invalid target definition '%s': %v", path, err)
	}
	return reqs, nil
}

// addReactor adds the platform's module and, recursively, its sub-modules
// as reactor artifacts.
func (m *ProjectManager) addReactor(rc *ResolutionContext, pf *PlatformFile, project *ReactorProject, visited set.String) error {
	if visited.Contains(pf.Dir()) {
		return nil
	}
	visited.Add(pf.Dir())

	desc, unit, err := pf.Descriptor(project)
	if err != nil {
		return m.ui.ReportError("Invalid module '%s': %v", pf.Dir(), err)
	}
	if err := rc.AddReactorArtifact(desc, unit); err != nil {
		return m.ui.ReportError("Failed to add module '%s': %v", pf.Dir(), err)
	}

	for _, module := range pf.Modules {
		dir := pf.resolvePath(module)
		sub, err := ReadPlatformFile(filepath.Join(dir, DefaultPlatformFileName), m.ui)
		if err != nil {
			if os.IsNotExist(err) {
				return m.ui.ReportError("Module '%s' has no platform file", dir)
			}
			return err
		}
		if err := m.addReactor(rc, sub, sub.Project(), visited); err != nil {
			return err
		}
	}
	return nil
}

// addDependencies adds the plain jar dependencies that are bundles.
// Jars without bundle manifest are skipped.
func (m *ProjectManager) addDependencies(rc *ResolutionContext, pf *PlatformFile) error {
	for _, dep := range pf.Dependencies {
		location := pf.resolvePath(dep)
		desc, unit, err := bundleArtifact(location)
		if err != nil {
			m.ui.ReportWarning("Skipping dependency '%s': %v", location, err)
			continue
		}
		if err := rc.AddExternalArtifact(desc, unit); err != nil {
			return m.ui.ReportError("Failed to add dependency '%s': %v", location, err)
		}
	}
	return nil
}

// addInstallation adds the bundles of a local Eclipse installation.
// A bundle that is already known, for example because it is installed in
// two sites, is added once.
func (m *ProjectManager) addInstallation(rc *ResolutionContext, dir string) error {
	if ok, _ := isDirectory(dir); !ok {
		return m.ui.ReportError("Installation '%s' is not a directory", dir)
	}
	plugins, err := InstallationPlugins(dir)
	if err != nil {
		return m.ui.ReportError("Failed to scan installation '%s': %v", dir, err)
	}
	added := set.String{}
	for _, location := range plugins {
		desc, unit, err := bundleArtifact(location)
		if err != nil {
			m.ui.ReportWarning("Skipping installed plugin '%s': %v", location, err)
			continue
		}
		if added.Contains(desc.Key.String()) {
			continue
		}
		added.Add(desc.Key.String())
		if err := rc.AddExternalArtifact(desc, unit); err != nil {
			return m.ui.ReportError("Failed to add installed plugin '%s': %v", location, err)
		}
	}
	m.ui.ReportInfo("Added %d plugins of installation '%s'", len(added), dir)
	return nil
}

var errNotABundle = errors.New("not a bundle")

// bundleArtifact reads the manifest at location and returns the
// descriptor and unit of the bundle.
func bundleArtifact(location string) (ArtifactDescriptor, *InstallableUnit, error) {
	manifest, err := osgi.ReadManifest(location)
	if err != nil {
		return ArtifactDescriptor{}, nil, err
	}
	if manifest.SymbolicName() == "" {
		return ArtifactDescriptor{}, nil, errNotABundle
	}
	v, err := manifest.Version()
	if err != nil {
		return ArtifactDescriptor{}, nil, err
	}
	unit := &InstallableUnit{
		ID:      manifest.SymbolicName(),
		Version: v,
		Type:    UnitBundle,
	}
	desc := ArtifactDescriptor{
		Key:              NewArtifactKey(TypeEclipsePlugin, unit.ID, v),
		Location:         location,
		InstallableUnits: []string{unit.ID},
	}
	return desc, unit, nil
}

func lockPathForDir(dir string) string {
	return filepath.Join(dir, DefaultLockFileName)
}

func platformPathForDir(dir string) string {
	return filepath.Join(dir, DefaultPlatformFileName)
}

// NewProjectPaths sets the platform and lock file, searching in the given
// directory.
//
// Does not overwrite a given path (platformPath or lockPath).
// If the given directory is empty, starts the search in the current working
// directory and walks up until it finds a platform or lock file.
// If none is found, the files are assumed to be in the starting directory.
func NewProjectPaths(projectRoot string, lockPath string, platformPath string) (*ProjectPaths, error) {
	if projectRoot != "" {
		if lockPath == "" {
			lockPath = lockPathForDir(projectRoot)
		}
		if platformPath == "" {
			platformPath = platformPathForDir(projectRoot)
		}
		return &ProjectPaths{
			ProjectRootPath: projectRoot,
			LockFile:        lockPath,
			PlatformFile:    platformPath,
		}, nil
	}

	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dir := startDir
	for {
		found := false
		for _, candidate := range []string{lockPathForDir(dir), platformPathForDir(dir)} {
			ok, err := isFile(candidate)
			if err != nil {
				return nil, err
			}
			found = found || ok
		}
		if found {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			dir = startDir
			break
		}
		dir = parent
	}

	if lockPath == "" {
		lockPath = lockPathForDir(dir)
	}
	if platformPath == "" {
		platformPath = platformPathForDir(dir)
	}
	return &ProjectPaths{
		ProjectRootPath: dir,
		LockFile:        lockPath,
		PlatformFile:    platformPath,
	}, nil
}
