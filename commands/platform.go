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

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/osgi-build/tplat/pkg/tplat"
	"github.com/spf13/cobra"
)

const ConfigKeyRepositories = "platform.repositories"
const ConfigKeyOffline = "platform.offline"
const ConfigKeyLocalRepository = "platform.local-repository"
const ConfigKeyDisableMirrors = "platform.disable-mirrors"

type ConfigStore interface {
	Load(ctx context.Context) (*Config, error)
	Store(ctx context.Context, cfg *Config) error
}

type Config struct {
	// LocalRepository is the root of the local artifact repository.
	// Provisioning agents are shared per root.
	LocalRepository string
	Offline         bool
	DisableMirrors  bool

	// Repositories are the default sources of the mirror command.
	// Must be `nil` if not set in the configuration.
	// Note that viper changes empty lists to `nil` so it's important to
	// check for that case.
	Repositories tplat.RepositoryReferences
}

type CobraCommand func(cmd *cobra.Command, args []string)
type CobraErrorCommand func(cmd *cobra.Command, args []string) error
type Run func(CobraErrorCommand) CobraCommand

// WithSilent is implemented by errors that have already been shown to the
// user.
type WithSilent interface {
	Silent() bool
}

// WithExitCode is implemented by errors that carry the exit code of the
// process.
type WithExitCode interface {
	ExitCode() int
}

// DefaultRunWrapper runs the command and exits the process if it fails.
func DefaultRunWrapper(f CobraErrorCommand) CobraCommand {
	return func(cmd *cobra.Command, args []string) {
		err := f(cmd, args)
		if err == nil {
			return
		}
		if e, ok := err.(WithSilent); !ok || !e.Silent() {
			fmt.Fprintln(os.Stderr, "Error:", ErrorMessage(err))
		}
		code := 1
		if e, ok := err.(WithExitCode); ok {
			code = e.ExitCode()
		}
		os.Exit(code)
	}
}

type platformHandler struct {
	cfg      *Config
	cfgStore ConfigStore
	ui       tplat.UI
	factory  *tplat.ResolverFactory
}

func (h *platformHandler) saveConfigs(ctx context.Context) error {
	return h.cfgStore.Store(ctx, h.cfg)
}

// PlatformOption defines the optional parameters of Platform.
type PlatformOption interface {
	applyPlatformOption(*platformHandler)
}

type factoryOption struct {
	factory *tplat.ResolverFactory
}

func (o factoryOption) applyPlatformOption(h *platformHandler) {
	h.factory = o.factory
}

// WithResolverFactory sets the factory the commands create resolvers and
// contexts with. By default the factory of the process-wide agent
// registry is used.
func WithResolverFactory(factory *tplat.ResolverFactory) PlatformOption {
	return factoryOption{factory: factory}
}

func (h *platformHandler) buildManager(cmd *cobra.Command) (*tplat.Manager, error) {
	offline, err := cmd.Flags().GetBool("offline")
	if err != nil {
		return nil, err
	}
	disableMirrors, err := cmd.Flags().GetBool("disable-mirrors")
	if err != nil {
		return nil, err
	}
	localRepository, err := cmd.Flags().GetString("local-repository")
	if err != nil {
		return nil, err
	}
	if localRepository == "" {
		localRepository = h.cfg.LocalRepository
	}
	if localRepository == "" {
		return nil, h.ui.ReportError("No local repository configured")
	}
	return tplat.NewManager(h.factory, localRepository, offline || h.cfg.Offline, disableMirrors || h.cfg.DisableMirrors, h.ui), nil
}

func (h *platformHandler) buildProjectManager(cmd *cobra.Command) (*tplat.ProjectManager, error) {
	projectRoot, err := cmd.Flags().GetString("project-root")
	if err != nil {
		return nil, err
	}
	manager, err := h.buildManager(cmd)
	if err != nil {
		return nil, err
	}
	paths, err := tplat.NewProjectPaths(projectRoot, "", "")
	if err != nil {
		return nil, err
	}
	return tplat.NewProjectManager(manager, paths), nil
}

// Platform returns the 'platform' command.
// If ui is nil, messages are printed to stdout.
func Platform(run Run, configStore ConfigStore, ui tplat.UI, options ...PlatformOption) (*cobra.Command, error) {
	if ui == nil {
		ui = tplatUI
	}

	handler := &platformHandler{
		cfgStore: configStore,
		ui:       ui,
	}
	for _, o := range options {
		o.applyPlatformOption(handler)
	}

	// 1. Loads the config before invoking the command.
	// 2. Intercepts any error and checks if it is an already-reported error.
	//    If it is, replaces it with a silent error.
	//    Resolution errors are reported and replaced with a silent error
	//    carrying the exit code of their status.
	//    Otherwise returns it to the caller.
	// 3. Wraps the call into the given 'run' function.
	errorCfgRun := func(f CobraErrorCommand) CobraCommand {
		return run(func(cmd *cobra.Command, args []string) error {
			if handler.cfg == nil {
				cfg, err := handler.cfgStore.Load(cmd.Context())
				if err != nil {
					return err
				}
				handler.cfg = cfg
			}

			err := f(cmd, args)

			if tplat.IsErrAlreadyReported(err) {
				return newExitError(1)
			}
			if IsResolutionError(err) {
				handler.ui.ReportError("%s", ErrorMessage(err))
				return newExitError(ExitCode(err))
			}
			return err
		})
	}

	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Manage target platforms",
	}
	cmd.PersistentFlags().String("project-root", "", "specify the project root")
	cmd.PersistentFlags().Bool("offline", false, "only use cached copies of remote repositories")
	cmd.PersistentFlags().Bool("disable-mirrors", false, "ignore the mirrors advertised by repositories")
	cmd.PersistentFlags().String("local-repository", "", "specify the local repository root")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Creates a new platform file in the current directory",
		Long: `Initializes the current directory as the root of the project.

This is done by creating a 'platform.yaml' file. The artifact id defaults
to the name of the directory.

If the --project-root flag is used, initializes that directory instead.`,
		Run:  errorCfgRun(handler.platformInit),
		Args: cobra.NoArgs,
	}
	initCmd.Flags().String("artifact-id", "", "The artifact id of the module")
	cmd.AddCommand(initCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolves the target platform of the current project",
		Long: `Resolves the target platform of the current project.

Loads all repositories of the platform file, adds the modules of the build
and computes the transitive closure of all requirements for every
configured environment. The result is written to the lock file.

Unless the '--quiet' flag is given, the resolved artifacts are printed as
dependencies of the build.`,
		Example: `  # Resolve the project in the current directory.
  tplat platform resolve

  # Resolve without contacting remote repositories.
  tplat platform resolve --offline
`,
		Run:     errorCfgRun(handler.platformResolve),
		Args:    cobra.NoArgs,
		Aliases: []string{"install"},
	}
	resolveCmd.Flags().BoolP("quiet", "q", false, "Don't print the dependencies")
	cmd.AddCommand(resolveCmd)

	mirrorCmd := &cobra.Command{
		Use:   "mirror <destination> [<unit>...]",
		Short: "Mirrors units of repositories into a local repository",
		Long: `Mirrors units of the source repositories into the local directory
'destination'.

Each 'unit' is given as id, optionally followed by '@' and a version.
Without version the highest version is mirrored. Without units all units
of the sources are mirrored. The units required by the mirrored units
are mirrored as well.

The sources are given with the '--source' flag. Without sources, the
repositories of the user configuration are used.`,
		Example: `  # Mirror the latest version of every unit.
  tplat platform mirror --source=https://download.example.com/updates --latest-only out

  # Mirror a specific version of a unit and its requirements.
  tplat platform mirror --source=../updates out org.example.core@1.2.0
`,
		Run:  errorCfgRun(handler.platformMirror),
		Args: cobra.MinimumNArgs(1),
	}
	mirrorCmd.Flags().StringArray("source", nil, "A source repository")
	mirrorCmd.Flags().String("name", "", "The name of the destination repository")
	mirrorCmd.Flags().Bool("latest-only", false, "Only mirror the highest version of each unit")
	mirrorCmd.Flags().Bool("strict-only", false, "Only follow requirements with an exact version")
	mirrorCmd.Flags().Bool("include-optional", false, "Follow optional requirements")
	mirrorCmd.Flags().Bool("compress", false, "Compress the metadata of the destination")
	mirrorCmd.Flags().Bool("append", false, "Keep the units already in the destination")
	mirrorCmd.Flags().StringArray("environment", nil, "Only mirror units for the environment (os/ws/arch)")
	cmd.AddCommand(mirrorCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Removes cached repositories",
		Long: `Removes the cached copies of repositories from the local repository.

Offline resolution isn't possible until the repositories have been loaded
again.`,
		Run:  errorCfgRun(handler.platformClean),
		Args: cobra.NoArgs,
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "lockfile",
		Short:  "Prints the content of the lockfile",
		Run:    errorCfgRun(handler.printLockFile),
		Args:   cobra.NoArgs,
		Hidden: true,
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "platformfile",
		Short:  "Prints the content of platform.yaml",
		Run:    errorCfgRun(handler.printPlatformFile),
		Args:   cobra.NoArgs,
		Hidden: true,
	})

	repositoryCmd := &cobra.Command{
		Use:   "repository",
		Short: "Manages the repositories of the project",
	}
	cmd.AddCommand(repositoryCmd)

	addRepositoryCmd := &cobra.Command{
		Use:   "add <location>",
		Short: "Adds a repository",
		Long: `Adds a repository to the platform file of the project.

The 'location' is either a URL or a path to a local directory. The
repository is loaded before it is added. Adding a repository that is
already present doesn't change the platform file.`,
		Example: `  # Add a remote repository.
  tplat platform repository add https://download.example.com/updates

  # Add a local repository with a name.
  tplat platform repository add ../updates --name=local
`,
		Run:  errorCfgRun(handler.repositoryAdd),
		Args: cobra.ExactArgs(1),
	}
	addRepositoryCmd.Flags().String("name", "", "The name of the repository")
	addRepositoryCmd.Flags().Bool("global", false, "Add the repository to the user configuration instead")
	repositoryCmd.AddCommand(addRepositoryCmd)

	removeRepositoryCmd := &cobra.Command{
		Use:   "remove <location>",
		Short: "Removes a repository",
		Run:   errorCfgRun(handler.repositoryRemove),
		Args:  cobra.ExactArgs(1),
	}
	removeRepositoryCmd.Flags().Bool("global", false, "Remove the repository from the user configuration instead")
	repositoryCmd.AddCommand(removeRepositoryCmd)

	listRepositoriesCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists the repositories",
		Run:   errorCfgRun(handler.repositoryList),
		Args:  cobra.NoArgs,
	}
	listRepositoriesCmd.Flags().Bool("global", false, "List the repositories of the user configuration instead")
	repositoryCmd.AddCommand(listRepositoriesCmd)

	return cmd, nil
}

type exitError struct {
	code int
}

func (e *exitError) ExitCode() int {
	return e.code
}

func (e *exitError) Silent() bool {
	return true
}

func (e *exitError) Error() string {
	return fmt.Sprintf("ExitError - exit code: %d", e.code)
}

func newExitError(code int) *exitError {
	return &exitError{
		code: code,
	}
}

var tplatUI = tplat.FmtUI

// checkProjectRoot reports an error if the command isn't executed in the
// project root and no root was given.
func (h *platformHandler) checkProjectRoot(cmd *cobra.Command, m *tplat.ProjectManager) error {
	projectRoot, err := cmd.Flags().GetString("project-root")
	if err != nil {
		return err
	}
	if projectRoot != "" {
		return nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if cwd == m.Paths.ProjectRootPath {
		return nil
	}
	// Add the project-root flag, and rebuild the command line.
	args := os.Args
	args = append(args, "--project-root="+m.Paths.ProjectRootPath)
	quoted := []string{}
	for _, arg := range args {
		quoted = append(quoted, shellescape.Quote(arg))
	}
	withFlag := strings.Join(quoted, " ")
	h.ui.ReportError(`Command must be executed in project root.
  Run 'platform init' first to create a new project here, or
  Run with '--project-root': ` + withFlag)
	return newExitError(1)
}

func (h *platformHandler) platformInit(cmd *cobra.Command, args []string) error {
	projectRoot, err := cmd.Flags().GetString("project-root")
	if err != nil {
		return err
	}
	if projectRoot == "" {
		if projectRoot, err = os.Getwd(); err != nil {
			return err
		}
	}
	artifactID, err := cmd.Flags().GetString("artifact-id")
	if err != nil {
		return err
	}
	manager, err := h.buildManager(cmd)
	if err != nil {
		return err
	}
	paths, err := tplat.NewProjectPaths(projectRoot, "", "")
	if err != nil {
		return err
	}
	return tplat.NewProjectManager(manager, paths).InitDirectory(artifactID)
}

func (h *platformHandler) platformResolve(cmd *cobra.Command, args []string) error {
	m, err := h.buildProjectManager(cmd)
	if err != nil {
		return err
	}
	if err := h.checkProjectRoot(cmd, m); err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	resolved, err := m.Resolve(cmd.Context())
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}
	printDependencies(cmd.OutOrStdout(), resolved.Dependencies)
	return nil
}

func printDependencies(w io.Writer, deps []tplat.Dependency) {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		line := fmt.Sprintf("%s (%s)", dep, dep.Scope)
		if dep.SystemPath != "" {
			line += " " + dep.SystemPath
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// parseUnit parses a unit argument of the form 'id[@version]'.
func parseUnit(arg string) (tplat.IUDescription, error) {
	id, v, _ := strings.Cut(arg, "@")
	if id == "" {
		return tplat.IUDescription{}, fmt.Errorf("invalid unit '%s'", arg)
	}
	if v != "" {
		if _, err := tplat.OSGiVersion(v); err != nil {
			return tplat.IUDescription{}, fmt.Errorf("invalid version of unit '%s': %w", arg, err)
		}
	}
	return tplat.IUDescription{ID: id, Version: v}, nil
}

func (h *platformHandler) platformMirror(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	sourceFlags, err := flags.GetStringArray("source")
	if err != nil {
		return err
	}
	var sources tplat.RepositoryReferences
	for _, s := range sourceFlags {
		sources = append(sources, tplat.RepositoryReference{Location: s})
	}
	if len(sources) == 0 {
		sources = h.cfg.Repositories
	}
	if len(sources) == 0 {
		return h.ui.ReportError("No source repositories given")
	}

	dest := tplat.DestinationRepositoryDescriptor{}
	if dest.Location, err = filepath.Abs(args[0]); err != nil {
		return err
	}
	if dest.Name, err = flags.GetString("name"); err != nil {
		return err
	}
	if dest.Compress, err = flags.GetBool("compress"); err != nil {
		return err
	}
	if dest.Append, err = flags.GetBool("append"); err != nil {
		return err
	}

	options := tplat.MirrorOptions{}
	if options.LatestVersionOnly, err = flags.GetBool("latest-only"); err != nil {
		return err
	}
	if options.FollowStrictOnly, err = flags.GetBool("strict-only"); err != nil {
		return err
	}
	if options.IncludeOptional, err = flags.GetBool("include-optional"); err != nil {
		return err
	}
	envFlags, err := flags.GetStringArray("environment")
	if err != nil {
		return err
	}
	for _, e := range envFlags {
		env, err := tplat.ParseTargetEnvironment(e)
		if err != nil {
			return h.ui.ReportError("Invalid environment '%s': %v", e, err)
		}
		options.Environments = append(options.Environments, env)
	}

	var units []tplat.IUDescription
	for _, arg := range args[1:] {
		unit, err := parseUnit(arg)
		if err != nil {
			return h.ui.ReportError("%v", err)
		}
		units = append(units, unit)
	}

	m, err := h.buildManager(cmd)
	if err != nil {
		return err
	}
	_, err = m.Mirror(cmd.Context(), sources, dest, units, options)
	return err
}

func (h *platformHandler) platformClean(cmd *cobra.Command, args []string) error {
	m, err := h.buildManager(cmd)
	if err != nil {
		return err
	}
	return m.Clean()
}

func (h *platformHandler) printLockFile(cmd *cobra.Command, args []string) error {
	m, err := h.buildProjectManager(cmd)
	if err != nil {
		return err
	}
	lf, err := tplat.ReadLockFile(m.Paths.LockFile)
	if os.IsNotExist(err) {
		return h.ui.ReportError("Missing lock file '%s'", m.Paths.LockFile)
	} else if err != nil {
		return err
	}
	return lf.WriteYAML(cmd.OutOrStdout())
}

func (h *platformHandler) printPlatformFile(cmd *cobra.Command, args []string) error {
	m, err := h.buildProjectManager(cmd)
	if err != nil {
		return err
	}
	pf, err := tplat.ReadPlatformFile(m.Paths.PlatformFile, h.ui)
	if os.IsNotExist(err) {
		return h.ui.ReportError("Missing platform file '%s'", m.Paths.PlatformFile)
	} else if err != nil {
		return err
	}
	return pf.WriteYAML(cmd.OutOrStdout())
}

func (h *platformHandler) repositoryAdd(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}
	global, err := cmd.Flags().GetBool("global")
	if err != nil {
		return err
	}
	if global {
		return h.globalRepositoryAdd(cmd.Context(), args[0], name)
	}
	m, err := h.buildProjectManager(cmd)
	if err != nil {
		return err
	}
	return m.AddRepository(cmd.Context(), args[0], name)
}

func (h *platformHandler) globalRepositoryAdd(ctx context.Context, location string, name string) error {
	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return err
		}
		location = abs
	}
	for _, ref := range h.cfg.Repositories {
		if ref.Location == location {
			h.ui.ReportInfo("Repository '%s' already present", location)
			return nil
		}
	}
	h.cfg.Repositories = append(h.cfg.Repositories, tplat.RepositoryReference{Location: location, Name: name})
	return h.saveConfigs(ctx)
}

func (h *platformHandler) repositoryRemove(cmd *cobra.Command, args []string) error {
	global, err := cmd.Flags().GetBool("global")
	if err != nil {
		return err
	}
	if !global {
		m, err := h.buildProjectManager(cmd)
		if err != nil {
			return err
		}
		return m.RemoveRepository(args[0])
	}
	location := args[0]
	refs := tplat.RepositoryReferences{}
	for _, ref := range h.cfg.Repositories {
		if ref.Location != location && ref.Name != location {
			refs = append(refs, ref)
		}
	}
	if len(refs) == len(h.cfg.Repositories) {
		return h.ui.ReportError("Repository '%s' not found", location)
	}
	h.cfg.Repositories = refs
	return h.saveConfigs(cmd.Context())
}

func (h *platformHandler) repositoryList(cmd *cobra.Command, args []string) error {
	global, err := cmd.Flags().GetBool("global")
	if err != nil {
		return err
	}
	refs := h.cfg.Repositories
	if !global {
		m, err := h.buildProjectManager(cmd)
		if err != nil {
			return err
		}
		if refs, err = m.Repositories(); err != nil {
			return err
		}
	}
	w := cmd.OutOrStdout()
	for _, ref := range refs {
		if ref.Name != "" {
			fmt.Fprintf(w, "%s: %s\n", ref.Name, ref.Location)
		} else {
			fmt.Fprintln(w, ref.Location)
		}
	}
	return nil
}
