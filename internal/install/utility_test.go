package install

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"

	"github.com/anvil-platform/anvilpkg/internal/manifest"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/resolver"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

func pkg(id, version string, deps ...packages.Dependency) packages.Package {
	return packages.Package{ID: id, Version: semver.MustParseVersion(version), Listed: true, Dependencies: deps}
}

func dep(id, rng string) packages.Dependency {
	return packages.Dependency{ID: id, Range: semver.MustParseRange(rng)}
}

type fixture struct {
	refs    *manifest.Manifest
	project *project.Project
	target  Target
}

// newFixture references installed in a fresh in-memory project. The local
// repository resolves their metadata from the same packages.
func newFixture(t *testing.T, name string, source repository.Repository, installed ...packages.Package) fixture {
	t.Helper()
	refs := manifest.NewInMemory(name)
	for _, p := range installed {
		if err := refs.AddReference(p); err != nil {
			t.Fatalf("AddReference error: %v", err)
		}
	}
	proj := &project.Project{Name: name, References: refs, Constraints: refs}
	return fixture{
		refs:    refs,
		project: proj,
		target: Target{
			Project: proj,
			Source:  source,
			Local:   repository.NewLocal(refs, repository.NewMemory(installed...)),
		},
	}
}

func describe(actions []resolver.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.String())
	}
	return out
}

func TestUnsafeUpdateToLatest(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.1.0"), pkg("Foo", "2.0.0"), pkg("Foo", "3.0.0-beta"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	u := &Utility{Resolver: resolver.New()}

	actions, err := u.ResolveActions(context.Background(), "foo", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Uninstall(Foo 1.0.0, Project1)",
		"Install(Foo 2.0.0, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
}

func TestUnsafeUpdateAllowsPrerelease(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "2.0.0-beta"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	u := &Utility{Resolver: resolver.New(), AllowPrerelease: true}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	if len(actions) != 2 || actions[1].Package.Version.String() != "2.0.0-beta" {
		t.Fatalf("expected prerelease install, got %v", describe(actions))
	}
}

func TestUnsafeUpdateHonorsConstraint(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.4.0"), pkg("Foo", "1.5.0"), pkg("Foo", "2.0.0"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	if err := f.refs.Pin("Foo", semver.MustParseRange("[1.0.0, 1.5.0)")); err != nil {
		t.Fatalf("Pin error: %v", err)
	}

	var lines []string
	log := funcr.New(func(prefix, args string) { lines = append(lines, args) }, funcr.Options{})
	u := &Utility{Resolver: resolver.New(), Log: log}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	if len(actions) != 2 || actions[1].Package.Version.String() != "1.4.0" {
		t.Fatalf("expected Foo 1.4.0, got %v", describe(actions))
	}

	// Once at 1.4.0 nothing newer is allowed; the constraint is reported.
	f2 := newFixture(t, "Project1", source, pkg("Foo", "1.4.0"))
	if err := f2.refs.Pin("Foo", semver.MustParseRange("[1.0.0, 1.5.0)")); err != nil {
		t.Fatalf("Pin error: %v", err)
	}
	lines = nil
	actions, err = u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f2.target})
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected no actions, got %v, %v", describe(actions), err)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, `"constraint"="(>= 1.0.0 && < 1.5.0)"`) || !strings.Contains(joined, "no updates available") {
		t.Fatalf("expected constraint and no-update messages, got:\n%s", joined)
	}
}

func TestUnsafeExplicitVersion(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.2.0"), pkg("Foo", "2.0.0"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	u := &Utility{Resolver: resolver.New()}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.MustParseVersion("1.2.0"), []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	if len(actions) != 2 || actions[1].String() != "Install(Foo 1.2.0, Project1)" {
		t.Fatalf("unexpected actions %v", describe(actions))
	}
}

func TestUnsafeInvalidVersionQueuesNothing(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.1.0"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	r := resolver.New()

	var lines []string
	log := funcr.New(func(prefix, args string) { lines = append(lines, args) }, funcr.Options{})
	u := &Utility{Resolver: r, Log: log}

	_, err := u.ResolveActions(context.Background(), "Foo", semver.MustParseVersion("9.9.9"), []Target{f.target})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected no queued operations, got %d", r.Pending())
	}
	if !strings.Contains(strings.Join(lines, "\n"), `"version"="9.9.9"`) {
		t.Fatalf("expected the requested version to be logged, got %v", lines)
	}
}

func TestUnsafeUnlistedExplicitVersionIsInvalid(t *testing.T) {
	unlisted := pkg("Foo", "1.1.0")
	unlisted.Listed = false
	source := repository.NewMemory(pkg("Foo", "1.0.0"), unlisted)
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	u := &Utility{Resolver: resolver.New()}

	_, err := u.ResolveActions(context.Background(), "Foo", semver.MustParseVersion("1.1.0"), []Target{f.target})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestUnknownPackagePropagatesNotFound(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"))
	f := newFixture(t, "Project1", source, pkg("Nope", "1.0.0"))
	u := &Utility{Resolver: resolver.New()}

	_, err := u.ResolveActions(context.Background(), "Nope", semver.Version{}, []Target{f.target})
	if !errors.Is(err, repository.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
}

func TestUnsafeSkipsProjectsWithoutThePackage(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.1.0"))
	f := newFixture(t, "Project1", source)
	u := &Utility{Resolver: resolver.New()}

	for _, v := range []semver.Version{{}, semver.MustParseVersion("1.1.0")} {
		actions, err := u.ResolveActions(context.Background(), "Foo", v, []Target{f.target})
		if err != nil || len(actions) != 0 {
			t.Fatalf("expected silent skip for version %q, got %v, %v", v, describe(actions), err)
		}
	}
}

func TestSafeUpdateStaysInMinorLine(t *testing.T) {
	source := repository.NewMemory(
		pkg("Foo", "1.2.0"), pkg("Foo", "1.2.7"), pkg("Foo", "1.3.0"), pkg("Foo", "2.0.0"),
	)
	f := newFixture(t, "Project1", source, pkg("Foo", "1.2.0"))
	u := &Utility{Resolver: resolver.New(), Safe: true}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Uninstall(Foo 1.2.0, Project1)",
		"Install(Foo 1.2.7, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
}

func TestSafeUpdateWithoutInstalledCopyIsNoop(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.0.1"))
	f := newFixture(t, "Project1", source)
	r := resolver.New()
	u := &Utility{Resolver: r, Safe: true}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected silent no-op, got %v, %v", describe(actions), err)
	}
}

func TestSafeUpdateWithoutMatchSkips(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "2.0.0"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	u := &Utility{Resolver: resolver.New(), Safe: true}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected skip, got %v, %v", describe(actions), err)
	}
}

func TestUpdateAllSafeTwoProjects(t *testing.T) {
	source := repository.NewMemory(
		pkg("Foo", "1.0.0", dep("Bar", "[1.0.0, 3.0.0)")),
		pkg("Foo", "1.0.1", dep("Bar", "[1.0.0, 3.0.0)")),
		pkg("Foo", "1.1.0", dep("Bar", "[1.0.0, 3.0.0)")),
		pkg("Bar", "1.0.0"),
		pkg("Bar", "2.0.0"),
	)
	p1 := newFixture(t, "Project1", source, pkg("Foo", "1.0.0", dep("Bar", "[1.0.0, 3.0.0)")), pkg("Bar", "1.0.0"))
	p2 := newFixture(t, "Project2", source)
	u := &Utility{Resolver: resolver.New(), Safe: true}

	actions, err := u.ResolveActions(context.Background(), "", semver.Version{}, []Target{p1.target, p2.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}

	var installs []string
	for _, a := range actions {
		if packages.SameID(a.Package.ID, "Bar") {
			t.Fatalf("expected Bar untouched, got %s", a)
		}
		if a.Type == resolver.Install {
			installs = append(installs, a.String())
		}
	}
	if diff := cmp.Diff([]string{"Install(Foo 1.0.1, Project1)"}, installs); diff != "" {
		t.Fatalf("unexpected installs (-want +got):\n%s", diff)
	}
	if got := resolver.ForProject(actions, p2.project); len(got) != 0 {
		t.Fatalf("expected nothing for Project2, got %v", describe(got))
	}
}

func TestUpdateAllVisitsDependentsFirst(t *testing.T) {
	source := repository.NewMemory(
		pkg("A", "1.0.0", dep("B", "[1.0.0, 2.0.0)")),
		pkg("A", "1.0.1", dep("B", "[1.0.0, 2.0.0)")),
		pkg("B", "1.0.0"),
		pkg("B", "1.0.1"),
	)
	f := newFixture(t, "Project1", source, pkg("A", "1.0.0", dep("B", "[1.0.0, 2.0.0)")), pkg("B", "1.0.0"))
	u := &Utility{Resolver: resolver.New(), Safe: true}

	actions, err := u.ResolveActions(context.Background(), "", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Uninstall(A 1.0.0, Project1)",
		"Install(A 1.0.1, Project1)",
		"Uninstall(B 1.0.0, Project1)",
		"Install(B 1.0.1, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
}

func TestUpdateAllSkipsPackagesUnknownToSource(t *testing.T) {
	source := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "2.0.0"))
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"), pkg("Private", "1.0.0"))
	u := &Utility{Resolver: resolver.New()}

	actions, err := u.ResolveActions(context.Background(), "", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	if len(actions) != 2 || actions[1].String() != "Install(Foo 2.0.0, Project1)" {
		t.Fatalf("unexpected actions %v", describe(actions))
	}
}

func TestUpdateQueuesMissingDependenciesFirst(t *testing.T) {
	source := repository.NewMemory(
		pkg("Foo", "1.0.0"),
		pkg("Foo", "2.0.0", dep("Bar", "[2.0.0, )"), dep("Baz", "[1.0.0, )")),
		pkg("Bar", "1.0.0"),
		pkg("Bar", "2.0.0", dep("Qux", "[1.0.0, )")),
		pkg("Bar", "2.1.0"),
		pkg("Baz", "1.0.0"),
		pkg("Qux", "1.0.0", dep("Bar", "[2.0.0, )")),
	)
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"), pkg("Bar", "1.0.0"), pkg("Baz", "1.5.0"))
	u := &Utility{Resolver: resolver.New()}

	actions, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Install(Qux 1.0.0, Project1)",
		"Uninstall(Bar 1.0.0, Project1)",
		"Install(Bar 2.0.0, Project1)",
		"Uninstall(Foo 1.0.0, Project1)",
		"Install(Foo 2.0.0, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
}

func TestUnresolvableDependencyQueuesNothing(t *testing.T) {
	source := repository.NewMemory(
		pkg("Foo", "1.0.0"),
		pkg("Foo", "2.0.0", dep("Bar", "[5.0.0, )")),
		pkg("Bar", "1.0.0"),
	)
	f := newFixture(t, "Project1", source, pkg("Foo", "1.0.0"))
	r := resolver.New()
	u := &Utility{Resolver: r}

	_, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{f.target})
	if !errors.Is(err, ErrDependencyUnresolved) {
		t.Fatalf("expected ErrDependencyUnresolved, got %v", err)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected nothing queued, got %d", r.Pending())
	}
}

func TestResolveActionsValidatesTargets(t *testing.T) {
	u := &Utility{Resolver: resolver.New()}
	_, err := u.ResolveActions(context.Background(), "Foo", semver.Version{}, []Target{{}})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}

	source := repository.NewMemory()
	f := newFixture(t, "Project1", source)
	f.target.Local = nil
	_, err = u.ResolveActions(context.Background(), "", semver.Version{}, []Target{f.target})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for update-all without local repository, got %v", err)
	}
}

// assertDependenciesHold applies actions to the installed versions and checks
// that every package left referenced has its dependencies in range.
func assertDependenciesHold(t *testing.T, source repository.Repository, installed []packages.Package, actions []resolver.Action) {
	t.Helper()
	final := map[string]semver.Version{}
	for _, p := range installed {
		final[packages.NormalizeID(p.ID)] = p.Version
	}
	for _, a := range actions {
		id := packages.NormalizeID(a.Package.ID)
		switch a.Type {
		case resolver.Install:
			final[id] = a.Package.Version
		case resolver.Uninstall:
			if v, ok := final[id]; ok && v.Equal(a.Package.Version) {
				delete(final, id)
			}
		}
	}
	for id, v := range final {
		p, _, err := repository.FindPackage(context.Background(), source, id, repository.Query{Version: v})
		if err != nil {
			t.Fatalf("lookup %s %s: %v", id, v, err)
		}
		for _, d := range p.Dependencies {
			got, ok := final[packages.NormalizeID(d.ID)]
			if !ok || !d.Range.Contains(got) {
				t.Fatalf("%s requires %s %s but the plan leaves %s at %q", p, d.ID, d.Range.PrettyPrint(), d.ID, got)
			}
		}
	}
}

func pulledForwardSource(extra ...packages.Package) *repository.Memory {
	source := repository.NewMemory(
		pkg("A", "1.0.0", dep("B", "[1.0.0, 2.0.0)")),
		pkg("A", "1.0.1", dep("B", "[1.1.0, 2.0.0)")),
		pkg("B", "1.0.0"),
		pkg("B", "1.0.5"),
		pkg("B", "1.1.0"),
	)
	source.Add(extra...)
	return source
}

func TestSafeUpdateAllKeepsDependencyPulledForward(t *testing.T) {
	source := pulledForwardSource()
	installed := []packages.Package{pkg("A", "1.0.0", dep("B", "[1.0.0, 2.0.0)")), pkg("B", "1.0.0")}
	f := newFixture(t, "Project1", source, installed...)
	u := &Utility{Resolver: resolver.New(), Safe: true}

	actions, err := u.ResolveActions(context.Background(), "", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Uninstall(B 1.0.0, Project1)",
		"Install(B 1.1.0, Project1)",
		"Uninstall(A 1.0.0, Project1)",
		"Install(A 1.0.1, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
	assertDependenciesHold(t, source, installed, actions)
}

func TestUnsafeUpdateAllStaysInsideDependentRanges(t *testing.T) {
	source := pulledForwardSource(pkg("B", "1.2.0"), pkg("B", "2.0.0"))
	installed := []packages.Package{pkg("A", "1.0.0", dep("B", "[1.0.0, 2.0.0)")), pkg("B", "1.0.0")}
	f := newFixture(t, "Project1", source, installed...)
	u := &Utility{Resolver: resolver.New()}

	actions, err := u.ResolveActions(context.Background(), "", semver.Version{}, []Target{f.target})
	if err != nil {
		t.Fatalf("ResolveActions error: %v", err)
	}
	want := []string{
		"Uninstall(B 1.0.0, Project1)",
		"Install(B 1.1.0, Project1)",
		"Uninstall(A 1.0.0, Project1)",
		"Install(A 1.0.1, Project1)",
		"Uninstall(B 1.1.0, Project1)",
		"Install(B 1.2.0, Project1)",
	}
	if diff := cmp.Diff(want, describe(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
	assertDependenciesHold(t, source, installed, actions)
}

func TestFailedTargetDropsOperationsOfEarlierTargets(t *testing.T) {
	good := repository.NewMemory(pkg("Foo", "1.0.0"), pkg("Foo", "1.2.0"))
	bad := repository.NewMemory(pkg("Foo", "1.0.0"))
	p1 := newFixture(t, "Project1", good, pkg("Foo", "1.0.0"))
	p2 := newFixture(t, "Project2", bad, pkg("Foo", "1.0.0"))
	r := resolver.New()
	u := &Utility{Resolver: r}

	_, err := u.ResolveActions(context.Background(), "Foo", semver.MustParseVersion("1.2.0"), []Target{p1.target, p2.target})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected the queue reset after the failure, got %d pending", r.Pending())
	}
}
