package nanoprefs

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanoprefs/testutil"
	"github.com/arthur-debert/nanoprefs/types"
)

var (
	profileName = CopyField("name",
		func(p testutil.Profile) string { return p.Name },
		func(p testutil.Profile, v string) testutil.Profile { p.Name = v; return p })
	profileAge = CopyField("age",
		func(p testutil.Profile) int { return p.Age },
		func(p testutil.Profile, v int) testutil.Profile { p.Age = v; return p })
	profileAddress = CopyField("address",
		func(p testutil.Profile) testutil.Address { return p.Address },
		func(p testutil.Profile, v testutil.Address) testutil.Profile { p.Address = v; return p },
		Unsupported("Address"))
	addressCity = CopyField("city",
		func(a testutil.Address) string { return a.City },
		func(a testutil.Address, v string) testutil.Address { a.City = v; return a })
	settingsProfile = MutableField("profile",
		func(s *testutil.Settings) testutil.Profile { return s.Profile },
		func(s *testutil.Settings, v testutil.Profile) { s.Profile = v },
		Unsupported("Profile"))
)

func TestMutableField(t *testing.T) {
	volume := MutableField("volume",
		func(s *testutil.Settings) int { return s.Volume },
		func(s *testutil.Settings, v int) { s.Volume = v })

	s := &testutil.Settings{Theme: "dark"}
	out, err := volume.Set(s, 11)
	if err != nil {
		t.Fatal(err)
	}
	if out != s {
		t.Error("a mutable field must return the same container")
	}
	if got, _ := volume.Get(s); got != 11 {
		t.Errorf("Get = %d, want 11", got)
	}
	if s.Theme != "dark" {
		t.Errorf("sibling field changed to %q", s.Theme)
	}
	if !volume.PreferenceType().Equal(types.NativeOf(types.KindInt)) {
		t.Errorf("PreferenceType = %s", volume.PreferenceType())
	}

	if _, err := volume.Get(nil); err == nil {
		t.Error("expected an error for a nil container")
	}
}

func TestCopyField(t *testing.T) {
	before := testutil.Profile{Name: "Ada", Age: 36}

	after, err := profileAge.Set(before, 42)
	if err != nil {
		t.Fatal(err)
	}
	if after.Age != 42 || after.Name != "Ada" {
		t.Errorf("Set = %+v, want age 42 and name unchanged", after)
	}
	if before.Age != 36 {
		t.Errorf("original container changed to %+v", before)
	}
	if got, _ := profileAge.Get(after); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
}

func TestCopyFieldWithoutCopyFunction(t *testing.T) {
	f := CopyField[testutil.Profile, int]("age", func(p testutil.Profile) int { return p.Age }, nil)

	_, err := NewAccessor[testutil.Profile]().Property(Erase(f))
	if !errors.Is(err, types.ErrConfig) || !errors.Is(err, types.ErrMissingCopyFunc) {
		t.Errorf("Property = %v, want a missing copy function configuration error", err)
	}
}

func TestCloneField(t *testing.T) {
	theme := CloneField("theme",
		func(s testutil.Settings) string { return s.Theme },
		func(s *testutil.Settings, v string) { s.Theme = v })

	before := testutil.Settings{Theme: "light", Profile: testutil.FixtureProfile}
	after, err := theme.Set(before, "dark")
	if err != nil {
		t.Fatal(err)
	}
	if before.Theme != "light" {
		t.Error("clone field mutated the original container")
	}
	want := before
	want.Theme = "dark"
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("Set mismatch (-want +got):\n%s", diff)
	}
}

func TestCompose(t *testing.T) {
	composed := Compose(settingsProfile, profileAge)
	if composed.Name() != "profile_age" {
		t.Errorf("Name = %q, want profile_age", composed.Name())
	}
	if !composed.PreferenceType().Equal(types.NativeOf(types.KindInt)) {
		t.Errorf("PreferenceType = %s, want the inner field's", composed.PreferenceType())
	}

	s := &testutil.Settings{Theme: "dark", Volume: 3, Profile: testutil.FixtureProfile}
	if _, err := composed.Set(s, 50); err != nil {
		t.Fatal(err)
	}
	if got, _ := composed.Get(s); got != 50 {
		t.Errorf("composed Get = %d, want 50", got)
	}

	want := testutil.Settings{Theme: "dark", Volume: 3, Profile: testutil.FixtureProfile}
	want.Profile.Age = 50
	if diff := cmp.Diff(want, *s); diff != "" {
		t.Errorf("siblings changed (-want +got):\n%s", diff)
	}
}

func TestCompose3(t *testing.T) {
	city := Compose3(settingsProfile, profileAddress, addressCity)
	if city.Name() != "profile_address_city" {
		t.Errorf("Name = %q", city.Name())
	}

	s := &testutil.Settings{Profile: testutil.FixtureProfile}
	if _, err := city.Set(s, "Paris"); err != nil {
		t.Fatal(err)
	}
	want := testutil.FixtureProfile
	want.Address.City = "Paris"
	if diff := cmp.Diff(want, s.Profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	if got, _ := city.Get(s); got != "Paris" {
		t.Errorf("Get = %q, want Paris", got)
	}
}

func TestComposeOverValueContainers(t *testing.T) {
	type account struct {
		Owner testutil.Profile
	}
	owner := CopyField("owner",
		func(a account) testutil.Profile { return a.Owner },
		func(a account, p testutil.Profile) account { a.Owner = p; return a },
		Unsupported("Profile"))
	ownerName := Compose(owner, profileName)

	before := account{Owner: testutil.FixtureProfile}
	after, err := ownerName.Set(before, "Grace")
	if err != nil {
		t.Fatal(err)
	}
	if after.Owner.Name != "Grace" || after.Owner.Age != testutil.FixtureProfile.Age {
		t.Errorf("Set = %+v", after)
	}
	if before.Owner.Name != "Ada" {
		t.Error("original container changed")
	}
}

func TestJSONPathField(t *testing.T) {
	type doc struct{ Raw string }
	raw := MutableField("profile",
		func(d *doc) string { return d.Raw },
		func(d *doc, v string) { d.Raw = v })
	city := JSONPathField[*doc, string](raw, "address.city")

	if city.Name() != "profile_address_city" {
		t.Errorf("Name = %q", city.Name())
	}

	d := &doc{Raw: `{"name":"Ada","address":{"city":"London","zip":"N1"}}`}
	if got, err := city.Get(d); err != nil || got != "London" {
		t.Fatalf("Get = (%q, %v), want London", got, err)
	}
	if _, err := city.Set(d, "Paris"); err != nil {
		t.Fatal(err)
	}
	if got, _ := city.Get(d); got != "Paris" {
		t.Errorf("Get after Set = %q, want Paris", got)
	}
	name := JSONPathField[*doc, string](raw, "name")
	if got, _ := name.Get(d); got != "Ada" {
		t.Errorf("sibling value changed to %q", got)
	}

	empty := &doc{}
	if got, err := city.Get(empty); err != nil || got != "" {
		t.Errorf("Get on empty document = (%q, %v), want zero value", got, err)
	}
}

func TestFieldTypeInference(t *testing.T) {
	color := MutableField("color",
		func(s *struct{ C testutil.Color }) testutil.Color { return s.C },
		func(s *struct{ C testutil.Color }, v testutil.Color) { s.C = v })
	if _, ok := color.PreferenceType().(types.EnumName); !ok {
		t.Errorf("PreferenceType = %s, want EnumName", color.PreferenceType())
	}

	bad := MutableField("ratio",
		func(s *struct{ R float64 }) float64 { return s.R },
		func(s *struct{ R float64 }, v float64) { s.R = v })
	_, err := NewAccessor[*struct{ R float64 }]().Property(Erase(bad))
	if !errors.Is(err, types.ErrUnsupportedType) {
		t.Errorf("Property = %v, want an unsupported type error", err)
	}
}
