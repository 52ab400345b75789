package configdiff

import "testing"

type testConfig struct {
	Image   string `json:"image"`
	Port    int    `json:"port"`
	Enabled bool   `json:"enabled"`
}

type testPartial struct {
	Image   *string `json:"image,omitempty"`
	Port    *int    `json:"port,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func TestMergePartial(t *testing.T) {
	current := testConfig{Image: "nginx:1.25", Port: 80, Enabled: true}
	partial := testPartial{Image: ptr("nginx:1.27")}

	merged, err := MergePartial[testConfig, testPartial](current, partial)
	if err != nil {
		t.Fatalf("MergePartial: %v", err)
	}
	if merged.Image != "nginx:1.27" {
		t.Errorf("Image = %q, want nginx:1.27", merged.Image)
	}
	if merged.Port != 80 || merged.Enabled != true {
		t.Errorf("untouched fields changed: %+v", merged)
	}
}

func TestPartialDiffMinimal(t *testing.T) {
	current := testConfig{Image: "nginx:1.25", Port: 80}
	proposed := testPartial{Image: ptr("nginx:1.27"), Port: ptr(80)}

	diff := PartialDiff[testConfig, testPartial](current, proposed)
	if diff.Image == nil || *diff.Image != "nginx:1.27" {
		t.Errorf("expected Image diff to survive, got %v", diff.Image)
	}
	if diff.Port != nil {
		t.Errorf("expected Port diff to be cleared (unchanged value), got %v", *diff.Port)
	}
}

func TestPartialDiffOfSelfIsEmpty(t *testing.T) {
	current := testConfig{Image: "nginx:1.25", Port: 80, Enabled: true}
	asPartial := testPartial{
		Image:   ptr(current.Image),
		Port:    ptr(current.Port),
		Enabled: ptr(current.Enabled),
	}

	diff := PartialDiff[testConfig, testPartial](current, asPartial)
	if !IsEmpty(diff) {
		t.Errorf("expected diffing a config against itself to be empty, got %+v", diff)
	}
}

func TestMergeThenDiffRoundTrip(t *testing.T) {
	current := testConfig{Image: "nginx:1.25", Port: 80}
	patch := testPartial{Port: ptr(8080)}

	direct, err := MergePartial[testConfig, testPartial](current, patch)
	if err != nil {
		t.Fatal(err)
	}

	diff := PartialDiff[testConfig, testPartial](current, patch)
	viaDiff, err := MergePartial[testConfig, testPartial](current, diff)
	if err != nil {
		t.Fatal(err)
	}

	if direct != viaDiff {
		t.Errorf("merge_partial(partial_diff(p)) != merge_partial(p): %+v vs %+v", viaDiff, direct)
	}
}
