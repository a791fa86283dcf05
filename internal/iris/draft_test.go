package iris

import (
	"net/url"
	"testing"
)

func TestNewDraftIsSetosa(t *testing.T) {
	d := NewDraft()
	want := [NumFeatures]string{"5.1", "3.5", "1.4", "0.2"}
	if d.Inputs != want {
		t.Errorf("inputs = %v, want %v", d.Inputs, want)
	}
	if d.Model != ModelLogReg {
		t.Errorf("model = %q", d.Model)
	}
}

func TestApplyPresetAndClear(t *testing.T) {
	d := NewDraft()
	if err := d.ApplyPreset("Virginica"); err != nil {
		t.Fatal(err)
	}
	if d.Inputs != [NumFeatures]string{"6.3", "3.3", "6", "2.5"} {
		t.Errorf("inputs = %v", d.Inputs)
	}
	if err := d.ApplyPreset("rose"); err == nil {
		t.Error("expected unknown preset error")
	}

	d.Model = ModelKMeans
	d.Clear()
	if d.Inputs != ([NumFeatures]string{}) {
		t.Errorf("inputs not cleared: %v", d.Inputs)
	}
	if d.Model != ModelKMeans {
		t.Error("clear must keep the model")
	}
}

func TestPresetTitle(t *testing.T) {
	if got := PresetTitle("versicolor"); got != "Versicolor" {
		t.Errorf("got %q", got)
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	drafts := []Draft{
		{Inputs: [NumFeatures]string{"5.1", "3.5", "1.4", "0.2"}, Model: ModelLogReg},
		{Inputs: [NumFeatures]string{"6", "", "4.5 ", "x&y=z"}, Model: ModelKMeans},
		{Inputs: [NumFeatures]string{"", "", "", ""}, Model: ""},
	}

	for _, d := range drafts {
		link, err := ShareLink("http://localhost:8088/?theme=dark", d, "http://api.local:8080")
		if err != nil {
			t.Fatalf("ShareLink: %v", err)
		}
		// Start from a different draft so every field must come from the link.
		base := Draft{Inputs: [NumFeatures]string{"9", "9", "9", "9"}, Model: "other"}
		got, api, err := ParseShareLink(link, base)
		if err != nil {
			t.Fatalf("ParseShareLink: %v", err)
		}
		if got != d {
			t.Errorf("round trip = %+v, want %+v (link %s)", got, d, link)
		}
		if api != "http://api.local:8080" {
			t.Errorf("api = %q", api)
		}
	}
}

func TestHydrateIsPartial(t *testing.T) {
	d := NewDraft()
	d.Hydrate(url.Values{"pw": {"1.8"}})
	want := [NumFeatures]string{"5.1", "3.5", "1.4", "1.8"}
	if d.Inputs != want {
		t.Errorf("inputs = %v, want %v", d.Inputs, want)
	}
	if d.Model != ModelLogReg {
		t.Errorf("model changed to %q", d.Model)
	}

	d.Hydrate(url.Values{"model": {"kmeans"}})
	if d.Model != ModelKMeans || d.Inputs != want {
		t.Errorf("unexpected draft %+v", d)
	}
}
