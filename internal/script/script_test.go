package script

import (
	"strings"
	"testing"
)

func TestRender_SubstitutesAndCaches(t *testing.T) {
	r, err := New("c={{COMPANY}};p={{PIXEL}};d={{DOMAIN}}", 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body, err := r.Render("acme", "pix1", "example.com")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(body) != "c=acme;p=pix1;d=example.com" {
		t.Errorf("Render() = %q", body)
	}

	if _, ok := r.cache.Get("acme/pix1/example.com"); !ok {
		t.Error("expected rendered body to be cached")
	}
}

func TestDefaultTemplate_ProducesPixelURL(t *testing.T) {
	r, err := New(DefaultTemplate, DefaultCacheCapacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	body, err := r.Render("acme", "pix1", "example.com")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(body), "/acme/pix1_example.com_SMART.GIF") {
		t.Errorf("rendered script missing expected pixel URL: %s", body)
	}
}
