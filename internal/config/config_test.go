package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawcore.json")
	body := `{"CameraDescriptionPath": "camera.json"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", c.Port)
	}
	if c.JpegQuality != 95 {
		t.Fatalf("expected default jpeg quality 95, got %d", c.JpegQuality)
	}
	if c.PreviewDownscale != 2 {
		t.Fatalf("expected default preview downscale 2, got %d", c.PreviewDownscale)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawcore.toml")
	body := "CameraDescriptionPath = \"camera.json\"\nPort = 9999\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != 9999 {
		t.Fatalf("expected configured port 9999, got %d", c.Port)
	}
}

func TestCheckRejectsMissingCameraDescription(t *testing.T) {
	c := &Config{}
	if err := c.Check("/tmp/rawcore.json"); err == nil {
		t.Fatal("expected error for missing CameraDescriptionPath")
	}
}
