package main

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sigilum/internal/imageio"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	runsDir    string
	cacheDir   string
	storePath  string
	chequePath string
	refsDir    string
}

// setupCLITestEnv writes a config, three profiles, a cheque image and one
// reference identical to the cheque.
func setupCLITestEnv(t *testing.T) cliTestEnv {
	t.Helper()
	base := t.TempDir()
	env := cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		runsDir:    filepath.Join(base, "runs"),
		cacheDir:   filepath.Join(base, "cache"),
		storePath:  filepath.Join(base, "state", "ledger.db"),
		chequePath: filepath.Join(base, "cheque.png"),
		refsDir:    filepath.Join(base, "firmas"),
	}

	writeFile(t, filepath.Join(base, "pipeline.yaml"), "pipeline:\n  - phase: Threshold\n    params:\n      level: 128\n")
	writeFile(t, filepath.Join(base, "search.yaml"), "Threshold:\n  invert: [false, true]\n")
	writeFile(t, filepath.Join(base, "metrics.yaml"),
		"metrics:\n  - name: ncc\n  - name: mse\ntarget_size: [16, 16]\n")

	config := fmt.Sprintf(`[paths]
runs_dir = %q
log_dir = %q

[profiles]
pipeline = %q
search = %q
metrics = %q

[run]
mode = "absolute"

[cache]
enabled = true
backend = "dir"
dir = %q

[store]
enabled = true
path = %q

[logging]
format = "json"
level = "error"
`, env.runsDir, filepath.Join(base, "logs"),
		filepath.Join(base, "pipeline.yaml"), filepath.Join(base, "search.yaml"), filepath.Join(base, "metrics.yaml"),
		env.cacheDir, env.storePath)
	writeFile(t, env.configPath, config)

	cheque := halfInk(16, 16)
	if err := imageio.WritePNG(env.chequePath, cheque); err != nil {
		t.Fatal(err)
	}
	if err := imageio.WritePNG(filepath.Join(env.refsDir, "a.png"), cheque); err != nil {
		t.Fatal(err)
	}
	return env
}

// halfInk is black on the left half and white on the right.
func halfInk(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= w/2 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
