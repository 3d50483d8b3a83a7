package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tsxbridge/internal/build"
	"github.com/conneroisu/tsxbridge/internal/errors"
)

// setupProject creates a components directory and a fake esbuild that copies
// the entry file to --outfile, and points the global configuration at them.
func setupProject(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake esbuild is a POSIX shell script")
	}

	dir := t.TempDir()
	write := func(rel, content string, mode os.FileMode) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), mode))
	}
	write("components/counter/index.tsx", "export default function Counter() {}\n", 0o644)
	write("components/counter/schema.json", `{"title":"Counter","version":"2.1.0"}`, 0o644)
	write("components/forms/input/index.ts", "export default function Input() {}\n", 0o644)
	write("bin/esbuild", `#!/bin/sh
out=""
for arg in "$@"; do
  case "$arg" in
    --outfile=*) out="${arg#--outfile=}" ;;
  esac
done
cat "$1" > "$out"
`, 0o755)

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("components.sources", []map[string]interface{}{
		{"path": filepath.Join(dir, "components"), "prefix": "ui"},
		{"path": filepath.Join(dir, "missing")},
	})
	viper.Set("bundler.command", filepath.Join(dir, "bin", "esbuild"))
	viper.Set("logging.level", "error")

	return dir
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &out
}

func TestListCommand(t *testing.T) {
	setupProject(t)
	t.Cleanup(func() { listFormat, listMetadata = "table", false })

	t.Run("table", func(t *testing.T) {
		listFormat, listMetadata = "table", false
		cmd, out := testCommand()
		require.NoError(t, runList(cmd, nil))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "NAME"))
		assert.True(t, strings.HasPrefix(lines[1], "ui:counter"))
		assert.True(t, strings.HasPrefix(lines[2], "ui:forms.input"))
	})

	t.Run("table with metadata", func(t *testing.T) {
		listFormat, listMetadata = "table", true
		cmd, out := testCommand()
		require.NoError(t, runList(cmd, nil))
		assert.Contains(t, out.String(), "TITLE")
		assert.Contains(t, out.String(), "2.1.0")
	})

	t.Run("json", func(t *testing.T) {
		listFormat, listMetadata = "json", true
		cmd, out := testCommand()
		require.NoError(t, runList(cmd, nil))

		var listing []componentListing
		require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
		require.Len(t, listing, 2)
		assert.Equal(t, "ui:counter", listing[0].Name)
		assert.Equal(t, "Counter", listing[0].Metadata["title"])
		assert.Empty(t, listing[1].Metadata)
	})

	t.Run("yaml", func(t *testing.T) {
		listFormat, listMetadata = "yaml", false
		cmd, out := testCommand()
		require.NoError(t, runList(cmd, nil))

		var listing []map[string]interface{}
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &listing))
		require.Len(t, listing, 2)
		assert.Equal(t, "ui:forms.input", listing[1]["name"])
	})
}

func TestListCommand_Empty(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("components.sources", []map[string]interface{}{{"path": t.TempDir()}})
	viper.Set("logging.level", "error")
	listFormat = "table"

	cmd, out := testCommand()
	require.NoError(t, runList(cmd, nil))
	assert.Equal(t, "No components found.\n", out.String())
}

func TestBundleCommand(t *testing.T) {
	dir := setupProject(t)
	t.Cleanup(func() { bundleOutput, bundleHashOnly = "", false })
	code := "export default function Counter() {}\n"

	cmd, out := testCommand()
	require.NoError(t, runBundle(cmd, []string{"ui:counter"}))
	assert.Equal(t, code, out.String())

	bundleHashOnly = true
	cmd, out = testCommand()
	require.NoError(t, runBundle(cmd, []string{"ui:counter"}))
	assert.Equal(t, build.ContentHash(code)+"\n", out.String())

	bundleHashOnly = false
	bundleOutput = filepath.Join(dir, "counter.js")
	cmd, out = testCommand()
	require.NoError(t, runBundle(cmd, []string{"ui:counter"}))
	assert.Contains(t, out.String(), "Wrote")
	data, err := os.ReadFile(bundleOutput)
	require.NoError(t, err)
	assert.Equal(t, code, string(data))
}

func TestBundleCommand_Errors(t *testing.T) {
	setupProject(t)

	cmd, _ := testCommand()
	err := runBundle(cmd, []string{"ui:nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	err = runBundle(cmd, []string{"../etc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid component name")
}

func TestBundleCommand_TimeoutHint(t *testing.T) {
	dir := setupProject(t)
	slow := filepath.Join(dir, "bin", "slow-esbuild")
	require.NoError(t, os.WriteFile(slow, []byte("#!/bin/sh\nexec sleep 10\n"), 0o755))
	viper.Set("bundler.command", slow)
	viper.Set("bundler.timeout", "200ms")

	cmd, _ := testCommand()
	err := runBundle(cmd, []string{"ui:counter"})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Contains(t, err.Error(), "raise bundler.timeout")
}

func TestBundleCommand_BundlerNotFoundHint(t *testing.T) {
	setupProject(t)
	for _, path := range []string{"/usr/local/bin/esbuild", "/usr/bin/esbuild"} {
		if _, err := os.Stat(path); err == nil {
			t.Skipf("esbuild installed at %s", path)
		}
	}
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	viper.Set("bundler.command", "")
	viper.Set("bundler.project_dir", t.TempDir())

	cmd, _ := testCommand()
	err := runBundle(cmd, []string{"ui:counter"})
	require.Error(t, err)
	assert.True(t, errors.IsBundlerNotFound(err))
	assert.Contains(t, err.Error(), "tsxbridge doctor")
}

func TestEmbedCommand(t *testing.T) {
	setupProject(t)
	t.Cleanup(func() { embedProps, embedLive, embedValidateURL, embedReload = "", false, "", false })

	embedProps = `{"start": 3}`
	embedLive = true
	embedValidateURL = "/preview"

	cmd, out := testCommand()
	require.NoError(t, runEmbed(cmd, []string{"ui:counter"}))

	doc, err := html.Parse(out)
	require.NoError(t, err)

	attrs := map[string]string{}
	var scripts int
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && len(attrs) == 0 {
			for _, a := range n.Attr {
				attrs[a.Key] = a.Val
			}
		}
		if n.Type == html.ElementNode && n.Data == "script" {
			scripts++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	assert.Equal(t, "ui:counter", attrs["data-tsx-component"])
	assert.JSONEq(t, `{"start":3}`, attrs["data-tsx-props"])
	assert.Equal(t, "/api", attrs["data-tsx-api"])
	assert.Equal(t, build.ContentHash("export default function Counter() {}\n"), attrs["data-tsx-hash"])
	assert.Equal(t, "/preview", attrs["data-tsx-validate-url"])
	assert.Equal(t, 2, scripts)
}

func TestEmbedCommand_Errors(t *testing.T) {
	setupProject(t)
	t.Cleanup(func() { embedProps, embedLive, embedValidateURL = "", false, "" })

	cmd, _ := testCommand()

	embedProps = `{not json`
	assert.ErrorContains(t, runEmbed(cmd, []string{"ui:counter"}), "invalid JSON")

	embedProps, embedValidateURL = "", "/preview"
	assert.ErrorContains(t, runEmbed(cmd, []string{"ui:counter"}), "--live")

	embedValidateURL = ""
	assert.ErrorContains(t, runEmbed(cmd, []string{"ui:nope"}), "not found")
}

func TestDoctorCommand(t *testing.T) {
	dir := setupProject(t)
	t.Cleanup(func() { doctorFormat = "text" })

	doctorFormat = "json"
	cmd, out := testCommand()
	require.NoError(t, runDoctor(cmd, nil))

	var report DoctorReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Healthy)
	assert.Equal(t, "config", report.Bundler.Source)
	assert.Equal(t, []string{filepath.Join(dir, "bin", "esbuild")}, report.Bundler.Command)
	require.Len(t, report.Sources, 2)
	assert.True(t, report.Sources[0].Exists)
	assert.Equal(t, 2, report.Sources[0].Components)
	assert.False(t, report.Sources[1].Exists)

	doctorFormat = "text"
	cmd, out = testCommand()
	require.NoError(t, runDoctor(cmd, nil))
	assert.Contains(t, out.String(), "(from config)")
	assert.Contains(t, out.String(), "directory not found")
}

func TestDoctorCommand_BadBundlerCommand(t *testing.T) {
	setupProject(t)
	viper.Set("bundler.command", `esbuild "unterminated`)
	t.Cleanup(func() { doctorFormat = "text" })

	doctorFormat = "text"
	cmd, out := testCommand()
	err := runDoctor(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, out.String(), "esbuild not found")
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat, versionShort, versionDetailed = "text", false, false })

	versionFormat = "text"
	cmd, out := testCommand()
	require.NoError(t, runVersionCommand(cmd, nil))
	assert.True(t, strings.HasPrefix(out.String(), "tsxbridge "))

	versionFormat = "json"
	cmd, out = testCommand()
	require.NoError(t, runVersionCommand(cmd, nil))
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "go_version")

	versionFormat, versionDetailed = "text", true
	cmd, out = testCommand()
	require.NoError(t, runVersionCommand(cmd, nil))
	assert.Contains(t, out.String(), "build:")
}

func TestValidateFormat(t *testing.T) {
	valid := []string{"table", "json", "yaml"}
	assert.NoError(t, ValidateFormat("json", valid))
	assert.NoError(t, ValidateFormat("YAML", valid))

	err := ValidateFormat("js", valid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "json"`)

	assert.Error(t, ValidateFormat("csv", valid))
}

func TestFormatFlagRejectsUnknownValues(t *testing.T) {
	var format string
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	addFormatFlag(cmd, &format, "text", "json")

	require.NoError(t, cmd.Flags().Set("format", "json"))
	assert.Equal(t, "json", format)
	assert.Error(t, cmd.Flags().Set("format", "xml"))
	assert.Equal(t, "json", format)
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("8080"))
	assert.Error(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("70000"))
	assert.Error(t, ValidatePort("http"))
}

func TestParseProps(t *testing.T) {
	props, err := ParseProps("")
	require.NoError(t, err)
	assert.Empty(t, props)

	props, err = ParseProps(`{"name":"Widget"}`)
	require.NoError(t, err)
	assert.Equal(t, "Widget", props["name"])

	file := filepath.Join(t.TempDir(), "props.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"price":"9.99"}`), 0o644))
	props, err = ParseProps("@" + file)
	require.NoError(t, err)
	assert.Equal(t, "9.99", props["price"])

	_, err = ParseProps("@" + filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read props file")

	_, err = ParseProps("[1,2]")
	assert.ErrorContains(t, err, "invalid JSON")
}
