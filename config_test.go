package tstdb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/tstdb"
)

func Test_LoadConfig_Defaults_When_No_Files_Present(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, _, err := tstdb.LoadConfig(tstdb.LoadConfigInput{WorkDir: workDir})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := tstdb.DefaultConfig()
	if cfg != want {
		t.Fatalf("got %+v, want defaults %+v", cfg, want)
	}
}

func Test_LoadConfig_Project_File_Overrides_Defaults(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, tstdb.ConfigFileName)

	if err := os.WriteFile(projectFile, []byte(`{"path": "custom.log", "separator": 46}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, sources, err := tstdb.LoadConfig(tstdb.LoadConfigInput{WorkDir: workDir})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Path != "custom.log" {
		t.Fatalf("Path = %q, want custom.log", cfg.Path)
	}

	if cfg.Separator != '.' {
		t.Fatalf("Separator = %q, want '.'", cfg.Separator)
	}

	if sources.Project != projectFile {
		t.Fatalf("sources.Project = %q, want %q", sources.Project, projectFile)
	}
}

func Test_LoadConfig_CLI_Path_Override_Wins_Over_Project_File(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, tstdb.ConfigFileName)

	if err := os.WriteFile(projectFile, []byte(`{"path": "from-file.log"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, _, err := tstdb.LoadConfig(tstdb.LoadConfigInput{
		WorkDir:      workDir,
		PathOverride: "from-flag.log",
		HasPathFlag:  true,
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Path != "from-flag.log" {
		t.Fatalf("Path = %q, want from-flag.log", cfg.Path)
	}
}

func Test_LoadConfig_Explicit_AdvisoryLock_False_Disables_Default(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, tstdb.ConfigFileName)

	if err := os.WriteFile(projectFile, []byte(`{"advisory_lock": false}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, _, err := tstdb.LoadConfig(tstdb.LoadConfigInput{WorkDir: workDir})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.AdvisoryLock {
		t.Fatalf("AdvisoryLock = true, want false (explicit override)")
	}
}

func Test_LoadConfig_Missing_Explicit_Config_File_Is_An_Error(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	_, _, err := tstdb.LoadConfig(tstdb.LoadConfigInput{
		WorkDir:    workDir,
		ConfigPath: "does-not-exist.json",
	})
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func Test_LoadConfig_Rejects_MaxKeyLen_Above_Hard_Cap(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, tstdb.ConfigFileName)

	if err := os.WriteFile(projectFile, []byte(`{"max_key_len": 1024}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, _, err := tstdb.LoadConfig(tstdb.LoadConfigInput{WorkDir: workDir})
	if err == nil {
		t.Fatal("expected an error for max_key_len above the hard cap")
	}
}

func Test_FormatConfig_Produces_Valid_JSON(t *testing.T) {
	t.Parallel()

	out, err := tstdb.FormatConfig(tstdb.DefaultConfig())
	if err != nil {
		t.Fatalf("FormatConfig: %v", err)
	}

	if out == "" {
		t.Fatal("FormatConfig returned empty output")
	}
}
