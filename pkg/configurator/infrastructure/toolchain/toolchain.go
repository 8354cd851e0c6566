package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/command"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/platform"
)

// Toolchain locates the prerequisite tools and provisions the missing ones
// with installer scripts from the setup directory.
type Toolchain interface {
	service.Toolchain
	// Executable is the path or name the tool is invoked with.
	Executable(tool model.Tool) string
}

func NewToolchain(
	logger applogger.Logger,
	config model.Configurator,
	p platform.Platform,
	runner command.Runner,
) Toolchain {
	return &toolchain{
		logger:    logger,
		platform:  p,
		toolsDir:  config.ToolsDir,
		setupDir:  config.SetupDir,
		locations: locations(p, config.ToolsDir, config.SetupDir),
		runner:    runner,
	}
}

// location is either a file provisioned under the tools directory or a system tool found on PATH.
type location struct {
	path   string
	system bool
}

func locations(p platform.Platform, toolsDir, setupDir string) map[model.Tool]location {
	venvBin := platform.Select(p, "Scripts", "bin", "bin", "bin")
	return map[model.Tool]location{
		model.ToolArchiver: platform.Select(p,
			location{path: filepath.Join(setupDir, "windows", "7za.exe")},
			location{path: "tar", system: true},
			location{path: "tar", system: true},
			location{path: "tar", system: true},
		),
		model.ToolInterpreter: {
			path: filepath.Join(toolsDir, "venv", venvBin, p.Executable("python")),
		},
		model.ToolSupportTools: {
			path: filepath.Join(toolsDir, "venv", venvBin, p.Executable("pio")),
		},
		model.ToolVCSClient: platform.Select(p,
			location{path: filepath.Join(toolsDir, "git", "cmd", "git.exe")},
			location{path: "git", system: true},
			location{path: "git", system: true},
			location{path: "git", system: true},
		),
	}
}

type toolchain struct {
	logger    applogger.Logger
	platform  platform.Platform
	toolsDir  string
	setupDir  string
	locations map[model.Tool]location
	runner    command.Runner
}

type installerVariables struct {
	Platform    string
	ToolsDir    string
	SetupDir    string
	Archiver    string
	Interpreter string
	Pio         string
	Git         string
}

func (t toolchain) Executable(tool model.Tool) string {
	return t.locations[tool].path
}

func (t toolchain) Present(tool model.Tool) (bool, error) {
	l, ok := t.locations[tool]
	if !ok {
		return false, errors.Errorf("unknown tool %v", tool)
	}
	if l.system {
		_, err := exec.LookPath(l.path)
		return err == nil, nil
	}
	_, err := os.Stat(l.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (t toolchain) Install(ctx context.Context, tool model.Tool) error {
	templatePath := filepath.Join(t.setupDir, string(t.platform), string(tool)+".tmpl")
	if _, err := os.Stat(templatePath); err != nil {
		return errors.Wrapf(err, "no installer for %v on %v", tool, t.platform)
	}
	t.logger.Info(fmt.Sprintf("running %v installer %v", tool, templatePath))
	script, err := t.renderInstaller(tool, templatePath)
	if err != nil {
		return err
	}
	defer os.Remove(script)

	shell := platform.Select(t.platform,
		command.Command{Executable: "cmd", Args: []string{"/C", script}},
		command.Command{Executable: "sh", Args: []string{script}},
		command.Command{Executable: "sh", Args: []string{script}},
		command.Command{Executable: "sh", Args: []string{script}},
	)
	shell.WorkDir = t.setupDir
	err = t.runner.Execute(ctx, shell)
	return errors.Wrapf(err, "installer for %v failed", tool)
}

func (t toolchain) UpdateSupportTools(ctx context.Context) error {
	err := t.runner.Execute(ctx, command.Command{
		Executable: t.Executable(model.ToolInterpreter),
		Args:       []string{"-m", "pip", "install", "--upgrade", "platformio"},
	})
	return errors.Wrap(err, "failed to update platformio")
}

func (t toolchain) renderInstaller(tool model.Tool, templatePath string) (string, error) {
	err := os.MkdirAll(t.toolsDir, os.ModePerm)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create tools directory %v", t.toolsDir)
	}
	extension := platform.Select(t.platform, ".cmd", ".sh", ".sh", ".sh")
	scriptFile, err := os.CreateTemp(t.toolsDir, fmt.Sprintf("install-%v-*%v", tool, extension))
	if err != nil {
		return "", errors.Wrapf(err, "failed to create temporary file for %v installer", tool)
	}
	defer scriptFile.Close()
	installerTemplate, err := template.ParseFiles(templatePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse %v installer template", tool)
	}
	err = installerTemplate.Execute(scriptFile, installerVariables{
		Platform:    string(t.platform),
		ToolsDir:    t.toolsDir,
		SetupDir:    t.setupDir,
		Archiver:    t.Executable(model.ToolArchiver),
		Interpreter: t.Executable(model.ToolInterpreter),
		Pio:         t.Executable(model.ToolSupportTools),
		Git:         t.Executable(model.ToolVCSClient),
	})
	if err != nil {
		os.Remove(scriptFile.Name())
		return "", errors.Wrapf(err, "failed to execute %v installer template", tool)
	}
	return scriptFile.Name(), nil
}
