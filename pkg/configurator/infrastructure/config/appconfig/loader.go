package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

const (
	DefaultRepositoryURL = "https://github.com/AlessandroAU/ExpressLRS.git"
	DefaultListen        = "127.0.0.1:8095"
)

type Repository struct {
	URL        string `json:"url" yaml:"url"`
	Dir        string `json:"dir" yaml:"dir"`
	Remote     string `json:"remote" yaml:"remote"`
	ProjectDir string `json:"projectDir" yaml:"projectDir"`
}

type Config struct {
	WorkDir          string     `json:"workDir" yaml:"workDir"`
	ToolsDir         string     `json:"toolsDir" yaml:"toolsDir"`
	SetupDir         string     `json:"setupDir" yaml:"setupDir"`
	LogFile          string     `json:"logFile" yaml:"logFile"`
	Listen           string     `json:"listen" yaml:"listen"`
	AllowedOrigins   []string   `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
	OperationTimeout string     `json:"operationTimeout,omitempty" yaml:"operationTimeout,omitempty"`
	Repository       Repository `json:"repository" yaml:"repository"`
}

func Default() Config {
	return Config{
		WorkDir:  ".",
		ToolsDir: "elrs-cli",
		SetupDir: "setup",
		LogFile:  "elrs-cli.log",
		Listen:   DefaultListen,
		Repository: Repository{
			URL:        DefaultRepositoryURL,
			Dir:        "ExpressLRS",
			Remote:     "origin",
			ProjectDir: "src",
		},
	}
}

// Load reads a JSON or YAML file (chosen by extension) over the defaults.
// A missing file yields the defaults.
func Load(filePath string) (model.Configurator, error) {
	config := Default()
	configBody, err := os.ReadFile(filePath)
	if err != nil && !os.IsNotExist(err) {
		return model.Configurator{}, errors.Wrapf(err, "failed to read config file: %v", filePath)
	}
	if err == nil {
		err = unmarshal(filePath, configBody, &config)
		if err != nil {
			return model.Configurator{}, err
		}
	}
	err = assertConfig(config)
	if err != nil {
		return model.Configurator{}, err
	}
	return MapToConfigurator(config)
}

func unmarshal(filePath string, body []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return errors.Wrap(yaml.Unmarshal(body, config), "failed to unmarshal yaml config")
	default:
		return errors.Wrap(json.Unmarshal(body, config), "failed to unmarshal config")
	}
}

func MapToConfigurator(config Config) (model.Configurator, error) {
	var timeout time.Duration
	if config.OperationTimeout != "" {
		var err error
		timeout, err = time.ParseDuration(config.OperationTimeout)
		if err != nil {
			return model.Configurator{}, errors.Wrapf(err, "invalid operation timeout %q", config.OperationTimeout)
		}
		if timeout < 0 {
			return model.Configurator{}, errors.Errorf("operation timeout %v is negative", timeout)
		}
	}

	workDir, err := filepath.Abs(config.WorkDir)
	if err != nil {
		return model.Configurator{}, errors.Wrapf(err, "failed to resolve work dir %v", config.WorkDir)
	}
	repositoryDir := resolve(workDir, config.Repository.Dir)

	return model.Configurator{
		WorkDir:        workDir,
		ToolsDir:       resolve(workDir, config.ToolsDir),
		SetupDir:       resolve(workDir, config.SetupDir),
		LogFile:        resolve(workDir, config.LogFile),
		Listen:         config.Listen,
		AllowedOrigins: config.AllowedOrigins,
		Repository: model.RepositorySettings{
			URL:        config.Repository.URL,
			Dir:        repositoryDir,
			Remote:     config.Repository.Remote,
			ProjectDir: resolve(repositoryDir, config.Repository.ProjectDir),
		},
		OperationTimeout: timeout,
	}, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func assertConfig(config Config) error {
	if strings.TrimSpace(config.Repository.URL) == "" {
		return errors.New("repository url is empty")
	}
	if strings.TrimSpace(config.Repository.Dir) == "" {
		return errors.New("repository dir is empty")
	}
	if strings.TrimSpace(config.Repository.Remote) == "" {
		return errors.New("repository remote is empty")
	}
	return nil
}
